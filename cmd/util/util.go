package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/graphpack/lib/codec"
	"github.com/ValentinKolb/graphpack/lib/codec/dataset"
	"github.com/ValentinKolb/graphpack/lib/codec/graphcodec"
	"github.com/ValentinKolb/graphpack/lib/codec/tensor"
	"github.com/ValentinKolb/graphpack/lib/common"
	"github.com/ValentinKolb/graphpack/lib/graph"
	"github.com/ValentinKolb/graphpack/lib/storage"
	"github.com/ValentinKolb/graphpack/lib/storage/fsstore"
	"github.com/ValentinKolb/graphpack/lib/storage/memstore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("graphpack")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// ApplyLogLevel sets the configured log level on all loggers
func ApplyLogLevel() error {
	level, err := common.ParseLogLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	common.SetAllLevels(level)
	return nil
}

// GetStorage creates the storage backend based on configuration
func GetStorage() (storage.IStorage, error) {
	switch viper.GetString("storage") {
	case "fs":
		var opts []fsstore.Option
		if viper.GetBool("compress") {
			opts = append(opts, fsstore.WithCompression())
		}
		return fsstore.NewFSStorage(viper.GetString("dir"), opts...), nil
	case "mem":
		return memstore.NewMemStorage(), nil
	default:
		return nil, fmt.Errorf("invalid storage backend %s", viper.GetString("storage"))
	}
}

// GetRegistry creates a codec registry with all built-in codecs registered.
// The returned type registry is empty; callers persisting their own struct
// types register them there.
func GetRegistry() (*codec.Registry, *graph.TypeRegistry) {
	registry := codec.NewRegistry()
	types := graph.NewTypeRegistry()

	tensor.Register(registry)
	dataset.Register(registry)
	graphcodec.Register(registry, types)

	return registry, types
}
