package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/graphpack/cmd/inspect"
	"github.com/ValentinKolb/graphpack/cmd/perf"
	"github.com/ValentinKolb/graphpack/cmd/util"
	"github.com/ValentinKolb/graphpack/cmd/verify"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "graphpack",
		Short: "object graph persistence engine",
		Long: fmt.Sprintf(`graphpack (v%s)

A persistence engine for arbitrary object graphs written in Go. Graphs are
serialized structurally while specialized sub-values (tensors, datasets)
are stored out-of-band by their own codecs and multiplexed into one flat
artifact namespace.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of graphpack",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("graphpack v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(inspect.InspectCmd)
	RootCmd.AddCommand(verify.VerifyCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "storage"
	RootCmd.PersistentFlags().String(key, "fs", util.WrapString("storage backend to use (fs, mem)"))
	key = "dir"
	RootCmd.PersistentFlags().String(key, ".", util.WrapString("base directory for the fs storage backend"))
	key = "compress"
	RootCmd.PersistentFlags().Bool(key, false, util.WrapString("enable zstd compression for the fs storage backend"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("log level (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
