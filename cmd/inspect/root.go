package inspect

import (
	"fmt"

	"github.com/ValentinKolb/graphpack/cmd/util"
	"github.com/ValentinKolb/graphpack/lib/codec/graphcodec"
	"github.com/ValentinKolb/graphpack/lib/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logger = common.GetLogger("cmd/inspect")

// InspectCmd lists the layout of a dumped artifact set
var InspectCmd = &cobra.Command{
	Use:   "inspect <path>",
	Short: "Show the artifact layout of a dump",
	Long: util.WrapString(`Scans the given logical path on the configured storage backend and prints the
layout of the dump stored there: the root stream, every out-of-band reference
with its codec identity and the artifacts belonging to it.`),
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := util.BindCommandFlags(cmd); err != nil {
			return err
		}
		return util.ApplyLogLevel()
	},
	RunE: run,
}

func init() {
	util.InitConfig()

	key := "artifacts"
	InspectCmd.Flags().Bool(key, false, util.WrapString("Additionally list every artifact with size and checksum"))
}

func run(_ *cobra.Command, args []string) error {
	path := args[0]

	store, err := util.GetStorage()
	if err != nil {
		return err
	}

	logger.Debugf("scanning %s", path)
	arts, err := store.Scan(path)
	if err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}

	summary, err := graphcodec.Describe(arts)
	if err != nil {
		return err
	}

	fmt.Printf("Dump at %s\n\n", path)
	if summary.SingleArtifact {
		fmt.Printf("Single artifact dump, root stream: %d bytes\n", summary.RootSize)
	} else {
		fmt.Printf("Root stream: %d bytes\n", summary.RootSize)
		fmt.Printf("References:  %d\n\n", len(summary.References))
		for _, ref := range summary.References {
			fmt.Printf("  %s\n", ref.Token)
			fmt.Printf("    codec:     %s\n", ref.Identity)
			fmt.Printf("    artifacts: %v\n", ref.Artifacts)
			fmt.Printf("    bytes:     %d\n", ref.Bytes)
		}
	}

	if viper.GetBool("artifacts") {
		fmt.Println("\nArtifacts:")
		for _, name := range arts.Names() {
			art := arts[name]
			fmt.Printf("  %-40s %10d bytes  %s\n", name, art.Size(), art.Checksum())
		}
	}

	return nil
}
