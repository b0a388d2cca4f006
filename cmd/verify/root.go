package verify

import (
	"fmt"

	"github.com/ValentinKolb/graphpack/cmd/util"
	"github.com/ValentinKolb/graphpack/lib/codec/graphcodec"
	"github.com/ValentinKolb/graphpack/lib/common"
	"github.com/spf13/cobra"
)

var logger = common.GetLogger("cmd/verify")

// VerifyCmd checks the structural integrity of a dumped artifact set
var VerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify the integrity of a dump",
	Long: util.WrapString(`Scans the given logical path on the configured storage backend and checks that
the dump stored there is structurally complete: the root stream exists, every
reference group has a codec descriptor and every descriptor names a codec
known to this build. The value graph itself is not decoded.`),
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
}

func run(_ *cobra.Command, args []string) error {
	path := args[0]

	store, err := util.GetStorage()
	if err != nil {
		return err
	}

	registry, _ := util.GetRegistry()

	logger.Debugf("scanning %s", path)
	arts, err := store.Scan(path)
	if err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}

	if err := graphcodec.Verify(registry, arts); err != nil {
		return fmt.Errorf("dump at %s is not intact: %w", path, err)
	}

	fmt.Printf("OK: %d artifacts, dump at %s is intact\n", len(arts), path)
	return nil
}
