package records

import (
	common "github.com/nspcc-dev/neofs-vfs/cmd/vfs-lens/internal"
	"github.com/spf13/cobra"
)

var dumpCMD = &cobra.Command{
	Use:   "dump",
	Short: "Dump records in hex",
	Long:  `Print the header and every allocated file record as hex strings.`,
	Args:  cobra.NoArgs,
	Run:   dumpFunc,
}

func dumpFunc(cmd *cobra.Command, _ []string) {
	db, err := common.OpenDB()
	common.ExitOnErr(cmd, err)
	defer db.Close()

	common.ExitOnErr(cmd, common.Errf("dump records: %w", db.DumpRecordsAsHex(cmd.OutOrStdout())))
}
