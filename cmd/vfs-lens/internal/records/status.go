package records

import (
	"time"

	common "github.com/nspcc-dev/neofs-vfs/cmd/vfs-lens/internal"
	"github.com/spf13/cobra"
)

var statusCMD = &cobra.Command{
	Use:   "status",
	Short: "Records file status",
	Long:  `Print the records file header and the findings of the self-check made on open.`,
	Args:  cobra.NoArgs,
	Run:   statusFunc,
}

func statusFunc(cmd *cobra.Command, _ []string) {
	db, err := common.OpenDB()
	common.ExitOnErr(cmd, err)
	defer db.Close()

	st := db.Status()
	r := db.OpenReport()

	cmd.Printf("Allocated records: %d\n", st.MaxAllocatedID)
	cmd.Printf("Global mod count: %d\n", st.GlobalModCount)
	cmd.Printf("Created at: %s\n", st.CreatedAt.UTC().Format(time.RFC3339))
	cmd.Printf("Errors accumulated: %d\n", st.ErrorsAccumulated)
	cmd.Printf("Attribute records: %d\n", st.AttributeRecords)

	if st.Owner.ProcessID != 0 {
		cmd.Printf("Owner: process %d since %s\n", st.Owner.ProcessID,
			time.UnixMilli(st.Owner.AcquiredAt).UTC().Format(time.RFC3339))
	} else {
		cmd.Println("Owner: none")
	}

	cmd.Printf("Closed properly: %t\n", r.WasClosedProperly)
	for _, f := range r.Findings {
		cmd.Printf("\t%s\n", f)
	}
}
