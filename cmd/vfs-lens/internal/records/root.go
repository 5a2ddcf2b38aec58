package records

import (
	"github.com/spf13/cobra"
)

var vID int32

// Root contains `records` command definition.
var Root = &cobra.Command{
	Use:   "records",
	Short: "Operations with file records",
}

func init() {
	Root.AddCommand(
		dumpCMD,
		inspectCMD,
		statusCMD,
	)
}
