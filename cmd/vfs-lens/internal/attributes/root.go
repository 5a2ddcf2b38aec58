package attributes

import (
	"github.com/spf13/cobra"
)

var vID int32

// Root contains `attributes` command definition.
var Root = &cobra.Command{
	Use:   "attributes",
	Short: "Operations with file attributes",
}

func init() {
	Root.AddCommand(
		listCMD,
	)
}
