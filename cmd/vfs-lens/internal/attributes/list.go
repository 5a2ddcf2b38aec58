package attributes

import (
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	common "github.com/nspcc-dev/neofs-vfs/cmd/vfs-lens/internal"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/vfsdb"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var listCMD = &cobra.Command{
	Use:   "list",
	Short: "File attributes listing",
	Long:  `List all attributes of a file record. Printable values are shown as text, others in hex.`,
	Args:  cobra.NoArgs,
	Run:   listFunc,
}

func init() {
	common.AddIDFlag(listCMD, &vID)
}

const maxPreview = 64

func preview(v []byte) string {
	cut := v
	if len(cut) > maxPreview {
		cut = cut[:maxPreview]
	}

	var s string
	if utf8.Valid(cut) {
		s = fmt.Sprintf("%q", cut)
	} else {
		s = hex.EncodeToString(cut)
	}

	if len(cut) < len(v) {
		s += "..."
	}

	return s
}

func listFunc(cmd *cobra.Command, _ []string) {
	db, err := common.OpenDB()
	common.ExitOnErr(cmd, err)
	defer db.Close()

	out := tablewriter.NewWriter(cmd.OutOrStdout())
	out.SetHeader([]string{"Name", "Size", "Value"})
	out.SetAutoWrapText(false)

	err = db.ForEachAttribute(func(fileID int32, name string, value []byte) error {
		if fileID != vID {
			return nil
		}

		out.Append([]string{name, fmt.Sprint(len(value)), preview(value)})
		return nil
	})
	common.ExitOnErr(cmd, common.Errf("could not list attributes: %w", err))

	if children, err := db.ListChildren(vID); err == nil && len(children) > 0 {
		out.SetFooter([]string{vfsdb.ChildrenAttribute, fmt.Sprint(len(children)), "children"})
	}

	out.Render()
}
