package records

import (
	"fmt"
	"strings"

	common "github.com/nspcc-dev/neofs-vfs/cmd/vfs-lens/internal"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/records"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var inspectCMD = &cobra.Command{
	Use:   "inspect",
	Short: "File record examination",
	Long:  `Print all fields of a file record.`,
	Args:  cobra.NoArgs,
	Run:   inspectFunc,
}

func init() {
	common.AddIDFlag(inspectCMD, &vID)
}

var flagNames = []struct {
	f    records.Flags
	name string
}{
	{records.FlagDirectory, "directory"},
	{records.FlagSymlink, "symlink"},
	{records.FlagSpecial, "special"},
	{records.FlagReadOnly, "read-only"},
	{records.FlagHidden, "hidden"},
	{records.FlagDeleted, "deleted"},
	{records.FlagCaseSensitivityKnown, "case-sensitivity-known"},
	{records.FlagCaseSensitive, "case-sensitive"},
	{records.FlagMustReloadLength, "must-reload-length"},
	{records.FlagMustReloadContent, "must-reload-content"},
	{records.FlagChildrenCached, "children-cached"},
	{records.FlagCharsNullTerminated, "chars-null-terminated"},
}

func flagsString(f records.Flags) string {
	var names []string
	for _, fn := range flagNames {
		if f.Has(fn.f) {
			names = append(names, fn.name)
		}
	}
	return fmt.Sprintf("0x%08x %s", int32(f), strings.Join(names, ","))
}

func inspectFunc(cmd *cobra.Command, _ []string) {
	db, err := common.OpenDB()
	common.ExitOnErr(cmd, err)
	defer db.Close()

	rec, err := db.ReadRecord(vID)
	common.ExitOnErr(cmd, common.Errf("could not read record: %w", err))

	out := tablewriter.NewWriter(cmd.OutOrStdout())
	out.SetHeader([]string{"Field", "Value"})
	out.SetAutoWrapText(false)

	out.AppendBulk([][]string{
		{"ID", fmt.Sprint(vID)},
		{"Parent", fmt.Sprint(rec.ParentID)},
		{"Name ID", fmt.Sprint(rec.NameID)},
		{"Flags", flagsString(rec.Flags)},
		{"Attribute record", fmt.Sprint(rec.AttributeRecordID)},
		{"Content record", fmt.Sprint(rec.ContentRecordID)},
		{"Mod count", fmt.Sprint(rec.ModCount)},
		{"Timestamp", fmt.Sprint(rec.Timestamp)},
		{"Length", fmt.Sprint(rec.Length)},
	})

	out.Render()
}
