package main

import (
	"os"

	"github.com/nspcc-dev/neofs-vfs/cmd/internal/cmderr"
	common "github.com/nspcc-dev/neofs-vfs/cmd/vfs-lens/internal"
	"github.com/nspcc-dev/neofs-vfs/cmd/vfs-lens/internal/attributes"
	"github.com/nspcc-dev/neofs-vfs/cmd/vfs-lens/internal/records"
	"github.com/nspcc-dev/neofs-vfs/cmd/vfs-lens/internal/sanity"
	"github.com/nspcc-dev/neofs-vfs/misc"
	"github.com/spf13/cobra"
)

var command = &cobra.Command{
	Use:           "vfs-lens",
	Short:         "NeoFS VFS Storage Lens",
	Long:          `NeoFS VFS Storage Lens provides tools to browse the contents of the VFS record and attribute storage. The storage is always opened read-only.`,
	RunE:          entryPoint,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func entryPoint(cmd *cobra.Command, _ []string) error {
	printVersion, _ := cmd.Flags().GetBool("version")
	if printVersion {
		cmd.Print(misc.BuildInfo("NeoFS VFS Lens"))

		return nil
	}

	return cmd.Usage()
}

func init() {
	// use stdout as default output for cmd.Print()
	command.SetOut(os.Stdout)
	command.Flags().Bool("version", false, "Application version")
	common.AddGlobalFlags(command)
	command.AddCommand(
		records.Root,
		attributes.Root,
		sanity.Root,
	)
}

func main() {
	err := command.Execute()
	cmderr.ExitOnErr(err)
}
