package sanity

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/cheggaaa/pb"
	"github.com/nspcc-dev/neofs-vfs/cmd/internal/cmderr"
	common "github.com/nspcc-dev/neofs-vfs/cmd/vfs-lens/internal"
	"github.com/nspcc-dev/neofs-vfs/misc"
	"github.com/nspcc-dev/neofs-vfs/pkg/metrics"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/vfsdb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const (
	noProgressFlag  = "no-progress"
	metricsFileFlag = "metrics-file"
)

// Root contains `sanity` command definition.
var Root = &cobra.Command{
	Use:   "sanity",
	Short: "Storage consistency check",
	Long: `Check every file record: parent references, attribute records and
children lists of directories. Exits with code 2 if problems are found.`,
	Args: cobra.NoArgs,
	Run:  sanityFunc,
}

func init() {
	Root.Flags().Bool(noProgressFlag, false, "Do not show progress bar")
	Root.Flags().String(metricsFileFlag, "", "Write collected storage metrics to the file in Prometheus text format")
}

func sanityFunc(cmd *cobra.Command, _ []string) {
	reg := prometheus.NewRegistry()

	db, err := common.OpenDB(vfsdb.WithMetrics(metrics.NewStorageMetrics(reg, misc.Version)))
	common.ExitOnErr(cmd, err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var progress func()

	noProgress, _ := cmd.Flags().GetBool(noProgressFlag)
	if !noProgress {
		p := pb.New(int(db.Status().MaxAllocatedID))
		p.Output = cmd.ErrOrStderr()
		p.Start()
		defer p.Finish()

		progress = func() { p.Increment() }
	}

	metricsFile, _ := cmd.Flags().GetString(metricsFileFlag)

	r, err := check(ctx, cmd, db, progress, reg, metricsFile)
	common.ExitOnErr(cmd, err)

	if len(r.Problems) > 0 {
		common.ExitOnErr(cmd, cmderr.ExitErr{
			Code:  cmderr.CodeInconsistent,
			Cause: fmt.Errorf("storage is inconsistent, %d problems found", len(r.Problems)),
		})
	}
}

// check runs the sanity check, prints its results and, if metricsFile is set,
// writes the gathered metrics there.
func check(ctx context.Context, cmd *cobra.Command, db *vfsdb.DB, progress func(),
	g prometheus.Gatherer, metricsFile string) (vfsdb.SanityReport, error) {
	r, err := db.CheckSanity(ctx, progress)
	if err != nil {
		return r, common.Errf("sanity check failed: %w", err)
	}

	cmd.Printf("Records checked: %d\n", r.RecordsChecked)
	cmd.Printf("Problems found: %d\n", len(r.Problems))

	for _, p := range r.Problems {
		cmd.Printf("\t%d: %v\n", p.FileID, p.Err)
	}

	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, g); err != nil {
			return r, common.Errf("could not write metrics: %w", err)
		}
	}

	return r, nil
}
