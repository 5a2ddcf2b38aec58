package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/nspcc-dev/neofs-vfs/cmd/internal/cmderr"
	"github.com/nspcc-dev/neofs-vfs/pkg/config"
	"github.com/nspcc-dev/neofs-vfs/pkg/util/logger"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/attrenum"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/attributes"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/blobstor/peapod"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/records"
	"github.com/nspcc-dev/neofs-vfs/pkg/vfsstorage/vfsdb"
	"github.com/spf13/cobra"
)

const (
	flagConfig      = "config"
	flagConfigUsage = "Path to the config file (default is $HOME/.config/neofs-vfs/config.yaml if exists)"

	flagPath      = "path"
	flagPathUsage = "Path to the storage directory, overrides storage.path from the config"

	flagID      = "id"
	flagIDUsage = "File record identifier"

	defaultConfigFile = ".config/neofs-vfs/config.yaml"
)

var (
	vConfig string
	vPath   string
)

// AddGlobalFlags adds flags shared by all commands to the root command.
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&vConfig, flagConfig, "c", "", flagConfigUsage)
	cmd.PersistentFlags().StringVarP(&vPath, flagPath, "p", "", flagPathUsage)
}

// AddIDFlag adds the file record identifier flag to a command.
func AddIDFlag(cmd *cobra.Command, v *int32) {
	cmd.Flags().Int32Var(v, flagID, 0, flagIDUsage)
	_ = cmd.MarkFlagRequired(flagID)
}

// Errf returns formatted error in errFmt format if err is not nil.
func Errf(errFmt string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf(errFmt, err)
}

// ExitOnErr calls exitOnErrCode with the code carried by err.
func ExitOnErr(cmd *cobra.Command, err error) {
	if err != nil {
		exitOnErrCode(cmd, err, cmderr.Code(err))
	}
}

// exitOnErrCode prints error via cmd and calls os.Exit with passed exit code.
// Does nothing if err is nil.
func exitOnErrCode(cmd *cobra.Command, err error, code int) {
	if err != nil {
		cmd.PrintErrln(err)
		os.Exit(code)
	}
}

func configFile() (string, error) {
	if vConfig != "" {
		return vConfig, nil
	}

	home, err := homedir.Dir()
	if err != nil {
		return "", nil
	}

	p := filepath.Join(home, defaultConfigFile)
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}

	return p, nil
}

// ReadConfig reads the configuration from the config file and environment
// and applies command line overrides.
func ReadConfig() (*config.Config, error) {
	var opts []config.Option

	p, err := configFile()
	if err != nil {
		return nil, err
	}
	if p != "" {
		opts = append(opts, config.WithConfigFile(p))
	}

	c, err := config.New(opts...)
	if err != nil {
		return nil, err
	}

	if vPath != "" {
		c.Sub("storage").Set("path", vPath)
	}

	return c, nil
}

// DBOptions converts the configuration into storage options.
func DBOptions(c *config.Config) ([]vfsdb.Option, error) {
	st := config.StorageSection(c)

	if st.Path() == "" {
		return nil, errors.New("storage path is not set, use --path or storage.path")
	}

	log, err := logger.NewLogger(c.Viper())
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	recOpts := []records.Option{records.WithPath(st.RecordsPath(vfsdb.RecordsFileName))}
	if sz := st.RecordsPageSize(); sz > 0 {
		recOpts = append(recOpts, records.WithPageSize(sz))
	}

	blobs := peapod.New(st.AttributesPath(vfsdb.AttributesFileName), 0o640)
	blobs.SetLogger(log)

	return []vfsdb.Option{
		vfsdb.WithPath(st.Path()),
		vfsdb.WithLogger(log),
		vfsdb.WithRecordsOptions(recOpts...),
		vfsdb.WithBlobStorage(blobs),
		vfsdb.WithAttributesOptions(attributes.WithIgnoreAlreadyDeleted(st.IgnoreAlreadyDeleted())),
		vfsdb.WithEnumeratorOptions(
			attrenum.WithPath(st.EnumPath(vfsdb.EnumFileName)),
			attrenum.WithCacheSize(st.EnumCacheSize()),
		),
		vfsdb.WithSanityWorkers(st.SanityWorkers()),
	}, nil
}

// OpenDB opens the storage in read-only mode.
func OpenDB(extra ...vfsdb.Option) (*vfsdb.DB, error) {
	c, err := ReadConfig()
	if err != nil {
		return nil, err
	}

	opts, err := DBOptions(c)
	if err != nil {
		return nil, err
	}

	db := vfsdb.New(append(opts, extra...)...)

	if err := db.Open(true); err != nil {
		return nil, Errf("could not open storage: %w", err)
	}

	if err := db.Init(); err != nil {
		_ = db.Close()
		return nil, Errf("could not init storage: %w", err)
	}

	return db, nil
}
