// Package cli implements the umpctl command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bsv-blockchain/ump-services/config"
	klog "github.com/bsv-blockchain/ump-services/internal/log"
	"github.com/bsv-blockchain/ump-services/internal/storage"
	"github.com/bsv-blockchain/ump-services/internal/ump"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Flags  config.Flags
	Format string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for umpctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "umpctl",
		Short: "umpctl - UMP lookup index tool",
		Long: `Operate a local index of User Management Protocol tokens.

umpctl feeds admission, spend and eviction notifications into the lookup
service and answers presentationHash, recoveryHash and outpoint queries
against the same index.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			opts.Flags.SetStrict = cmd.Flags().Changed("strict")
			opts.Flags.SetLogJSON = cmd.Flags().Changed("log-json")
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.Flags.DataDir, "datadir", "", "data directory (default ~/.ump)")
	pf.StringVarP(&opts.Flags.Config, "config", "c", "", "config file (default <datadir>/ump.conf)")
	pf.StringVar(&opts.Flags.Backend, "backend", "", "index backend (badger|sqlite|memory)")
	pf.StringVar(&opts.Flags.StoragePath, "index", "", "index location (default under datadir)")
	pf.StringVar(&opts.Flags.Topic, "topic", "", "topic whose outputs are indexed (default tm_users)")
	pf.BoolVar(&opts.Flags.Strict, "strict", false, "reject queries with more than one lookup key")
	pf.StringVar(&opts.Flags.LogLevel, "log-level", "", "log level (debug|info|warn|error|off)")
	pf.BoolVar(&opts.Flags.LogJSON, "log-json", false, "write logs as JSON")
	pf.StringVar(&opts.Flags.LogFile, "log-file", "", "also append JSON logs to this file")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewAdmitCommand(opts))
	cmd.AddCommand(NewSpendCommand(opts))
	cmd.AddCommand(NewEvictCommand(opts))
	cmd.AddCommand(NewLookupCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewReindexCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewEncodeCommand(opts))
	cmd.AddCommand(NewDocsCommand(opts))
	cmd.AddCommand(NewMetadataCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// env is an opened index with its lookup service.
type env struct {
	cfg        *config.Config
	db         storage.DB
	collection *storage.PrefixDB // the tracked topic's keyspace within db
	store      *ump.Store
	svc        *ump.Service
}

// collectionPrefix scopes each topic's records to its own keyspace, so one
// database can hold indexes for several topics.
func collectionPrefix(topic string) []byte {
	return append([]byte(topic), 0)
}

// open loads configuration, initializes logging and opens the index.
func (o *RootOptions) open() (*env, error) {
	cfg, err := config.Load(&o.Flags)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open log file", err)
	}

	db, err := storage.Open(cfg.Storage.Backend, cfg.IndexPath(), cfg.Storage.SyncWrites)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open index", err)
	}
	collection := storage.NewPrefixDB(db, collectionPrefix(cfg.Lookup.Topic))
	store, err := ump.NewStore(collection)
	if err != nil {
		db.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open index", err)
	}
	svc := ump.NewService(store, ump.Options{
		Topic:         cfg.Lookup.Topic,
		StrictQueries: cfg.Lookup.StrictQueries,
	})
	return &env{cfg: cfg, db: db, collection: collection, store: store, svc: svc}, nil
}

func (e *env) Close() error {
	return e.db.Close()
}
