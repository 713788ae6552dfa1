package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	klog "github.com/bsv-blockchain/ump-services/internal/log"
)

// Stats describes the state of the index.
type Stats struct {
	Topic         string `json:"topic"`
	Backend       string `json:"backend"`
	Path          string `json:"path,omitempty"`
	StrictQueries bool   `json:"strictQueries"`
	Records       int    `json:"records"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show index statistics",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(rootOpts, cmd)
		},
	}
}

// NewReindexCommand creates the reindex command.
func NewReindexCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the hash indexes from stored records",
		Long: `Drop the presentation and recovery hash indexes and rebuild them from
the stored records. Records keep their sequence numbers, so newest-wins
ordering is unchanged.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(rootOpts, cmd)
		},
	}
}

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	Yes bool
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every record indexed for the tracked topic",
		Long: `Delete every record, index entry and counter stored for the tracked
topic. Indexes kept for other topics in the same database are untouched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm the reset")

	return cmd
}

func runStats(opts *RootOptions, cmd *cobra.Command) error {
	e, err := opts.open()
	if err != nil {
		return err
	}
	defer e.Close()

	n, err := e.store.Count()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count records", err)
	}
	stats := Stats{
		Topic:         e.svc.Topic(),
		Backend:       e.cfg.Storage.Backend,
		StrictQueries: e.cfg.Lookup.StrictQueries,
		Records:       n,
	}
	if stats.Backend != "memory" {
		stats.Path = e.cfg.IndexPath()
	}

	return output(cmd.OutOrStdout(), opts.Format, stats, func(w io.Writer) {
		fmt.Fprintf(w, "Topic:    %s\n", stats.Topic)
		fmt.Fprintf(w, "Backend:  %s\n", stats.Backend)
		if stats.Path != "" {
			fmt.Fprintf(w, "Path:     %s\n", stats.Path)
		}
		fmt.Fprintf(w, "Strict:   %t\n", stats.StrictQueries)
		fmt.Fprintf(w, "Records:  %d\n", stats.Records)
	})
}

func runReindex(opts *RootOptions, cmd *cobra.Command) error {
	e, err := opts.open()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.store.Reindex(); err != nil {
		return WrapExitError(ExitCommandError, "reindex failed", err)
	}
	n, err := e.store.Count()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count records", err)
	}
	klog.CLI.Info().Int("records", n).Str("path", e.cfg.IndexPath()).Msg("Index rebuilt")

	return output(cmd.OutOrStdout(), opts.Format, map[string]int{"records": n}, func(w io.Writer) {
		fmt.Fprintf(w, "Reindexed %d records\n", n)
	})
}

func runReset(opts *ResetOptions, cmd *cobra.Command) error {
	if !opts.Yes {
		return WrapExitError(ExitCommandError, "refusing to reset without --yes", nil)
	}

	e, err := opts.open()
	if err != nil {
		return err
	}
	defer e.Close()

	n, err := e.store.Count()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count records", err)
	}
	if err := e.collection.DeleteAll(); err != nil {
		return WrapExitError(ExitCommandError, "reset failed", err)
	}
	klog.CLI.Warn().Int("records", n).Str("topic", e.svc.Topic()).Msg("Index reset")

	return output(cmd.OutOrStdout(), opts.Format, map[string]int{"deleted": n}, func(w io.Writer) {
		fmt.Fprintf(w, "Deleted %d records for topic %s\n", n, e.svc.Topic())
	})
}
