package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bsv-blockchain/ump-services/pkg/types"
)

// LookupOptions holds flags for the lookup command.
type LookupOptions struct {
	*RootOptions
	PresentationHash string
	RecoveryHash     string
	Outpoint         string
	Query            string // raw JSON query object
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LookupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Find the current output of a UMP account",
		Long: `Resolve a lookup query against the index.

The query is built from the key flags, or given verbatim as a JSON object
with --query. When several keys are supplied the first of presentationHash,
recoveryHash and outpoint is used, unless --strict is set.

Examples:
  umpctl lookup --presentation-hash 9f86d0...
  umpctl lookup --outpoint 3f1c...9a.0
  umpctl lookup --query '{"recoveryHash":"60303a..."}' --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PresentationHash, "presentation-hash", "", "presentation hash (hex)")
	cmd.Flags().StringVar(&opts.RecoveryHash, "recovery-hash", "", "recovery hash (hex)")
	cmd.Flags().StringVar(&opts.Outpoint, "outpoint", "", "outpoint as <txid>.<index>")
	cmd.Flags().StringVar(&opts.Query, "query", "", "raw JSON query object")
	cmd.MarkFlagsMutuallyExclusive("query", "presentation-hash")
	cmd.MarkFlagsMutuallyExclusive("query", "recovery-hash")
	cmd.MarkFlagsMutuallyExclusive("query", "outpoint")

	return cmd
}

// rawQuery returns the JSON query object described by the flags, or nil if
// none was given.
func (o *LookupOptions) rawQuery() (json.RawMessage, error) {
	if o.Query != "" {
		return json.RawMessage(o.Query), nil
	}
	obj := make(map[string]string, 3)
	if o.PresentationHash != "" {
		obj["presentationHash"] = o.PresentationHash
	}
	if o.RecoveryHash != "" {
		obj["recoveryHash"] = o.RecoveryHash
	}
	if o.Outpoint != "" {
		obj["outpoint"] = o.Outpoint
	}
	if len(obj) == 0 {
		return nil, nil
	}
	return json.Marshal(obj)
}

func runLookup(opts *LookupOptions, cmd *cobra.Command) error {
	raw, err := opts.rawQuery()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build query", err)
	}

	e, err := opts.open()
	if err != nil {
		return err
	}
	defer e.Close()

	outpoints, err := e.svc.LookupJSON(raw)
	if err != nil {
		return serviceError("lookup failed", err)
	}

	return output(cmd.OutOrStdout(), opts.Format, outpoints, func(w io.Writer) {
		writeOutpoints(w, outpoints)
	})
}

func writeOutpoints(w io.Writer, outpoints []types.Outpoint) {
	if len(outpoints) == 0 {
		fmt.Fprintln(w, "No matching output")
		return
	}
	for _, op := range outpoints {
		fmt.Fprintln(w, op)
	}
}
