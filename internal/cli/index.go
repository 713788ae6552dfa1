package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/spf13/cobra"

	"github.com/bsv-blockchain/ump-services/pkg/types"
)

// IndexOptions holds flags shared by admit and spend.
type IndexOptions struct {
	*RootOptions
	OnTopic    string
	Script     string
	ScriptFile string
}

// IndexResult reports what a notification did to the index.
type IndexResult struct {
	Outpoint types.Outpoint `json:"outpoint"`
	Topic    string         `json:"topic"`
	Action   string         `json:"action"` // "admitted", "removed" or "ignored"
}

// NewAdmitCommand creates the admit command.
func NewAdmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IndexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "admit <txid.index>",
		Short: "Index an admitted UMP token output",
		Long: `Notify the lookup service that an output was admitted to a topic.

The locking script is given as hex, inline or in a file. Outputs admitted
to a topic other than the tracked one are ignored.

Examples:
  umpctl admit 3f1c...9a.0 --script 2102ab...
  umpctl admit 3f1c...9a.0 --script-file token.hex --on-topic tm_users`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmit(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.OnTopic, "on-topic", "", "topic the output was admitted to (default: tracked topic)")
	cmd.Flags().StringVar(&opts.Script, "script", "", "locking script hex")
	cmd.Flags().StringVar(&opts.ScriptFile, "script-file", "", "file holding the locking script hex")
	cmd.MarkFlagsMutuallyExclusive("script", "script-file")
	cmd.MarkFlagsOneRequired("script", "script-file")

	return cmd
}

// NewSpendCommand creates the spend command.
func NewSpendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IndexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "spend <txid.index>",
		Short: "Remove a spent output from the index",
		Long: `Notify the lookup service that an output was spent.

Spending an output that is not indexed is not an error.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpend(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.OnTopic, "on-topic", "", "topic the output was spent from (default: tracked topic)")

	return cmd
}

// NewEvictCommand creates the evict command.
func NewEvictCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "evict <txid.index>",
		Short:         "Evict an output from the index regardless of topic",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvict(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func parseOutpointArg(arg string) (types.Outpoint, error) {
	op, err := types.ParseOutpoint(arg)
	if err != nil {
		return types.Outpoint{}, WrapExitError(ExitCommandError, "invalid outpoint", err)
	}
	return op, nil
}

func (o *IndexOptions) lockingScript() (*script.Script, error) {
	hexStr := o.Script
	if o.ScriptFile != "" {
		data, err := os.ReadFile(o.ScriptFile)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read script file", err)
		}
		hexStr = string(data)
	}
	s, err := script.NewFromHex(strings.TrimSpace(hexStr))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid script hex", err)
	}
	return s, nil
}

func runAdmit(opts *IndexOptions, cmd *cobra.Command, arg string) error {
	op, err := parseOutpointArg(arg)
	if err != nil {
		return err
	}
	lockingScript, err := opts.lockingScript()
	if err != nil {
		return err
	}

	e, err := opts.open()
	if err != nil {
		return err
	}
	defer e.Close()

	topic := opts.OnTopic
	if topic == "" {
		topic = e.svc.Topic()
	}
	if err := e.svc.OutputAdmitted(op, topic, lockingScript); err != nil {
		return serviceError("failed to admit output", err)
	}

	action := "admitted"
	if topic != e.svc.Topic() {
		action = "ignored"
	}
	return outputIndexResult(cmd, opts.Format, IndexResult{Outpoint: op, Topic: topic, Action: action})
}

func runSpend(opts *IndexOptions, cmd *cobra.Command, arg string) error {
	op, err := parseOutpointArg(arg)
	if err != nil {
		return err
	}

	e, err := opts.open()
	if err != nil {
		return err
	}
	defer e.Close()

	topic := opts.OnTopic
	if topic == "" {
		topic = e.svc.Topic()
	}
	if err := e.svc.OutputSpent(op, topic); err != nil {
		return serviceError("failed to remove output", err)
	}

	action := "removed"
	if topic != e.svc.Topic() {
		action = "ignored"
	}
	return outputIndexResult(cmd, opts.Format, IndexResult{Outpoint: op, Topic: topic, Action: action})
}

func runEvict(opts *RootOptions, cmd *cobra.Command, arg string) error {
	op, err := parseOutpointArg(arg)
	if err != nil {
		return err
	}

	e, err := opts.open()
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.svc.OutputEvicted(op); err != nil {
		return serviceError("failed to evict output", err)
	}
	return outputIndexResult(cmd, opts.Format, IndexResult{Outpoint: op, Action: "removed"})
}

func outputIndexResult(cmd *cobra.Command, format string, res IndexResult) error {
	return output(cmd.OutOrStdout(), format, res, func(w io.Writer) {
		switch res.Action {
		case "ignored":
			fmt.Fprintf(w, "Ignored %s (topic %s is not tracked)\n", res.Outpoint, res.Topic)
		case "admitted":
			fmt.Fprintf(w, "Admitted %s\n", res.Outpoint)
		default:
			fmt.Fprintf(w, "Removed %s\n", res.Outpoint)
		}
	})
}
