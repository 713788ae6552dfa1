package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bsv-blockchain/ump-services/internal/ump"
)

// NewDocsCommand creates the docs command.
func NewDocsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "docs",
		Short:         "Print the lookup service documentation",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := ump.Documentation
			return output(cmd.OutOrStdout(), rootOpts.Format, map[string]string{"documentation": doc}, func(w io.Writer) {
				fmt.Fprint(w, doc)
			})
		},
	}
}

// NewMetadataCommand creates the metadata command.
func NewMetadataCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "metadata",
		Short:         "Print the lookup service metadata",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			md := ump.Metadata()
			return output(cmd.OutOrStdout(), rootOpts.Format, md, func(w io.Writer) {
				fmt.Fprintf(w, "Name:        %s\n", md.Name)
				fmt.Fprintf(w, "Description: %s\n", md.Description)
			})
		},
	}
}
