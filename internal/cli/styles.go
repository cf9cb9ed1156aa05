package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"foto-produk-maker/internal/prompt"
)

func newStylesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List the style presets accepted by generate --style",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, p := range prompt.Presets() {
				fmt.Fprintf(w, "%s\t%s\n", p.Key, p.Name)
			}
			return w.Flush()
		},
	}
}
