package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
)

func TaxonomyCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "List tenets, traps and severity codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"tenets":     evaluation.Tenets,
					"traps":      evaluation.Traps,
					"severities": evaluation.Severities,
				})
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, t := range evaluation.Tenets {
				fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
				for _, tr := range evaluation.Traps {
					if tr.Tenet == t.Name {
						fmt.Fprintf(tw, "  %s\t%s\n", tr.ID, tr.Name)
					}
				}
			}
			fmt.Fprintln(tw)
			for _, s := range evaluation.Severities {
				fmt.Fprintf(tw, "%s\t%s\n", s.Code, s.Label)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
