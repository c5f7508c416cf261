package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rendis/conduit/internal/actions"
)

func newActionsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List the action catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog := actions.DefaultSchemaRegistry()
			if asJSON {
				return printJSON(cmd, catalog.Infos())
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPARAMETERS\tDESCRIPTION")
			for _, s := range catalog.List() {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", s.Name, len(s.Parameters), s.Description)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print names, descriptions and input schemas as JSON")
	return cmd
}
