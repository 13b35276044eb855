package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"jsonl2sql/internal/convert"
)

func newSchemaCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "schema [flags] SOURCE",
		Short: "Print the inferred schema and CREATE statement without writing anything",
		Long: `schema infers column names and types from the first parseable record of
SOURCE and prints the CREATE statement the selected backend would run.
No destination is opened.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireValid(); err != nil {
				return err
			}
			p, err := convert.PreviewSchema(cmd.Context(), args[0], c.cfg.Backend, c.cfg.Table)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "-- source: %s (line %d)\n", args[0], p.Line)
			fmt.Fprintf(out, "-- backend: %s\n", c.cfg.Backend)
			fmt.Fprintf(out, "-- schema: %s\n", p.Schema.String())
			fmt.Fprintf(out, "-- fingerprint: %016x\n", p.Schema.Fingerprint())
			fmt.Fprintln(out, p.DDL)
			return nil
		},
	}
}
