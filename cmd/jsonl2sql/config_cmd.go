package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML and validate it",
		Long: `config prints the configuration after layering defaults, the config file,
JSONL2SQL_* environment variables and flags. Issues are printed to stderr;
the command fails when any of them is an error.`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if c.cfgUsed != "" {
				fmt.Fprintf(out, "# file: %s\n", c.cfgUsed)
			}
			b, err := c.cfg.YAML()
			if err != nil {
				return err
			}
			if _, err := out.Write(b); err != nil {
				return err
			}
			return c.requireValid()
		},
	}
}
