package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/analyst/config"
)

func agentsCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the agents the planner can choose from",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, d := range catalog.DescribeAll() {
				fmt.Fprintf(tw, "%s\t%s\n", d.Name, d.Purpose)
			}
			return tw.Flush()
		},
	}
}
