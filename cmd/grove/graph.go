package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph [project-root]",
		Short: "Print the resolved config graph for a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			lp, err := loadProject(cmd.Context(), root)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "project %s (%d modules)\n", lp.project.Name, len(lp.modules))
			for _, ref := range lp.graph.Refs() {
				deps := lp.graph.GetDependencies(ref, false, nil)
				fmt.Fprintf(out, "  %s  (module %s)\n", ref, lp.graph.Module(ref))
				for _, dep := range deps {
					fmt.Fprintf(out, "    -> %s\n", dep)
				}
			}
			return nil
		},
	}
}
