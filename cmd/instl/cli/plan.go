package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/instl-run/instl/pkg/planner"
)

func newPlanCmd() *cobra.Command {
	var indexPath, requirePath string
	cmd := &cobra.Command{
		Use:   "plan [targets...]",
		Short: "Compute and print the install plan for the given targets",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore(indexPath, requirePath)
			if err != nil {
				return err
			}
			vars := newVarStore()
			p := planner.Plan(store, vars, args, nil)

			fmt.Printf("main:    %v\n", p.MainIids)
			fmt.Printf("update:  %v\n", p.UpdateIids)
			fmt.Printf("orphans: %v\n", p.OrphanTargets)
			for folder, entries := range p.ByTargetFolder {
				fmt.Printf("target folder %s:\n", folder)
				for _, e := range entries {
					fmt.Printf("  %s\n", e.IID)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&indexPath, "index", "index.yaml", "path to index document")
	cmd.Flags().StringVar(&requirePath, "require", "", "path to require document")
	return cmd
}
