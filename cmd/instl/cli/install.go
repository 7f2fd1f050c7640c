package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/instl-run/instl/pkg/batch"
	"github.com/instl-run/instl/pkg/executor"
	"github.com/instl-run/instl/pkg/planner"
)

func newInstallCmd() *cobra.Command {
	var indexPath, requirePath string
	cmd := &cobra.Command{
		Use:   "install [targets...]",
		Short: "Plan, render, and execute the install batch for the given targets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore(indexPath, requirePath)
			if err != nil {
				return err
			}
			vars := newVarStore()
			p := planner.Plan(store, vars, args, nil)
			acc := buildCopyBatch(store, p)

			root := &executor.Step{Name: "Batch", IsContextManager: true}
			for _, folder := range acc.OpsIn(batch.SectionCopy) {
				root.Children = append(root.Children, executeStep(folder))
			}
			ctx := executor.NewContext(vars, acc.TotalProgressCount())
			if err := executor.Run(ctx, root); err != nil {
				return err
			}
			fmt.Println("install complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&indexPath, "index", "index.yaml", "path to index document")
	cmd.Flags().StringVar(&requirePath, "require", "", "path to require document")
	return cmd
}
