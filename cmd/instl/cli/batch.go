package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/instl-run/instl/pkg/batch"
	"github.com/instl-run/instl/pkg/executor"
	"github.com/instl-run/instl/pkg/indexstore"
	"github.com/instl-run/instl/pkg/planner"
)

// buildCopyBatch renders the copy section of the accumulator: one
// context-manager op per target folder, with one essential copy call op
// per install_sources entry of every item installed into it. Args carry
// the (source, destination) pair executeStep turns into an RsyncClone step.
func buildCopyBatch(store *indexstore.Store, p *planner.Plan) *batch.Accumulator {
	acc := batch.New()
	for folder, entries := range p.ByTargetFolder {
		dir := &batch.Op{
			Name:             "CopyDirToDir",
			Args:             []string{folder},
			Essential:        true,
			IsContextManager: true,
			OwnProgressCount: 1,
		}
		for _, e := range entries {
			sources := store.GetDetailsAndTagForActiveIids("install_sources", []string{e.IID})
			if len(sources) == 0 {
				continue
			}
			for _, src := range sources {
				dir.Children = append(dir.Children, &batch.Op{
					Name:             "CopyItem",
					Args:             []string{src.Value, folder},
					Essential:        true,
					CallCall:         true,
					OwnProgressCount: 1,
				})
			}
		}
		_ = acc.Add(batch.SectionCopy, dir)
	}
	return acc
}

func newBatchCmd() *cobra.Command {
	var indexPath, requirePath string
	cmd := &cobra.Command{
		Use:   "batch [targets...]",
		Short: "Render the batch script for the given targets without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore(indexPath, requirePath)
			if err != nil {
				return err
			}
			vars := newVarStore()
			p := planner.Plan(store, vars, args, nil)
			acc := buildCopyBatch(store, p)
			fmt.Print(acc.Render())
			fmt.Printf("# total progress: %d\n", acc.TotalProgressCount())
			return nil
		},
	}
	cmd.Flags().StringVar(&indexPath, "index", "index.yaml", "path to index document")
	cmd.Flags().StringVar(&requirePath, "require", "", "path to require document")
	return cmd
}

// executeStep adapts a batch.Op tree into an executor.Step tree so the
// rendered batch can actually run, not just print. CopyItem ops carry a
// (source, destination folder) pair and are backed by the RsyncClone
// copy engine; everything else prints its call for now.
func executeStep(op *batch.Op) *executor.Step {
	if op.Name == "CopyItem" && op.CallCall && len(op.Args) == 2 {
		rsync := executor.NewRsyncCloneStep(op.Args[0], op.Args[1], executor.RsyncCloneOptions{
			PreferHardLinks: true,
			CopyStat:        true,
		})
		rsync.Essential = op.Essential
		rsync.OwnProgressCount = op.OwnProgressCount
		return rsync
	}

	step := &executor.Step{
		Name:             op.Name,
		Essential:        op.Essential,
		CallCall:         op.CallCall,
		IsContextManager: op.IsContextManager,
		OwnProgressCount: op.OwnProgressCount,
	}
	if op.CallCall {
		args := op.Args
		name := op.Name
		step.CallSelf = func(*executor.Context) error {
			fmt.Printf("%s(%v)\n", name, args)
			return nil
		}
	}
	for _, c := range op.Children {
		step.Children = append(step.Children, executeStep(c))
	}
	return step
}
