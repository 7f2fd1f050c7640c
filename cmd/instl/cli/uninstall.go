package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/instl-run/instl/pkg/indexstore"
)

func newUninstallCmd() *cobra.Command {
	var indexPath, requirePath string
	cmd := &cobra.Command{
		Use:   "uninstall [targets...]",
		Short: "Mark the given targets for removal and print their reverse dependencies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := buildStore(indexPath, requirePath)
			if err != nil {
				return err
			}
			existing, orphans := store.IidsFromIids(args)
			if len(orphans) > 0 {
				fmt.Printf("unknown targets: %v\n", orphans)
			}
			store.ChangeStatus(indexstore.StatusRemove, existing)
			fmt.Printf("marked for removal: %v\n", existing)
			for _, iid := range existing {
				requireBy, deprecated := store.ReverseDependencies(iid)
				if len(requireBy) > 0 {
					fmt.Printf("  %s is required by: %v\n", iid, requireBy)
				}
				if len(deprecated) > 0 {
					fmt.Printf("  %s has deprecated require_by entries: %v\n", iid, deprecated)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&indexPath, "index", "index.yaml", "path to index document")
	cmd.Flags().StringVar(&requirePath, "require", "", "path to require document")
	return cmd
}
