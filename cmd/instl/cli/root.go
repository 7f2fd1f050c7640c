// Package cli wires the cobra command tree for the instl CLI: thin
// subcommands that load configuration, build the planning pipeline, and
// either print the resulting plan or hand it to the executor.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/instl-run/instl/pkg/config"
	"github.com/instl-run/instl/pkg/instllog"
)

var (
	cfgPath  string
	logLevel string
	cfg      *config.Config
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "instl",
		Short: "Declarative installer/updater orchestrator",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			cfg = loaded
			if logLevel != "" {
				cfg.Settings.LogLevel = logLevel
			}
			instllog.SetLevel(cfg.Settings.LogLevel)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to instl config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override configured log level")

	root.AddCommand(newPlanCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newInstallCmd())
	root.AddCommand(newUninstallCmd())
	root.AddCommand(newBatchCmd())
	return root
}
