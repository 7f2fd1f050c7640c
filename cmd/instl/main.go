// Command instl is the installer/updater orchestrator's command-line
// entry point: plan, sync, and execute installs against a configured set
// of remote repositories.
package main

import (
	"fmt"
	"os"

	"github.com/instl-run/instl/cmd/instl/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
