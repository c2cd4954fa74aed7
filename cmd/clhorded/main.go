// clhorded is the daemon: it owns the prompt queue, the worker pool, and
// the Unix socket clients connect to. Run it once per machine; clhorde
// talks to it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "clhorded",
	Short:   "clhorde daemon",
	Long:    "clhorded owns the prompt queue and worker pool behind a Unix socket.",
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
