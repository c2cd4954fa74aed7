// clhorde is a minimal client for clhorded, covering the verbs needed to
// drive and test the daemon end-to-end: submit, list, kill, ping, shutdown.
// The full operator TUI is out of scope; this talks to the same socket a
// richer client would.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clhorde/clhorde/internal/paths"
)

var (
	version    = "dev"
	socketPath string
)

var rootCmd = &cobra.Command{
	Use:     "clhorde",
	Short:   "clhorde client",
	Long:    "clhorde drives a running clhorded daemon over its Unix socket.",
	Version: version,
}

func init() {
	defaultSocket := os.Getenv("CLHORDE_SOCKET")
	if defaultSocket == "" {
		if dataDir, err := paths.DataDir(); err == nil {
			defaultSocket = paths.SocketPath(dataDir)
		}
	}
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", defaultSocket, "daemon Unix socket path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
