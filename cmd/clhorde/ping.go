package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clhorde/clhorde/internal/api"
	"github.com/clhorde/clhorde/internal/ipcclient"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check whether the daemon is reachable",
	RunE:  runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	start := time.Now()
	evt, err := ipcclient.Request(socketPath, api.ClientRequest{Type: api.ReqPing})
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	if evt.Type != api.EvtPong {
		return fmt.Errorf("unexpected response %+v", evt)
	}
	fmt.Printf("pong (%s)\n", time.Since(start))
	return nil
}
