package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clhorde/clhorde/internal/api"
	"github.com/clhorde/clhorde/internal/ipcclient"
)

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Ask the daemon to shut down gracefully",
	RunE:  runShutdown,
}

func init() {
	rootCmd.AddCommand(shutdownCmd)
}

func runShutdown(cmd *cobra.Command, args []string) error {
	_, err := ipcclient.Request(socketPath, api.ClientRequest{Type: api.ReqShutdown})
	if err != nil {
		return err
	}
	fmt.Println("shutdown requested")
	return nil
}
