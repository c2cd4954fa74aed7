package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/clhorde/clhorde/internal/api"
	"github.com/clhorde/clhorde/internal/ipcclient"
)

var killCmd = &cobra.Command{
	Use:   "kill [prompt-id]",
	Short: "Kill a running prompt's worker",
	Args:  cobra.ExactArgs(1),
	RunE:  runKill,
}

func init() {
	rootCmd.AddCommand(killCmd)
}

func runKill(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid prompt id %q: %w", args[0], err)
	}
	_, err = ipcclient.Request(socketPath, api.ClientRequest{Type: api.ReqKillWorker, PromptID: id})
	if err != nil {
		return err
	}
	fmt.Printf("killed prompt %d\n", id)
	return nil
}
