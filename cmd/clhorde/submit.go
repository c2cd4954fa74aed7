package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clhorde/clhorde/internal/api"
	"github.com/clhorde/clhorde/internal/ipcclient"
)

var (
	submitCWD      string
	submitMode     string
	submitWorktree bool
)

var submitCmd = &cobra.Command{
	Use:   "submit [text...]",
	Short: "Submit a new prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitCWD, "cwd", "", "working directory for the worker")
	submitCmd.Flags().StringVar(&submitMode, "mode", "oneshot", "oneshot or interactive")
	submitCmd.Flags().BoolVar(&submitWorktree, "worktree", false, "run in a separate git worktree on its own branch")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	mode := api.Mode(submitMode)
	if mode != api.ModeOneShot && mode != api.ModeInteractive {
		return fmt.Errorf("invalid --mode %q, want oneshot or interactive", submitMode)
	}

	evt, err := ipcclient.Request(socketPath, api.ClientRequest{
		Type:     api.ReqSubmitPrompt,
		Text:     strings.Join(args, " "),
		CWD:      submitCWD,
		Mode:     mode,
		Worktree: submitWorktree,
	})
	if err != nil {
		return err
	}
	if evt.Prompt == nil {
		return fmt.Errorf("daemon accepted submit but returned no prompt")
	}
	fmt.Printf("submitted prompt %d\n", evt.Prompt.ID)
	return nil
}
