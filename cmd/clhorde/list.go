package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/clhorde/clhorde/internal/api"
	"github.com/clhorde/clhorde/internal/ipcclient"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all prompts known to the daemon",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	evt, err := ipcclient.Request(socketPath, api.ClientRequest{Type: api.ReqGetState})
	if err != nil {
		return err
	}
	if evt.State == nil {
		fmt.Println("no prompts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tMODE\tTEXT")
	for _, p := range evt.State.Prompts {
		text := p.Text
		if len(text) > 60 {
			text = text[:57] + "..."
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.ID, p.Status, p.Mode, text)
	}
	return w.Flush()
}
