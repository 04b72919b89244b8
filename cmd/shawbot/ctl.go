package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"shawbot/internal/dispatch"
)

var ctlCommands = []struct {
	name  string
	short string
}{
	{"start", "Start publishing from the persisted cursor"},
	{"pause", "Pause publishing and keep the loaded document"},
	{"resume", "Resume after pause"},
	{"stop", "Stop publishing"},
	{"reset", "Move the cursor to the origin"},
}

func newCtlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Send a command to a running publisher",
	}
	for _, c := range ctlCommands {
		name := c.name
		sub := &cobra.Command{
			Use:   name,
			Short: c.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cl, err := newControlClient(cmd)
				if err != nil {
					return err
				}
				var resp struct {
					Status dispatch.Snapshot `json:"status"`
				}
				if err := cl.do(cmd.Context(), http.MethodPost, "/"+name, &resp); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (state=%s cursor=%s)\n", name, resp.Status.State, resp.Status.Position)
				return nil
			},
		}
		addControlFlags(sub)
		cmd.AddCommand(sub)
	}
	return cmd
}
