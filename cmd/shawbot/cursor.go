package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"shawbot/internal/app"
	"shawbot/internal/cursor"
	"shawbot/internal/document"
	"shawbot/internal/storage"
	logx "shawbot/pkg/logx"
)

func newCursorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect or move the persisted cursor",
		Long: `Cursor commands work on the configured store directly. A running daemon
keeps its own copy of the cursor; changes made here are picked up on its
next start.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the persisted cursor",
			Args:  cobra.NoArgs,
			RunE: withStore(func(cmd *cobra.Command, st storage.Store, list []string, args []string) error {
				pos, err := st.GetCursor(cmd.Context())
				if errors.Is(err, cursor.ErrNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), "cursor: not set (starts at 0:0)")
					return nil
				}
				if err != nil {
					return err
				}
				doc := "(past end of list)"
				if pos.Doc < len(list) {
					doc = list[pos.Doc]
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cursor: %s  document=%s\n", pos, doc)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Move the cursor to the first fragment of the first document",
			Args:  cobra.NoArgs,
			RunE: withStore(func(cmd *cobra.Command, st storage.Store, _ []string, args []string) error {
				return moveCursor(cmd, st, "reset", cursor.Position{})
			}),
		},
		&cobra.Command{
			Use:   "set <doc> <frag>",
			Short: "Move the cursor to a document and fragment index",
			Args:  cobra.ExactArgs(2),
			RunE: withStore(func(cmd *cobra.Command, st storage.Store, list []string, args []string) error {
				pos, err := parsePosition(args[0], args[1])
				if err != nil {
					return err
				}
				if pos.Doc >= len(list) {
					return fmt.Errorf("doc %d is out of range (list has %d documents)", pos.Doc, len(list))
				}
				return moveCursor(cmd, st, "set", pos)
			}),
		},
	)
	return cmd
}

type storeFunc func(cmd *cobra.Command, st storage.Store, list []string, args []string) error

// withStore opens the configured store and reads the document list around fn.
func withStore(fn storeFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		list, err := document.ReadList(cfg.Feed.List)
		if err != nil {
			return fmt.Errorf("document list: %w", err)
		}
		st, err := app.OpenStore(cfg, logx.Nop())
		if err != nil {
			return err
		}
		defer st.Close()
		return fn(cmd, st, list, args)
	}
}

func moveCursor(cmd *cobra.Command, st storage.Store, action string, pos cursor.Position) error {
	err := st.SetCursor(cmd.Context(), pos)
	e := storage.AuditEntry{At: time.Now().UTC(), Actor: "cli", Action: action, Doc: pos.Doc, Frag: pos.Frag, OK: err == nil}
	if err != nil {
		e.Error = err.Error()
	}
	_ = st.AppendAudit(cmd.Context(), e)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cursor: %s\n", pos)
	return nil
}

func parsePosition(doc, frag string) (cursor.Position, error) {
	d, err := strconv.Atoi(doc)
	if err != nil || d < 0 {
		return cursor.Position{}, fmt.Errorf("doc must be a non-negative integer, got %q", doc)
	}
	f, err := strconv.Atoi(frag)
	if err != nil || f < 0 {
		return cursor.Position{}, fmt.Errorf("frag must be a non-negative integer, got %q", frag)
	}
	return cursor.Position{Doc: d, Frag: f}, nil
}
