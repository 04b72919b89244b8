package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"shawbot/internal/app"
	"shawbot/internal/dispatch"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running publisher",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newControlClient(cmd)
			if err != nil {
				return err
			}
			var snap dispatch.Snapshot
			if err := c.do(cmd.Context(), http.MethodGet, "/status", &snap); err != nil {
				return err
			}
			if raw, _ := cmd.Flags().GetBool("json"); raw {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			printStatus(cmd.OutOrStdout(), colorProfile(cmd.OutOrStdout()), snap, time.Now())
			return nil
		},
	}
	addControlFlags(cmd)
	cmd.Flags().Bool("json", false, "print the raw status document")
	return cmd
}

// colorProfile disables styling unless w is a terminal.
func colorProfile(w io.Writer) termenv.Profile {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return termenv.Ascii
	}
	return termenv.EnvColorProfile()
}

var stateColors = map[string]string{
	"running": "#22c55e",
	"paused":  "#eab308",
	"stopped": "#ef4444",
	"idle":    "#94a3b8",
}

func printStatus(w io.Writer, p termenv.Profile, s dispatch.Snapshot, now time.Time) {
	state := p.String(strings.ToUpper(s.State)).Bold()
	if c, ok := stateColors[s.State]; ok {
		state = state.Foreground(p.Color(c))
	}
	line := fmt.Sprintf("%s  cursor=%s", state, s.Position)
	switch {
	case s.State == "paused":
		line += "  paused"
	case !s.RunningSince.IsZero():
		line += "  running for " + now.Sub(s.RunningSince).Round(time.Second).String()
	}
	fmt.Fprintln(w, line)

	if s.Document != "" {
		fmt.Fprintf(w, "  document   %s (%d fragments)\n", s.Document, s.Fragments)
	}
	fmt.Fprintf(w, "  published  %d\n", s.Published)
	if s.State == "running" && !s.NextTick.IsZero() {
		fmt.Fprintf(w, "  next tick  %s (in %s)\n", s.NextTick.Local().Format(time.RFC3339), s.NextTick.Sub(now).Round(time.Second))
	}
	if s.Failures > 0 {
		fail := p.String(fmt.Sprintf("%d consecutive", s.Failures)).Foreground(p.Color("#ef4444"))
		fmt.Fprintf(w, "  failures   %s\n", fail)
	}
	if !s.RetryAt.IsZero() {
		fmt.Fprintf(w, "  retry at   %s\n", s.RetryAt.Local().Format(time.RFC3339))
	}
	if s.LastError != "" {
		fmt.Fprintf(w, "  last error %s\n", p.String(s.LastError).Faint())
	}
}

// controlClient talks to the daemon's control surface.
type controlClient struct {
	base  string
	token string
	http  *http.Client
}

func addControlFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", "", "control surface base URL (default from control.addr)")
	cmd.Flags().Duration("timeout", 10*time.Second, "request timeout")
}

func newControlClient(cmd *cobra.Command) (*controlClient, error) {
	base, _ := cmd.Flags().GetString("url")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	var token string
	if base == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		if !cfg.Control.Enabled {
			return nil, fmt.Errorf("control surface is disabled in %s", configPath(cmd))
		}
		base, token = app.ControlURL(cfg), cfg.Control.Token
	}
	return &controlClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}, nil
}

type apiError struct {
	Error string `json:"error"`
}

func (c *controlClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, ae.Error)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
