package publish

import (
	"context"
	"sync/atomic"
	"unicode/utf8"

	logx "shawbot/pkg/logx"
)

// DryRun logs each fragment instead of sending it and always succeeds.
type DryRun struct {
	log  logx.Logger
	sent atomic.Uint64
}

func NewDryRun(log logx.Logger) *DryRun {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &DryRun{log: log}
}

func (d *DryRun) Publish(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := d.sent.Add(1)
	d.log.Info("dry-run publish", logx.Uint64("seq", n), logx.Int("len", utf8.RuneCountInString(text)), logx.String("text", text))
	return nil
}

// Sent counts fragments that would have been published.
func (d *DryRun) Sent() uint64 { return d.sent.Load() }
