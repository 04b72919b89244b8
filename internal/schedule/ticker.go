// Package schedule delivers dispatch ticks from an interval or cron schedule.
package schedule

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "shawbot/pkg/logx"
)

type Config struct {
	Schedule string
	Timezone string // IANA name; empty means local
}

// Ticker calls fire once per schedule slot. A slot that arrives while the
// previous call is still running is skipped.
type Ticker struct {
	log  logx.Logger
	fire func(ctx context.Context)

	mu   sync.Mutex
	cfg  Config
	spec Spec
	c    *cron.Cron
	ctx  context.Context
}

func New(cfg Config, fire func(ctx context.Context), log logx.Logger) (*Ticker, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	spec, err := Parse(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if _, err := loadLocation(cfg.Timezone); err != nil {
		return nil, err
	}
	return &Ticker{log: log, fire: fire, cfg: cfg, spec: spec}, nil
}

func (t *Ticker) Spec() Spec {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spec
}

// Start begins delivering ticks; fire receives ctx. Start is a no-op when
// already running.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c != nil {
		return
	}
	t.ctx = ctx
	t.startLocked()
}

func (t *Ticker) startLocked() {
	loc, _ := loadLocation(t.cfg.Timezone)
	t.c = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{log: t.log}),
		cron.WithChain(cron.Recover(cronLogger{log: t.log}), cron.SkipIfStillRunning(cronLogger{log: t.log})),
	)
	ctx, fire := t.ctx, t.fire
	t.c.Schedule(t.spec.Schedule(), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		fire(ctx)
	}))
	t.c.Start()
	t.log.Info("ticker started", logx.String("schedule", t.spec.String()), logx.String("tz", loc.String()))
}

// Apply swaps the schedule. A running ticker is restarted on the new one.
func (t *Ticker) Apply(cfg Config) error {
	spec, err := Parse(cfg.Schedule)
	if err != nil {
		return err
	}
	if _, err := loadLocation(cfg.Timezone); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if cfg == t.cfg {
		return nil
	}
	t.cfg, t.spec = cfg, spec
	if t.c == nil {
		return nil
	}
	// Don't wait for an in-flight tick; the dispatch loop guards re-entrancy.
	t.c.Stop()
	t.startLocked()
	return nil
}

// Next reports when the next tick is due, or zero when stopped.
func (t *Ticker) Next() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c == nil {
		return time.Time{}
	}
	for _, e := range t.c.Entries() {
		return e.Next
	}
	return time.Time{}
}

// Stop halts tick delivery and waits for an in-flight tick until ctx expires.
func (t *Ticker) Stop(ctx context.Context) {
	t.mu.Lock()
	c := t.c
	t.c = nil
	t.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	t.log.Info("ticker stopped")
}

func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
