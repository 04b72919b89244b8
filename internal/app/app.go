// Package app wires the configured components into a running process and
// applies config reloads to them.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shawbot/internal/config"
	"shawbot/internal/control"
	"shawbot/internal/credentials"
	"shawbot/internal/cursor"
	"shawbot/internal/dispatch"
	"shawbot/internal/document"
	"shawbot/internal/eventbus"
	"shawbot/internal/metrics"
	"shawbot/internal/publish"
	"shawbot/internal/publish/telegram"
	"shawbot/internal/runtime/supervisor"
	"shawbot/internal/schedule"
	"shawbot/internal/storage"
	logx "shawbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config
	set  settings

	log  logx.Logger
	logs *logx.Service

	bus     eventbus.Bus
	store   storage.Store
	metrics *metrics.Metrics
	loop    *dispatch.Loop
	ticker  *schedule.Ticker
	control *control.Server

	sup    *supervisor.Supervisor
	notify notifier
}

// New loads the config at cfgPath and builds every component. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath, logx.NewConsole("INFO").With(logx.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	set, err := mapSettings(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfgPath, err)
	}

	logSvc, root := logx.New(set.logging)
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, cfg: cfg, set: set, log: log, logs: logSvc, notify: systemdNotifier{}}
	if err := a.build(root); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(root logx.Logger) error {
	store, err := storage.Open(a.set.storage, root.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	a.store = store

	pub, err := buildPublisher(a.set, root.With(logx.String("comp", "publish")))
	if err != nil {
		_ = store.Close()
		return err
	}

	a.bus = eventbus.New()
	a.metrics = metrics.New()
	a.metrics.GaugeFunc("eventbus_dropped", "Events not delivered to a full subscriber.", func() float64 {
		return float64(a.bus.Dropped())
	})

	cur := cursor.New(store, root.With(logx.String("comp", "cursor")))
	loader := document.NewLoader(a.set.seg, a.set.tagMarker)
	a.loop = dispatch.New(a.set.dispatch, cur, loader, pub,
		dispatch.WithLogger(root.With(logx.String("comp", "dispatch"))),
		dispatch.WithBus(a.bus),
		dispatch.WithMetrics(a.metrics),
		dispatch.WithAudit(store),
	)

	a.ticker, err = schedule.New(a.set.schedule, a.loop.Tick, root.With(logx.String("comp", "schedule")))
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("feed.schedule: %w", err)
	}

	if a.set.control.Enabled {
		clog := root.With(logx.String("comp", "control"))
		h := control.NewHandler(a.loop, control.Options{
			Token:    a.set.control.Token,
			Pprof:    a.set.control.Pprof,
			Metrics:  a.metrics.Handler(),
			Bus:      a.bus,
			Log:      clog,
			NextTick: a.ticker.Next,
		})
		a.control = control.NewServer(a.set.control.Addr, h, clog)
	}
	a.log.Info("storage ready", logx.String("driver", orDefault(a.set.storage.Driver, "file")))
	return nil
}

func buildPublisher(s settings, log logx.Logger) (publish.Publisher, error) {
	var p publish.Publisher
	switch s.publisher.Driver {
	case "telegram":
		creds, err := credentials.Load(s.credentials)
		if err != nil {
			return nil, fmt.Errorf("credentials: %w", err)
		}
		log.Debug("credentials loaded", logx.Any("present", creds.Redacted()))
		if strings.TrimSpace(creds.AccessToken) == "" {
			return nil, fmt.Errorf("credentials: access token is required for the telegram publisher")
		}
		tp, err := telegram.New(telegram.Config{
			Token:   creds.AccessToken,
			Chat:    s.publisher.Chat,
			URL:     s.publisher.APIURL,
			Timeout: s.dispatch.PublishTimeout,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		p = tp
	default:
		log.Warn("dry-run publisher: fragments are logged, not posted")
		p = publish.NewDryRun(log)
	}
	return publish.Limited(p, s.publisher.RatePerHour), nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// Loop exposes the dispatch loop to the CLI and tests.
func (a *App) Loop() *dispatch.Loop { return a.loop }

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	sctx := a.sup.Context()

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := mapSettings(cfg)
		return err
	})

	a.ticker.Start(sctx)

	if a.control != nil {
		a.sup.Go("control.http", a.control.Serve)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", string(e.Type)), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.apply", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	if a.set.autostart {
		if err := a.loop.Start(dispatch.WithActor(sctx, "autostart")); err != nil {
			a.log.Warn("autostart failed", logx.Err(err))
		}
	}

	a.startWatchdog()
	a.notify.Ready()
	a.log.Info("app started",
		logx.String("schedule", a.ticker.Spec().String()),
		logx.Bool("autostart", a.set.autostart),
		logx.String("state", a.loop.State().String()),
		logx.Time("next_tick", a.ticker.Next()),
	)
	return nil
}

// applyConfig takes the live parts of a reloaded config and reports the rest.
func (a *App) applyConfig(cfg *config.Config) {
	set, err := mapSettings(cfg)
	if err != nil {
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}
	a.notify.Reloading()
	defer a.notify.Ready()

	prev := a.set
	ch := config.Diff(a.cfg, cfg)
	a.cfg = cfg
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(set.logging)
	a.set.logging = set.logging

	if set.schedule != prev.schedule {
		if err := a.ticker.Apply(set.schedule); err != nil {
			a.log.Warn("schedule rejected; keeping previous", logx.Err(err))
		} else {
			a.set.schedule = set.schedule
			a.log.Info("schedule applied", logx.String("schedule", a.ticker.Spec().String()), logx.Time("next_tick", a.ticker.Next()))
		}
	}
	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config sections changed; restart required for them to take effect",
			logx.String("sections", strings.Join(ch.RestartRequired, ",")))
	}
	a.log.Info("config reloaded", ch.Fields()...)
}

// Stop shuts components down in reverse start order. Each step is bounded so
// one component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notify.Stopping()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		c, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(c); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	// The ticker waits for an in-flight publish so the cursor is saved first.
	step("ticker", a.set.dispatch.PublishTimeout+time.Second, func(c context.Context) error {
		a.ticker.Stop(c)
		return nil
	})
	a.sup.Cancel()
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
