package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "shawbot/pkg/logx"
)

// notifier reports lifecycle state to the service manager.
type notifier interface {
	Ready()
	Reloading()
	Stopping()
	Watchdog()
}

// systemdNotifier speaks sd_notify. Outside systemd (NOTIFY_SOCKET unset)
// every call is a no-op.
type systemdNotifier struct{}

func (systemdNotifier) Ready()     { _, _ = daemon.SdNotify(false, daemon.SdNotifyReady) }
func (systemdNotifier) Reloading() { _, _ = daemon.SdNotify(false, daemon.SdNotifyReloading) }
func (systemdNotifier) Stopping()  { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }
func (systemdNotifier) Watchdog()  { _, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog) }

// startWatchdog pings the systemd watchdog at half the configured interval
// while the supervisor runs. WatchdogSec unset means no pings.
func (a *App) startWatchdog() {
	every, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		a.log.Warn("systemd watchdog misconfigured", logx.Err(err))
		return
	}
	if every <= 0 {
		return
	}
	every /= 2
	a.log.Info("systemd watchdog enabled", logx.Duration("every", every))
	a.sup.Go0("systemd.watchdog", func(ctx context.Context) {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				a.notify.Watchdog()
			}
		}
	})
}
