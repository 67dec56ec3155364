package agent

import (
	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"
)

// watchdog reports liveness to systemd. Outside systemd every call is a no-op.
type watchdog struct {
	notify func(state string) (bool, error)
	logger *zap.SugaredLogger
}

func newWatchdog(logger *zap.SugaredLogger) *watchdog {
	return &watchdog{
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		logger: logger,
	}
}

func (w *watchdog) Ready()    { w.send(daemon.SdNotifyReady) }
func (w *watchdog) Ping()     { w.send(daemon.SdNotifyWatchdog) }
func (w *watchdog) Stopping() { w.send(daemon.SdNotifyStopping) }

func (w *watchdog) send(state string) {
	if _, err := w.notify(state); err != nil {
		w.logger.Debugw("systemd notification failed", "state", state, "error", err)
	}
}
