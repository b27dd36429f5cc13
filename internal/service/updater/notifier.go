package updater

import (
	"context"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/oshokin/os-updater/internal/logger"
)

// Notifier publishes a human readable status of the run.
type Notifier interface {
	Notify(ctx context.Context, status string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, status string)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, status string) {
	f(ctx, status)
}

// SystemdNotifier sends STATUS= updates to the service manager.
// Outside of a systemd service it does nothing.
type SystemdNotifier struct{}

// Notify sends status to systemd. Failures are logged and ignored.
func (SystemdNotifier) Notify(ctx context.Context, status string) {
	sent, err := daemon.SdNotify(false, "STATUS="+status)
	if err != nil {
		logger.WarnKV(ctx, "Could not notify service manager", "error", err)
		return
	}

	if sent {
		logger.DebugKV(ctx, "Notified service manager", "status", status)
	}
}
