package process

import (
	"context"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier reports service state to systemd over NOTIFY_SOCKET. Outside
// systemd every call is a no-op.
type Notifier struct {
	notify   func(unsetEnv bool, state string) (bool, error)
	watchdog func(unsetEnv bool) (time.Duration, error)
	logger   Logger
}

// NewNotifier creates a notifier bound to the real notify socket.
func NewNotifier(logger Logger) *Notifier {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Notifier{
		notify:   daemon.SdNotify,
		watchdog: daemon.SdWatchdogEnabled,
		logger:   logger,
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(false, state)
	switch {
	case err != nil:
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
	case sent:
		n.logger.Debug("sd_notify sent", "state", state)
	}
}

// Ready reports that boot finished.
func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

// Stopping reports that shutdown began.
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// RunWatchdog pings the watchdog at half the configured interval until ctx
// is cancelled. It returns at once when no watchdog is configured.
func (n *Notifier) RunWatchdog(ctx context.Context) {
	interval, err := n.watchdog(false)
	if err != nil {
		n.logger.Warn("reading watchdog interval", "error", err)
		return
	}
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	n.logger.Info("systemd watchdog enabled", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}

// RebootRequest carries a single restart request from anywhere in the
// node to the main goroutine.
type RebootRequest struct {
	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	reason string
}

// NewRebootRequest creates an unsignalled request.
func NewRebootRequest() *RebootRequest {
	return &RebootRequest{done: make(chan struct{})}
}

// Request asks for a restart. Only the first reason is kept.
func (r *RebootRequest) Request(reason string) {
	r.once.Do(func() {
		r.mu.Lock()
		r.reason = reason
		r.mu.Unlock()
		close(r.done)
	})
}

// Done is closed once a restart has been requested.
func (r *RebootRequest) Done() <-chan struct{} {
	return r.done
}

// Reason returns the first requested reason, or "".
func (r *RebootRequest) Reason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}
