package daemonsrv

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// inactivityCheckInterval is how often the background task compares idle
// time against the configured timeout (spec.md §4.6 "once per minute").
const inactivityCheckInterval = time.Minute

// activityTracker records a monotonic "last activity" timestamp, bumped on
// every RPC entry and every outbound chat chunk, and signals shutdownCh once
// the idle interval exceeds timeout.
type activityTracker struct {
	lastActivityUnixNano atomic.Int64
	timeout               time.Duration
	shutdownCh            chan struct{}
}

func newActivityTracker(timeout time.Duration) *activityTracker {
	t := &activityTracker{timeout: timeout, shutdownCh: make(chan struct{})}
	t.Touch()
	return t
}

// Touch records activity now.
func (t *activityTracker) Touch() {
	t.lastActivityUnixNano.Store(time.Now().UnixNano())
}

// IdleFor returns how long it has been since the last Touch.
func (t *activityTracker) IdleFor() time.Duration {
	last := time.Unix(0, t.lastActivityUnixNano.Load())
	return time.Since(last)
}

// ShutdownRequested returns a channel that closes once inactivity exceeds
// the configured timeout, or is closed directly by an explicit Shutdown RPC.
func (t *activityTracker) ShutdownRequested() <-chan struct{} {
	return t.shutdownCh
}

// RequestShutdown closes ShutdownRequested's channel if it hasn't already
// fired. Safe to call more than once.
func (t *activityTracker) RequestShutdown() {
	select {
	case <-t.shutdownCh:
	default:
		close(t.shutdownCh)
	}
}

// Run polls idle time once per inactivityCheckInterval until ctx is done or
// a shutdown is requested by some other path (e.g. the Shutdown RPC).
func (t *activityTracker) Run(ctx context.Context) {
	if t.timeout <= 0 {
		return
	}
	ticker := time.NewTicker(inactivityCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.shutdownCh:
			return
		case <-ticker.C:
			if idle := t.IdleFor(); idle >= t.timeout {
				slog.Info("daemon idle timeout reached, shutting down", "idle", idle, "timeout", t.timeout)
				t.RequestShutdown()
				return
			}
		}
	}
}
