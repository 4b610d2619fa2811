package daemonsrv

import (
	"context"
	"testing"
	"time"
)

func TestActivityTracker_TouchResetsIdle(t *testing.T) {
	tr := newActivityTracker(time.Hour)
	time.Sleep(2 * time.Millisecond)
	if tr.IdleFor() <= 0 {
		t.Fatal("expected nonzero idle time after sleeping")
	}
	tr.Touch()
	if tr.IdleFor() >= 2*time.Millisecond {
		t.Fatal("expected Touch to reset idle time close to zero")
	}
}

func TestActivityTracker_RequestShutdownIsIdempotent(t *testing.T) {
	tr := newActivityTracker(time.Hour)
	tr.RequestShutdown()
	tr.RequestShutdown() // must not panic on double-close

	select {
	case <-tr.ShutdownRequested():
	default:
		t.Fatal("expected ShutdownRequested channel to be closed")
	}
}

func TestActivityTracker_BackdatedIdleAndRunStopsOnCancel(t *testing.T) {
	tr := newActivityTracker(1)
	// Run's ticker waits inactivityCheckInterval (one minute), so this test
	// does not wait for it to fire: it checks IdleFor against a backdated
	// timestamp and that Run returns once ctx is cancelled.
	tr.lastActivityUnixNano.Store(time.Now().Add(-time.Hour).UnixNano())
	if tr.IdleFor() < 30*time.Minute {
		t.Fatal("expected IdleFor to reflect the backdated last-activity timestamp")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()
	<-ctx.Done()
	<-done
}
