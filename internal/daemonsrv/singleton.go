// Package daemonsrv is the daemon's gRPC/UDS server: it implements
// daemonrpc.Server against an internal/convmgr.Manager and
// internal/storage.Store, enforces the singleton-daemon guard, and tracks
// inactivity for voluntary shutdown (spec.md §4.6).
package daemonsrv

import (
	"fmt"
	"os"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/neuromance/neuromance-go/internal/domain"
	"github.com/neuromance/neuromance-go/internal/storage"
)

// AcquireSingleton enforces spec.md §4.4/§4.6's duplicate-daemon guard: it
// refuses to proceed if store's PID file names a still-alive process, and
// otherwise takes the advisory lock at store.LockPath() so two daemons
// racing to start serialize on the same decision. The returned *flock.Flock
// must be released (and its lock file left in place, like the teacher's
// gofrs/flock callers) once the caller either exits or finishes startup.
func AcquireSingleton(store *storage.Store) (*flock.Flock, error) {
	lock := flock.New(store.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeInternal, fmt.Errorf("acquire daemon lock: %w", err))
	}
	if !locked {
		return nil, domain.NewDomainError(domain.ErrCodeInternal, "another daemon is starting up (lock held)")
	}

	if pid, ok := store.ReadPID(); ok && processAlive(pid) {
		_ = lock.Unlock()
		return nil, domain.NewDomainError(domain.ErrCodeInternal, fmt.Sprintf("daemon already running (pid %d)", pid))
	}

	// A PID file with no live process, or a stale socket left by a crashed
	// prior instance, belongs to a dead daemon: clean both up before this
	// instance claims them.
	_ = store.RemovePID()
	removeStaleSocket(store.SocketPath())

	return lock, nil
}

// processAlive reports whether pid names a live process, the way
// internal/gateway/singleton_lock.go's stale-lock check does: os.FindProcess
// always succeeds on Unix, so liveness requires sending signal 0.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func removeStaleSocket(path string) {
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
}
