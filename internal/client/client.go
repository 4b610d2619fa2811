// Package client is the CLI-side counterpart to internal/daemonsrv: it
// connects to an already-running daemon over its Unix-domain socket,
// auto-spawning one if none is reachable (spec.md §4.7). Sequencing is
// grounded on the original neuromance-cli client's connect/spawn/backoff
// flow; the advisory spawn lock reuses internal/daemonsrv's
// github.com/gofrs/flock dependency so only one CLI invocation racing to
// start a daemon wins.
package client

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/neuromance/neuromance-go/internal/daemonrpc"
	"github.com/neuromance/neuromance-go/internal/domain"
	"github.com/neuromance/neuromance-go/internal/storage"
)

const (
	probeTimeout   = 200 * time.Millisecond
	socketWait     = 10 * time.Second
	backoffInitial = 50 * time.Millisecond
	backoffMax     = 500 * time.Millisecond
)

// Client wraps a dialed daemonrpc.Client with the connection it owns, so
// callers have a single Close to release both.
type Client struct {
	*daemonrpc.Client
	conn *grpc.ClientConn
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error { return c.conn.Close() }

// Connect reaches a running daemon at store's socket path, spawning
// daemonBinary (found via PATH, like the original's "is neuromance-daemon
// in PATH?") if none answers. It follows the original's sequence exactly:
// probe, check PID liveness, acquire the spawn lock, re-probe, spawn, wait,
// release, dial (spec.md §4.7).
func Connect(ctx context.Context, store *storage.Store, daemonBinary string) (*Client, error) {
	if probeSocket(store.SocketPath()) {
		return dial(store.SocketPath())
	}

	if pid, ok := store.ReadPID(); ok {
		if processAlive(pid) {
			if err := waitForSocket(ctx, store.SocketPath(), socketWait); err != nil {
				return nil, domain.WrapDomainError(domain.ErrCodeServiceUnavailable,
					fmt.Errorf("daemon (pid %d) running but socket unavailable: %w", pid, err))
			}
			return dial(store.SocketPath())
		}
		_ = store.RemovePID()
	}

	lock := flock.New(store.LockPath())
	if err := lock.Lock(); err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeInternal, fmt.Errorf("acquire spawn lock: %w", err))
	}
	defer lock.Unlock()

	// Another CLI invocation may have spawned the daemon while this one
	// waited for the lock.
	if probeSocket(store.SocketPath()) {
		return dial(store.SocketPath())
	}

	if err := spawnDaemon(daemonBinary, store.LogPath()); err != nil {
		return nil, err
	}
	if err := waitForSocket(ctx, store.SocketPath(), socketWait); err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeServiceUnavailable,
			fmt.Errorf("daemon did not open its socket in time: %w", err))
	}
	return dial(store.SocketPath())
}

// probeSocket reports whether something is listening at path right now,
// without going through gRPC's lazy-dial machinery.
func probeSocket(path string) bool {
	conn, err := net.DialTimeout("unix", path, probeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// waitForSocket polls probeSocket with the original's exponential backoff
// (50ms doubling to a 500ms ceiling) until timeout elapses or ctx is done.
func waitForSocket(ctx context.Context, path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	delay := backoffInitial
	for {
		if probeSocket(path) {
			return nil
		}
		if time.Now().Add(delay).After(deadline) {
			return fmt.Errorf("socket unavailable after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > backoffMax {
			delay = backoffMax
		}
	}
}

// processAlive mirrors internal/daemonsrv's liveness check: os.FindProcess
// always succeeds on Unix, so aliveness requires signalling it.
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

// spawnDaemon launches daemonBinary detached from the CLI's controlling
// terminal: stdin/stdout discarded, stderr appended to logPath, process
// group detached via Setsid so the daemon outlives the spawning CLI command
// (spec.md §4.7).
func spawnDaemon(daemonBinary, logPath string) error {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		logFile = nil
	}

	cmd := exec.Command(daemonBinary)
	cmd.Stdin = nil
	cmd.Stdout = nil
	if logFile != nil {
		cmd.Stderr = logFile
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return domain.WrapDomainError(domain.ErrCodeInternal,
			fmt.Errorf("spawn daemon (is %s in PATH?): %w", daemonBinary, err))
	}
	// The daemon is now its own session leader; release our handle on its
	// stderr file and detach from the child without waiting on it.
	if logFile != nil {
		_ = logFile.Close()
	}
	_ = cmd.Process.Release()
	return nil
}

// dial opens the gRPC connection to the Unix-domain socket at path using
// this module's JSON codec (internal/daemonrpc/codec.go) and wraps it in a
// daemonrpc.Client.
func dial(path string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix:"+path,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(daemonrpc.CodecName)),
	)
	if err != nil {
		return nil, domain.WrapDomainError(domain.ErrCodeServiceUnavailable, fmt.Errorf("dial daemon socket: %w", err))
	}
	return &Client{Client: daemonrpc.NewClient(conn), conn: conn}, nil
}
