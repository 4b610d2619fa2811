// Command neuromanced is the background daemon internal/client auto-spawns
// (or an operator starts directly): it owns the data directory, serves the
// gRPC API over a Unix-domain socket, and exits on an idle timeout or an
// explicit shutdown (spec.md §4.6). Structured the way cmd/nexus-edge's
// single-command daemon entrypoint is: one cobra.Command, flags bound
// directly to its config, signal-driven graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neuromance/neuromance-go/internal/config"
	"github.com/neuromance/neuromance-go/internal/convmgr"
	"github.com/neuromance/neuromance-go/internal/daemonsrv"
	"github.com/neuromance/neuromance-go/internal/storage"
	"github.com/neuromance/neuromance-go/internal/toolregistry"
)

// Version is the daemon's build version, overridden at build time with
// -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "neuromanced",
		Short: "neuromance conversation daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultDaemonConfigPath(), "Path to YAML daemon configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		slog.Error("neuromanced exited with an error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.LoadDaemonConfig(configPath)
	if err != nil {
		return fmt.Errorf("load daemon config: %w", err)
	}
	if err := cfg.WatchForChanges(ctx, func(err error) {
		slog.Warn("config reload failed, keeping previous settings", "error", err)
	}); err != nil {
		slog.Warn("config hot-reload disabled", "error", err)
	}
	defer cfg.StopWatching()

	store, err := storage.New()
	if err != nil {
		return fmt.Errorf("open data directory: %w", err)
	}

	lock, err := daemonsrv.AcquireSingleton(store)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	manager := convmgr.New(store, cfg, toolregistry.NewRegistry())
	srv := daemonsrv.New(store, manager, cfg.SnapshotSettings().IdleTimeout)

	slog.Info("neuromance daemon starting",
		"version", Version,
		"socket", store.SocketPath(),
		"config", configPath,
		"idle_timeout", cfg.SnapshotSettings().IdleTimeout,
	)
	start := time.Now()
	err = srv.Serve(ctx)
	slog.Info("neuromance daemon stopped", "uptime", time.Since(start))
	return err
}
