package main

import (
	"context"

	"github.com/neuromance/neuromance-go/internal/client"
	"github.com/neuromance/neuromance-go/internal/storage"
)

// connect opens the data directory and connects to the daemon, auto-spawning
// it via daemonBinary if nothing is listening yet (spec.md §4.7).
func connect(ctx context.Context, daemonBinary string) (*client.Client, error) {
	store, err := storage.New()
	if err != nil {
		return nil, err
	}
	return client.Connect(ctx, store, daemonBinary)
}
