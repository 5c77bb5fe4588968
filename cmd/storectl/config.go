package main

import (
	"context"
	"fmt"

	"github.com/cuemby/warren/internal/config"
	"github.com/cuemby/warren/internal/store/blob"
	"github.com/cuemby/warren/internal/store/kv"
	"github.com/spf13/cobra"
)

// loadConfig reads the --config flag shared by every subcommand and
// initializes logging from it, mirroring the teacher's
// cobra.OnInitialize(initLogging) pattern but invoked per-command since
// storectl has no long-running process to initialize once at startup.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("storectl: load config: %w", err)
	}
	cfg.ApplyLogging()
	return cfg, nil
}

// openStore builds the kv.Store and blob.Store named by cfg, per
// internal/config's BuildStore.
func openStore(ctx context.Context, cfg config.Config) (kv.Store, *blob.Store, error) {
	kvStore, blobs, err := cfg.Store.BuildStore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("storectl: open store: %w", err)
	}
	return kvStore, blobs, nil
}
