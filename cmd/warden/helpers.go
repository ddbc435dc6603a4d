package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/filewarden/filewarden/internal/confidence"
	"github.com/filewarden/filewarden/internal/engine"
	"github.com/filewarden/filewarden/internal/identity"
	"github.com/filewarden/filewarden/internal/learning"
	"github.com/filewarden/filewarden/internal/oplog"
	"github.com/filewarden/filewarden/internal/staging"
	"github.com/filewarden/filewarden/internal/storage"
)

// app bundles the wired components behind the CLI commands.
type app struct {
	storage   *storage.SQLiteStorage
	engine    *engine.Engine
	scheduler *staging.Scheduler
	updater   *learning.Updater
}

// newApp opens the store and wires the full engine. Refusing to start
// without a working operation log is deliberate: there is no
// act-now-log-later mode.
func newApp(ctx context.Context) (*app, error) {
	dataDir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(filepath.Join(dataDir, "warden.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open operation log store: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	updater, err := learning.NewUpdater(ctx, store, learningConfig())
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	fs := oplog.NewOSFileSystem(viper.GetDuration("mutate.timeout"))
	rollback := oplog.NewEngine(store, fs)
	identitySvc := identity.NewService(identityConfig())

	eng := engine.New(store, identitySvc, rollback, updater, updater, engine.Config{
		Scoring:  scoringConfig(),
		TrashDir: filepath.Join(dataDir, "trash"),
	})

	scheduler := staging.NewScheduler(store, viper.GetDuration("staging.grace_period"))

	return &app{
		storage:   store,
		engine:    eng,
		scheduler: scheduler,
		updater:   updater,
	}, nil
}

// Close releases the store and its directory lock.
func (a *app) Close() {
	_ = a.storage.Close()
}

func resolveDataDir() (string, error) {
	if dir := viper.GetString("data.dir"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "warden"), nil
}

func identityConfig() identity.Config {
	cfg := identity.DefaultConfig()
	if partial := viper.GetInt64("identity.partial_bytes"); partial > 0 {
		cfg.PartialBytes = partial
	}
	cfg.MonitoredDirs = viper.GetStringSlice("dirs.monitored")
	cfg.ScratchDirs = viper.GetStringSlice("dirs.scratch")
	cfg.SensitiveDirs = viper.GetStringSlice("dirs.sensitive")
	return cfg
}

func scoringConfig() confidence.Config {
	cfg := confidence.DefaultConfig()
	if viper.IsSet("engine.auto_threshold") {
		cfg.AutoThreshold = viper.GetFloat64("engine.auto_threshold")
	}
	if viper.IsSet("engine.review_threshold") {
		cfg.ReviewThreshold = viper.GetFloat64("engine.review_threshold")
	}
	if viper.IsSet("engine.tie_margin") {
		cfg.TieMargin = viper.GetFloat64("engine.tie_margin")
	}
	if weights := viper.GetStringMap("engine.weights"); len(weights) > 0 {
		cfg.Weights = make(map[string]float64, len(weights))
		for signal := range weights {
			cfg.Weights[signal] = viper.GetFloat64("engine.weights." + signal)
		}
	}
	return cfg
}

func learningConfig() learning.Config {
	cfg := learning.DefaultConfig()
	if halfLife := viper.GetDuration("learning.half_life"); halfLife > 0 {
		cfg.HalfLife = halfLife
	}
	if floor := viper.GetFloat64("learning.relevance_floor"); floor > 0 {
		cfg.RelevanceFloor = floor
	}
	return cfg
}

// parseSince turns a --since duration flag into an absolute time.
func parseSince(since string) (time.Time, error) {
	d, err := time.ParseDuration(since)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", since, err)
	}
	return time.Now().Add(-d), nil
}
