// Package main provides the FinTrack Go core entry point. The core is a
// platform-agnostic library; this binary runs a single sync pass from the
// command line, mainly for headless and diagnostic use.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/fintrack-app/fintrack/backend/internal/config"
	"github.com/fintrack-app/fintrack/backend/internal/db"
	"github.com/fintrack-app/fintrack/backend/internal/logging"
	"github.com/fintrack-app/fintrack/backend/internal/queue"
	"github.com/fintrack-app/fintrack/backend/internal/remote"
	"github.com/fintrack-app/fintrack/backend/internal/store"
	syncpkg "github.com/fintrack-app/fintrack/backend/internal/sync"
)

// Version is set at build time.
var Version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("FinTrack Core v%s\n", Version)
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	logOut := io.Writer(os.Stderr)
	if path := cfg.FinTrack.Logging.File; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	logging.Init(logOut, logging.LogLevel(cfg.FinTrack.Logging.Level))

	database, err := db.Open(cfg.FinTrack.Storage.DataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := db.NewMigrator(database.DB).Up(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	mirror := store.NewMirror(database.DB, store.QuotaConfig{
		MaxBytes:        cfg.FinTrack.Storage.MaxBytes,
		HighWater:       cfg.FinTrack.Storage.HighWater,
		LowWater:        cfg.FinTrack.Storage.LowWater,
		RetentionMonths: cfg.FinTrack.Storage.RetentionMonths,
	})

	syncCfg := cfg.FinTrack.Sync
	engine := syncpkg.NewEngine(syncpkg.Config{
		OwnerID:          syncCfg.OwnerID,
		PassTimeout:      syncCfg.PassTimeout,
		OpTimeout:        syncCfg.OpTimeout,
		MaxRetries:       syncCfg.MaxRetries,
		BreakerThreshold: syncCfg.BreakerThreshold,
		BreakerCooldown:  syncCfg.BreakerCooldown,
		WindowMonths:     syncCfg.WindowMonths,
		PageSize:         syncCfg.PageSize,
		LockPath:         syncCfg.LockFile,
	}, queue.New(database.DB), mirror, store.NewMeta(database.DB), remote.NewClient(remote.ClientConfig{
		Endpoint: cfg.FinTrack.Remote.Endpoint,
		APIKey:   cfg.FinTrack.Remote.APIKey,
		Timeout:  cfg.FinTrack.Remote.Timeout,
	}))

	result, err := engine.SyncAll(context.Background())
	if err != nil {
		log.Fatalf("Sync failed: %v", err)
	}
	fmt.Printf("Sync completed: drained=%d failed=%d conflicts=%d pulled=%d in %s\n",
		result.Drained, result.Failed, result.Conflicts, result.Pulled, result.Duration)
}
