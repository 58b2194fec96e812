// Package main provides the FinTrack desktop companion server. Desktop
// clients talk to it over REST/WebSocket on localhost; it owns the local
// mirror, the operation queue, and the background sync loop.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/fintrack-app/fintrack/backend/cmd/desktop/handlers"
	"github.com/fintrack-app/fintrack/backend/internal/config"
	"github.com/fintrack-app/fintrack/backend/internal/db"
	"github.com/fintrack-app/fintrack/backend/internal/export"
	"github.com/fintrack-app/fintrack/backend/internal/logging"
	"github.com/fintrack-app/fintrack/backend/internal/queue"
	"github.com/fintrack-app/fintrack/backend/internal/remote"
	"github.com/fintrack-app/fintrack/backend/internal/report"
	"github.com/fintrack-app/fintrack/backend/internal/store"
	syncpkg "github.com/fintrack-app/fintrack/backend/internal/sync"
	"github.com/fintrack-app/fintrack/backend/internal/sync/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

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

	dataDir := cfg.FinTrack.Storage.DataDir
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	database, err := db.Open(dataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Up(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	mirror := store.NewMirror(database.DB, store.QuotaConfig{
		MaxBytes:        cfg.FinTrack.Storage.MaxBytes,
		HighWater:       cfg.FinTrack.Storage.HighWater,
		LowWater:        cfg.FinTrack.Storage.LowWater,
		RetentionMonths: cfg.FinTrack.Storage.RetentionMonths,
	})
	meta := store.NewMeta(database.DB)
	opQueue := queue.New(database.DB)

	remoteClient := remote.NewClient(remote.ClientConfig{
		Endpoint: cfg.FinTrack.Remote.Endpoint,
		APIKey:   cfg.FinTrack.Remote.APIKey,
		Timeout:  cfg.FinTrack.Remote.Timeout,
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
	}, opQueue, mirror, meta, remoteClient)

	hub := NewWSHub()
	engine.SetEventHandler(hub.ForwardSyncEvent)

	sched := scheduler.NewScheduler(engine, &scheduler.Config{
		SyncInterval:  syncCfg.SyncInterval,
		QueueInterval: syncCfg.QueueInterval,
		PassTimeout:   syncCfg.PassTimeout,
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sched.Start(ctx)
	defer sched.Stop()

	owner := syncCfg.OwnerID
	syncHandler := handlers.NewSyncHandler(sched, opQueue)
	txHandler := handlers.NewTransactionsHandler(mirror, opQueue, owner)
	accountsHandler := handlers.NewAccountsHandler(mirror, opQueue, owner)
	categoriesHandler := handlers.NewCategoriesHandler(mirror, opQueue, owner)
	reportsHandler := handlers.NewReportsHandler(report.NewReporter(mirror), owner)
	dataHandler := handlers.NewDataHandler(mirror, opQueue, owner)
	exportHandler := handlers.NewExportHandler(export.NewService(mirror), owner)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"fintrack-desktop"}`))
	})
	mux.HandleFunc("GET /ws", HandleWebSocket(hub))

	mux.HandleFunc("GET /api/sync/status", syncHandler.GetStatus)
	mux.HandleFunc("POST /api/sync/now", syncHandler.SyncNow)
	mux.HandleFunc("POST /api/sync/online", syncHandler.SetOnline)
	mux.HandleFunc("GET /api/sync/failed", syncHandler.ListFailed)
	mux.HandleFunc("POST /api/sync/failed/retry", syncHandler.RetryFailed)

	mux.HandleFunc("GET /api/transactions", txHandler.List)
	mux.HandleFunc("POST /api/transactions", txHandler.Create)
	mux.HandleFunc("PATCH /api/transactions/{id}", txHandler.Edit)
	mux.HandleFunc("DELETE /api/transactions/{id}", txHandler.Delete)
	mux.HandleFunc("POST /api/transfers", txHandler.CreateTransfer)
	mux.HandleFunc("POST /api/recurring", txHandler.CreateRecurring)
	mux.HandleFunc("POST /api/installments", txHandler.CreateInstallments)

	mux.HandleFunc("GET /api/accounts", accountsHandler.List)
	mux.HandleFunc("POST /api/accounts", accountsHandler.Create)
	mux.HandleFunc("PATCH /api/accounts/{id}", accountsHandler.Edit)
	mux.HandleFunc("DELETE /api/accounts/{id}", accountsHandler.Delete)

	mux.HandleFunc("GET /api/categories", categoriesHandler.List)
	mux.HandleFunc("POST /api/categories", categoriesHandler.Create)
	mux.HandleFunc("PATCH /api/categories/{id}", categoriesHandler.Edit)
	mux.HandleFunc("DELETE /api/categories/{id}", categoriesHandler.Delete)

	mux.HandleFunc("GET /api/reports/balances", reportsHandler.Balances)
	mux.HandleFunc("GET /api/reports/cashflow", reportsHandler.CashFlow)

	mux.HandleFunc("POST /api/import/transactions", dataHandler.ImportTransactions)
	mux.HandleFunc("POST /api/import/accounts", dataHandler.ImportAccounts)
	mux.HandleFunc("POST /api/import/categories", dataHandler.ImportCategories)
	mux.HandleFunc("POST /api/data/clear", dataHandler.ClearAllData)
	mux.HandleFunc("POST /api/auth/signout", dataHandler.SignOut)
	mux.HandleFunc("POST /api/export", exportHandler.Export)

	addr := cfg.FinTrack.Desktop.ListenAddr
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	log.Printf("FinTrack Desktop Server starting on %s...", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
