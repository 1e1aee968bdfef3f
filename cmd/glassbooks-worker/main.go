package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"glassbooks/internal/amqp"
	"glassbooks/internal/config"
	applog "glassbooks/internal/log"
	gsheet "glassbooks/internal/sheets/google"
	"glassbooks/internal/storage"
	"glassbooks/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentWorker,
	})
	slog.SetDefault(logger.Logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// The mirror worker reads the authoritative ledger straight from the
	// snapshot database the server writes.
	if cfg.DataBackend != "sqlite" {
		logger.Error("Mirror worker requires the sqlite backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("Mirror worker requires GOOGLE_SPREADSHEET_ID")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open snapshot database", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()

	sheetsClient, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsFile: cfg.GoogleCredentialsFile,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	mirror := worker.NewMirrorWorker(store, sheetsClient, sheetsClient)

	group, ctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		group.Go(func() error {
			return amqp.ConsumeWithReconnect(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, func(evt *amqp.LedgerEvent) error {
				return mirror.HandleEvent(ctx, evt)
			})
		})
	} else {
		logger.Info("AMQP disabled - mirroring by periodic reconcile only")
	}

	group.Go(func() error {
		return mirror.RunPeriodicReconcile(ctx, cfg.ReconcileInterval)
	})

	logger.Info("Starting glassbooks-worker", "reconcile_interval", cfg.ReconcileInterval.String())

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
