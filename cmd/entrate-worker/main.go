package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"entrate/internal/amqp"
	"entrate/internal/cli"
	applog "entrate/internal/log"
	"entrate/internal/sheets"
	gsheet "entrate/internal/sheets/google"
	memmirror "entrate/internal/sheets/memory"
	"entrate/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)
	logger.Info("Starting entrate-worker")

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	be := cli.InitBackend(ctx, logger, cfg)
	defer be.Close()

	var mirror sheets.IncomeMirror
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.NewFromEnv(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleIncomesSheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		mirror = client
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, mirroring in memory")
		mirror = memmirror.New()
	}

	w := worker.NewMirrorWorker(be.Store, mirror, cfg.SyncConcurrency, logger.Logger)

	// Catch up on anything recorded while the worker was down.
	if stats, err := w.Backfill(ctx); err != nil {
		logger.Error("Startup backfill failed", applog.FieldError, err)
	} else {
		logger.Info("Startup backfill complete", "users", stats.Users, "appended", stats.Appended)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.RunPeriodicBackfill(gctx, cfg.SyncInterval)
	})
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.Logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		g.Go(func() error {
			return amqpClient.ConsumeIncomeRecorded(gctx, w.HandleIncomeRecorded)
		})
	} else {
		logger.Info("Skipping AMQP consumption - no AMQP_URL provided")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
