package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"entrate/internal/amqp"
	"entrate/internal/cache"
	"entrate/internal/cli"
	apphttp "entrate/internal/http"
	"entrate/internal/income"
	applog "entrate/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	be := cli.InitBackend(context.Background(), logger, cfg)
	defer be.Close()

	// Events are optional. Without a broker the Sheets mirror catches up
	// through the worker's periodic backfill.
	var publisher income.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.Logger)
		if err != nil {
			logger.Warn("AMQP unavailable, income events disabled", applog.FieldError, err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("AMQP publisher ready", "exchange", cfg.AMQPExchange)
		}
	}

	if !cfg.TrustUserHeader {
		logger.Warn("TRUST_USER_HEADER is disabled, every request is anonymous and submissions are rejected")
	} else if cfg.UserCookieSecret == "" {
		logger.Info("USER_COOKIE_SECRET not set, identity comes from the proxy header only")
	}
	srv := apphttp.NewServer(":"+cfg.Port, be.Store, apphttp.OptionsFromConfig(cfg, publisher, logger))
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 15 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Logger)
	caches.Register("sessions", srv.Sessions().Cleaner())
	caches.StartCleanup(10 * time.Minute)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		caches.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	})

	logger.Info("Starting entrate server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"consistency_mode", cfg.ConsistencyMode)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
