package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finflow/internal/amqp"
	"finflow/internal/config"
	"finflow/internal/httpapi"
	"finflow/internal/log"
	"finflow/internal/services"
	"finflow/internal/session"
	"finflow/internal/store"
	"finflow/internal/store/memory"
	"finflow/internal/store/sqlite"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.FieldError, err)
		os.Exit(1)
	}

	logger := log.New(log.Config{
		Level:     logLevel(cfg.LogLevel),
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)

	var remote store.RemoteStore
	switch cfg.DataBackend {
	case "sqlite":
		st, err := sqlite.New(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
			os.Exit(1)
		}
		defer st.Close()
		remote = st
		logger.Info("Initialized SQLite backend", log.FieldBackend, cfg.DataBackend, "db_path", cfg.SQLiteDBPath)
	default:
		remote = memory.New()
		logger.Info("Initialized memory backend", log.FieldBackend, cfg.DataBackend)
	}

	var notifier services.Notifier
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		notifier = client
		logger.Info("Connected to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	sess := session.New(session.Config{
		Store:      remote,
		Notifier:   notifier,
		Logger:     logger,
		Optimistic: cfg.Optimistic,
	})
	defer sess.Shutdown()

	if cfg.Identity != "" {
		if err := sess.Login(context.Background(), cfg.Identity); err != nil {
			logger.Error("Initial login failed", log.FieldError, err, log.FieldOwner, cfg.Identity)
			os.Exit(1)
		}
		logger.Info("Logged in", log.FieldOwner, cfg.Identity)
	}

	// Surface subscription failures in the logs.
	go func() {
		for e := range sess.SubscriptionErrors() {
			logger.Error("Subscription failure", log.FieldError, e.Err, log.FieldCollection, e.Query.CollectionPath)
		}
	}()

	srv := httpapi.NewServer(":"+cfg.Port, sess)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting finflow server", "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
