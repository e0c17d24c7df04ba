package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cannaflow/cannaflow/pkg/api"
	"github.com/cannaflow/cannaflow/pkg/common/logging"
	"github.com/cannaflow/cannaflow/pkg/compliance"
	"github.com/cannaflow/cannaflow/pkg/infrastructure/config"
	"github.com/cannaflow/cannaflow/pkg/storage"
	"github.com/cannaflow/cannaflow/pkg/storage/postgres"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		listenAddr = flag.String("listen", "", "Listen address (overrides config)")
	)

	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddress = *listenAddr
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open storage backend: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	engine := compliance.New(store,
		compliance.WithSink(compliance.NewFileSink(cfg.Export.Dir)),
		compliance.WithLogger(logger),
	)
	if err := engine.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize compliance engine: %v\n", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      api.NewServer(engine, logger).Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Hot-reload the log level while the service runs.
	if *configFile != "" {
		go watchConfig(ctx, *configFile, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("compliance service listening", map[string]interface{}{
			"address": cfg.Server.ListenAddress,
			"backend": cfg.Storage.Backend,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	logger.Info("shutting down", nil)
	if err := server.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Shutdown failed: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from file or uses defaults
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		defaultPath, err := config.GetDefaultConfigPath()
		if err == nil {
			configPath = defaultPath
		}
	}

	return config.LoadConfig(configPath)
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseLogFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	logConfig := &logging.Config{
		Level:  level,
		Format: format,
		Output: os.Stdout,
	}
	if cfg.Logging.Output == "file" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logConfig.Output = file
	}
	return logging.NewLogger(logConfig), nil
}

// buildStore opens the configured persistence backend. The returned cleanup
// releases any held connections.
func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStore(), func() {}, nil

	case "file":
		store, err := storage.NewFileStore(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case "postgres":
		store, err := postgres.New(ctx, &postgres.Config{
			ConnectionString: cfg.Storage.Postgres.ConnectionString,
			MaxConnections:   int32(cfg.Storage.Postgres.MaxConnections),
			ConnectTimeout:   time.Duration(cfg.Storage.Postgres.ConnectTimeout) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := store.MigrateToLatest(); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}

// watchConfig applies log-level and format changes from the config file
// without a restart.
func watchConfig(ctx context.Context, configPath string, logger *logging.Logger) {
	err := config.Watch(ctx, configPath,
		func(updated *config.Config) {
			level, err := logging.ParseLogLevel(updated.Logging.Level)
			if err != nil {
				logger.Warn("ignoring invalid log level in updated config", map[string]interface{}{
					"level": updated.Logging.Level,
				})
				return
			}
			logger.SetLevel(level)
			logger.Info("log level updated", map[string]interface{}{
				"level": level.String(),
			})
		},
		func(err error) {
			logger.Warn("config reload failed", map[string]interface{}{
				"error": err.Error(),
			})
		})
	if err != nil && ctx.Err() == nil {
		logger.Warn("config watcher stopped", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
