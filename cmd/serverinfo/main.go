package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/SkynetNext/serverinfo-rest/internal/api"
	"github.com/SkynetNext/serverinfo-rest/internal/config"
	"github.com/SkynetNext/serverinfo-rest/internal/logger"
	"github.com/SkynetNext/serverinfo-rest/internal/service"
	"github.com/SkynetNext/serverinfo-rest/internal/tracing"
	"go.uber.org/zap"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config/config.yaml", "Configuration file path")
	flag.Parse()

	if version != "dev" {
		api.Version = version
	}

	// Load configuration, writing the defaults on first run
	cfg, created, err := config.LoadOrCreate(configPath)
	if err != nil && cfg == nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// LOG_LEVEL overrides the configured level
	logLevel := cfg.LogLevel
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		logLevel = env
	}
	if err := logger.Init(logLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err != nil {
		logger.L.Warn("Failed to save default configuration, continuing with defaults", zap.Error(err))
	} else if created {
		logger.L.Info("Default configuration written", zap.String("path", configPath))
	}

	if cfg.Tracing.JaegerEndpoint != "" {
		if err := tracing.Init(api.ServiceName, version, cfg.Tracing.JaegerEndpoint); err != nil {
			logger.L.Warn("Failed to initialize tracing", zap.Error(err))
		} else {
			logger.L.Info("Tracing initialized", zap.String("endpoint", cfg.Tracing.JaegerEndpoint))
		}
	}

	svc, err := service.New(cfg)
	if err != nil {
		logger.L.Fatal("Failed to create service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		logger.L.Fatal("Failed to start service", zap.Error(err))
	}

	// Hot reload on config file changes
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		err := config.Watch(ctx, configPath, func(newCfg *config.Config) {
			if env := os.Getenv("LOG_LEVEL"); env != "" {
				newCfg.LogLevel = env
			}
			if err := svc.Reload(newCfg); err != nil {
				logger.L.Error("Failed to reload configuration", zap.Error(err))
			}
		})
		if err != nil && ctx.Err() == nil {
			logger.L.Warn("Configuration watch stopped", zap.Error(err))
		}
	}()

	logger.L.Info("serverinfo-rest started successfully",
		zap.String("version", version),
		zap.String("build_time", buildTime),
		zap.String("git_commit", gitCommit),
	)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.L.Info("Received stop signal, starting graceful shutdown...")
	cancel()

	// A reload in flight must finish before shutdown, or it would bind a new listener
	<-watchDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
	defer shutdownCancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("Error during service shutdown", zap.Error(err))
	}

	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.L.Warn("Error during tracing shutdown", zap.Error(err))
	}

	logger.L.Info("serverinfo-rest stopped")
}
