package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikey/reply-triage/internal/config"
	"github.com/mikey/reply-triage/internal/core"
	"github.com/mikey/reply-triage/internal/di"
	"github.com/mikey/reply-triage/internal/ports"
	"go.uber.org/zap"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	ingestServer ports.IngestServer,
	pipeline *core.Pipeline,
	classifier core.IntentClassifier,
	repo core.StateRepository,
) error {
	defer logger.Sync()

	classifierCfg, err := cfg.GetClassifier()
	if err != nil {
		return fmt.Errorf("invalid classifier configuration: %w", err)
	}
	pipelineCfg, err := cfg.GetPipeline()
	if err != nil {
		return fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	// Start the ingest server
	if err := ingestServer.Start(); err != nil {
		logger.Fatal("Failed to start ingest server", zap.Error(err))
		return err
	}

	// Background maintenance: recalibration and thread retention
	stopCh := make(chan struct{})
	go runMaintenance(pipeline, logger, classifierCfg.RecalibrateEvery, pipelineCfg.CleanupFrequency, pipelineCfg.ThreadTTL, stopCh)

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")
	close(stopCh)

	if err := ingestServer.Stop(); err != nil {
		logger.Error("Failed to stop ingest server", zap.Error(err))
	}

	// Close any resources that need closing
	if closer, ok := classifier.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close classifier backend", zap.Error(err))
		}
	}
	if closer, ok := repo.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close state store", zap.Error(err))
		}
	}

	stats := pipeline.Stats()
	logger.Info("Shutdown complete",
		zap.Int("processed", stats.Processed),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("spam", stats.Spam),
		zap.Int("failed", stats.Failed))
	return nil
}

// runMaintenance drives the periodic recalibration and thread cleanup loops
func runMaintenance(
	pipeline *core.Pipeline,
	logger *zap.Logger,
	recalibrateEvery time.Duration,
	cleanupFrequency time.Duration,
	threadTTL time.Duration,
	stopCh <-chan struct{},
) {
	recalibrate := time.NewTicker(recalibrateEvery)
	defer recalibrate.Stop()
	cleanup := time.NewTicker(cleanupFrequency)
	defer cleanup.Stop()

	for {
		select {
		case <-recalibrate.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := pipeline.Recalibrate(ctx); err != nil {
				logger.Error("Recalibration failed", zap.Error(err))
			}
			cancel()
		case <-cleanup.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			removed, err := pipeline.CleanupThreads(ctx, time.Now().Add(-threadTTL))
			if err != nil {
				logger.Error("Thread cleanup failed", zap.Error(err))
			} else if removed > 0 {
				logger.Info("Thread cleanup finished", zap.Int("removed", removed))
			}
			cancel()
		case <-stopCh:
			return
		}
	}
}
