package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/callwarden/call-screener/internal/adapters/httpapi"
	"github.com/callwarden/call-screener/internal/config"
	"github.com/callwarden/call-screener/internal/core"
	"github.com/callwarden/call-screener/internal/di"
	"github.com/callwarden/call-screener/internal/factory"
	"github.com/callwarden/call-screener/internal/reputation"
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
	logger *zap.Logger,
	cfg *config.Config,
	server *httpapi.Server,
	verification *core.VerificationService,
	queue *reputation.BatchProcessor,
	stores *factory.Stores,
) error {
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanupFreq, err := cfg.GetDuration("verification.cleanup_frequency")
	if err != nil {
		logger.Warn("Invalid cleanup frequency, defaulting to 1h", zap.Error(err))
		cleanupFreq = time.Hour
	}
	verification.StartCleanup(ctx, cleanupFreq)

	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start HTTP server", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	// Drain pending reputation recomputes before closing the stores.
	queue.Stop()

	if err := stores.Close(); err != nil {
		logger.Error("Failed to close stores", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}
