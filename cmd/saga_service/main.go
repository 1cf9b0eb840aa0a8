package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/banking-saga-core/internal/config"
	"github.com/banking-saga-core/internal/domain/account"
	"github.com/banking-saga-core/internal/domain/saga"
	"github.com/banking-saga-core/internal/domain/shared"
	"github.com/banking-saga-core/internal/gateway"
	"github.com/banking-saga-core/internal/journal"
	"github.com/banking-saga-core/internal/journal/mongostore"
	"github.com/banking-saga-core/internal/journal/pgsnapshot"
	"github.com/banking-saga-core/internal/logger"
	"github.com/banking-saga-core/internal/platform/messaging/producers"
	"github.com/banking-saga-core/internal/platform/persistence"
	"github.com/banking-saga-core/internal/runtime"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("saga_service")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Saga Service",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Register all persisted event types with the journal codec
	registry := journal.NewRegistry()
	account.RegisterEvents(registry)
	saga.RegisterEvents(registry)

	// Initialize the journal and snapshot stores
	journalStore := mongostore.NewStore(log, mongoDB.Database(), registry)
	if err := journalStore.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to ensure journal indexes", "error", err)
		os.Exit(1)
	}
	snapshotStore := pgsnapshot.NewStore(log, postgresDB)

	// Initialize the Kafka event stream producer
	eventStream, err := producers.NewEventStreamProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize event stream producer", "error", err)
		os.Exit(1)
	}
	publishingStore := journal.NewPublishingStore(journalStore, registry, eventStream, log)

	// Initialize the entity runtime
	entityRouter, err := runtime.NewRouter(logger.WithComponent(log, "runtime"), publishingStore, snapshotStore, runtime.WallClock{}, runtime.Config{
		WorkerPoolSize: cfg.Runtime.WorkerPoolSize,
		SnapshotEvery:  cfg.Runtime.SnapshotEvery,
	})
	if err != nil {
		log.Error("Failed to initialize entity runtime", "error", err)
		os.Exit(1)
	}

	entityRouter.RegisterKind(shared.AccountKind, account.NewFactory(cfg.Runtime.StashLimit))
	entityRouter.RegisterKind(shared.SagaKind, saga.NewFactory(cfg.Saga.PrepareTimeout, cfg.Saga.RetryInterval))

	// Initialize the HTTP gateway
	server := gateway.NewServer(logger.WithComponent(log, "gateway"), cfg, entityRouter)

	// Create error channel for service errors
	errChan := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping HTTP server", "error", err)
	}

	// Stop tick schedules and mailbox workers
	entityRouter.Shutdown()

	// Close the event stream producer
	if err = eventStream.Close(); err != nil {
		log.Error("Error closing event stream producer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Close MongoDB connection
	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serviceErr != nil {
		log.Error("Saga Service shutdown with errors", "error", serviceErr)
		os.Exit(1)
	}
	log.Info("Saga Service shutdown completed successfully")
}
