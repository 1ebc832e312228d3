package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/pawnmarket-contract-engine/internal/accrual"
	"github.com/pawnmarket-contract-engine/internal/action_processor/components"
	"github.com/pawnmarket-contract-engine/internal/action_processor/consumer"
	"github.com/pawnmarket-contract-engine/internal/action_processor/outbox_poller"
	"github.com/pawnmarket-contract-engine/internal/action_processor/service"
	"github.com/pawnmarket-contract-engine/internal/config"
	"github.com/pawnmarket-contract-engine/internal/data/mongo"
	"github.com/pawnmarket-contract-engine/internal/data/postgres"
	"github.com/pawnmarket-contract-engine/internal/logger"
	"github.com/pawnmarket-contract-engine/internal/platform/messaging/consumers"
	"github.com/pawnmarket-contract-engine/internal/platform/messaging/producers"
	"github.com/pawnmarket-contract-engine/internal/platform/persistence"
	"github.com/pawnmarket-contract-engine/internal/platform/vision"
	"github.com/pawnmarket-contract-engine/internal/reminder"
	"github.com/pawnmarket-contract-engine/internal/workflow"
)

func main() {
	var (
		configName string
		once       bool
	)

	cmd := &cobra.Command{
		Use:   "action_processor",
		Short: "Verifies payment slips, delivers outbox messages and sends due-date reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(configName, once)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&configName, "config", "action_processor", "name of the .env file under ./configs")
	cmd.Flags().BoolVar(&once, "once", false, "run one reminder sweep and drain the outbox, then exit")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configName string, once bool) error {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig(configName)
	if err != nil {
		// logger is not initialized yet
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return err
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Action Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
		"once", once,
	)

	penaltyPerDay, err := decimal.NewFromString(cfg.Reminder.PenaltyPerDay)
	if err != nil {
		log.Error("Invalid overdue penalty", "value", cfg.Reminder.PenaltyPerDay, "error", err)
		return err
	}

	// Initialize databases with app context; PostgreSQL runs migrations on connect
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		return err
	}
	defer postgresDB.Close()

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := mongoDB.Close(closeCtx); err != nil {
			log.Error("Error closing MongoDB connection", "error", err)
		}
	}()

	// Initialize repositories
	contractRepo := postgres.NewContractRepository(log, postgresDB)
	actionRepo := postgres.NewActionRequestRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	notificationLogRepo := postgres.NewNotificationLogRepository(log, postgresDB)
	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database(), cfg.MongoDB.AuditCollection)
	verificationRepo := mongo.NewVerificationRepository(log, mongoDB.Database(), cfg.MongoDB.VerificationCollection)

	if err := mongoDB.EnsureIndexes(appCtx, auditRepo, verificationRepo); err != nil {
		log.Error("Failed to ensure MongoDB indexes", "error", err)
		return err
	}

	// Outbound notices for the messaging service
	notificationPublisher, err := producers.NewNotificationPublisher(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize notification Kafka producer", "error", err)
		return err
	}
	defer func() {
		if err := notificationPublisher.Close(); err != nil {
			log.Error("Error closing notification Kafka producer", "error", err)
		}
	}()

	calendar := accrual.NewCalendar(cfg.Application.Location(), time.Now)

	dispatcher := outbox_poller.NewOutboxDispatcher(outboxRepo, auditRepo, notificationPublisher, log)
	poller := outbox_poller.NewPoller(&cfg.Outbox, outboxRepo, dispatcher, log)

	scanner := reminder.NewScanner(
		postgresDB,
		contractRepo,
		notificationLogRepo,
		outboxRepo,
		calendar,
		reminder.Config{
			PoolSize:      cfg.WorkerPool.Size,
			PenaltyPerDay: penaltyPerDay,
		},
		log,
	)

	if once {
		return runOnce(appCtx, log, scanner, poller)
	}

	// Slip verification
	wf := workflow.NewService(workflow.Dependencies{
		DB:            postgresDB,
		Contracts:     contractRepo,
		Requests:      actionRepo,
		Outbox:        outboxRepo,
		Verifications: verificationRepo,
		Audits:        auditRepo,
		Verifier:      vision.NewClient(log, &cfg.Vision),
		Calendar:      calendar,
		MaxAttempts:   cfg.Workflow.MaxSlipAttempts,
	}, log)

	// Initialize Kafka consumer
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// Initialize Kafka DLQ producer
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		return err
	}

	processingService := components.CreateProcessingService(wf, log, cfg)
	slipEventHandler := consumer.NewSlipEventHandler(log, processingService, dlqProducer)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start Kafka consumer; Subscribe returns once the fetch loop is running
	log.Info("Starting Kafka consumer",
		"topic", cfg.Kafka.EvidenceTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := kafkaConsumer.Subscribe(appCtx, cfg.Kafka.EvidenceTopic, cfg.Kafka.ConsumerGroup, slipEventHandler.HandleMessage); err != nil {
		log.Error("Failed to start Kafka consumer", "error", err)
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-kafkaConsumer.Done()
	}()

	// Start outbox poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	// Start reminder scanner in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner.Run(appCtx, cfg.Reminder.Interval)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal
	<-quit
	log.Info("Shutdown signal received")

	// Cancel the application context
	cancelAppCtx()

	// Let in-flight slips finish before the stores they write to are closed
	if wpService, ok := processingService.(*service.WorkerPoolProcessingService); ok {
		if err := wpService.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
			log.Warn("Worker pool shutdown incomplete", "error", err)
		}
	}

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Wait for all goroutines to finish
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Close DLQ Kafka producer
	if err = dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
	}

	// Close Kafka consumer
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	log.Info("Action Processor shutdown completed successfully")
	return nil
}

// runOnce performs one reminder sweep and delivers everything it queued.
// Intended for cron-driven deployments that do not keep the processor running.
func runOnce(ctx context.Context, log *slog.Logger, scanner *reminder.Scanner, poller *outbox_poller.Poller) error {
	summary, err := scanner.Sweep(ctx)
	if err != nil {
		log.Error("Reminder sweep failed", "error", err)
		return err
	}

	if err := poller.Drain(ctx); err != nil {
		log.Error("Failed to drain outbox", "error", err)
		return err
	}

	log.Info("Single run completed",
		"scanned", summary.Scanned,
		"queued", summary.Queued,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return nil
}
