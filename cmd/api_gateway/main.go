package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pawnmarket-contract-engine/internal/accrual"
	"github.com/pawnmarket-contract-engine/internal/api_gateway"
	"github.com/pawnmarket-contract-engine/internal/api_gateway/service"
	"github.com/pawnmarket-contract-engine/internal/config"
	"github.com/pawnmarket-contract-engine/internal/data/mongo"
	"github.com/pawnmarket-contract-engine/internal/data/postgres"
	"github.com/pawnmarket-contract-engine/internal/logger"
	"github.com/pawnmarket-contract-engine/internal/platform/messaging/producers"
	"github.com/pawnmarket-contract-engine/internal/platform/persistence"
	"github.com/pawnmarket-contract-engine/internal/platform/vision"
	"github.com/pawnmarket-contract-engine/internal/workflow"
)

func main() {
	var (
		configName string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "api_gateway",
		Short: "Serves the contract action and slip upload API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(configName, port)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&configName, "config", "api_gateway", "name of the .env file under ./configs")
	cmd.Flags().IntVar(&port, "port", 0, "listen port, overrides SERVER_PORT")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configName string, port int) error {
	cfg, err := config.LoadConfig(configName)
	if err != nil {
		// logger is not initialized yet
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	log := logger.NewLogger(cfg)
	log.Info("Starting API Gateway", "app_name", cfg.Application.Name, "env", cfg.Application.Env)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

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
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.MongoDB.Timeout)
		defer cancel()
		if err := mongoDB.Close(closeCtx); err != nil {
			log.Error("Failed to close MongoDB connection", "error", err)
		}
	}()

	redisClient, err := persistence.NewRedis(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Error("Failed to initialize Redis", "error", err)
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Failed to close Redis client", "error", err)
		}
	}()

	slipProducer, err := producers.NewSlipSubmissionProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize slip submission producer", "error", err)
		return err
	}
	defer func() {
		if err := slipProducer.Close(); err != nil {
			log.Error("Failed to close slip submission producer", "error", err)
		}
	}()

	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database(), cfg.MongoDB.AuditCollection)
	verificationRepo := mongo.NewVerificationRepository(log, mongoDB.Database(), cfg.MongoDB.VerificationCollection)
	evidenceStore := mongo.NewEvidenceStore(log, mongoDB.Database(), &cfg.MongoDB, cfg.Server.PublicBaseURL)
	if err := mongoDB.EnsureIndexes(appCtx, auditRepo, verificationRepo); err != nil {
		log.Error("Failed to ensure MongoDB indexes", "error", err)
		return err
	}

	// The gateway never verifies slips itself; the vision client is wired so
	// the shared workflow service is complete.
	wf := workflow.NewService(workflow.Dependencies{
		DB:            postgresDB,
		Contracts:     postgres.NewContractRepository(log, postgresDB),
		Requests:      postgres.NewActionRequestRepository(log, postgresDB),
		Outbox:        postgres.NewOutboxRepository(log, postgresDB),
		Verifications: verificationRepo,
		Audits:        auditRepo,
		Verifier:      vision.NewClient(log, &cfg.Vision),
		Calendar:      accrual.NewCalendar(cfg.Application.Location(), time.Now),
		MaxAttempts:   cfg.Workflow.MaxSlipAttempts,
	}, log)

	server := api_gateway.NewServer(log, cfg, redisClient,
		service.NewActionService(log, wf, evidenceStore),
		service.NewEvidenceService(log, wf, evidenceStore, slipProducer),
	)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	select {
	case <-appCtx.Done():
		log.Info("Shutdown signal received")
	case err = <-serveErr:
		log.Error("HTTP server stopped unexpectedly", "error", err)
	}

	// Stop the server before the deferred closes so no handler touches a closed pool.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if stopErr := server.Stop(shutdownCtx); stopErr != nil {
		log.Error("Failed to shut down HTTP server", "error", stopErr)
		err = errors.Join(err, stopErr)
	}

	if err != nil {
		log.Error("API Gateway shut down with errors", "error", err)
		return err
	}
	log.Info("API Gateway shut down cleanly")
	return nil
}
