package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/escrow-payments/internal/config"
	"github.com/escrow-payments/internal/data/mongo"
	"github.com/escrow-payments/internal/data/postgres"
	"github.com/escrow-payments/internal/escrow"
	"github.com/escrow-payments/internal/logger"
	"github.com/escrow-payments/internal/payment_api"
	"github.com/escrow-payments/internal/payment_api/handler"
	"github.com/escrow-payments/internal/platform/dedup"
	"github.com/escrow-payments/internal/platform/persistence"
	"github.com/escrow-payments/internal/platform/stripeclient"
	"github.com/escrow-payments/internal/platform/vat"
	_ "github.com/joho/godotenv/autoload"
	"github.com/shopspring/decimal"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("payment_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	// Runs pending migrations before the pool is handed out
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

	bookingRepo := postgres.NewBookingRepository(log, postgresDB)
	payeeRepo := postgres.NewPayeeRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	paymentRepo := mongo.NewPaymentRepository(log, mongoDB.Database())
	processedEventRepo := mongo.NewProcessedEventRepository(log, mongoDB.Database(), cfg.Payment.ProcessedEventRetention)

	if err := paymentRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to create payment ledger indexes", "error", err)
		os.Exit(1)
	}
	if err := processedEventRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to create processed event indexes", "error", err)
		os.Exit(1)
	}

	gw := stripeclient.NewGateway(log, cfg.Stripe.SecretKey)
	verifier := stripeclient.NewEventVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.WebhookTolerance)
	deduplicator := dedup.NewLayered(log, dedup.NewMemorySet(cfg.Payment.DedupCapacity), processedEventRepo)

	recorder := escrow.NewPaymentRecorder(log, postgresDB, paymentRepo, bookingRepo, outboxRepo)
	payees := escrow.NewPayeeResolver(payeeRepo)
	pricing := escrow.PricingConfig{
		CommissionPercent: decimal.NewFromFloat(cfg.Payment.CommissionPercent),
		MinAmount:         cfg.Payment.MinAmount,
		MaxAmount:         cfg.Payment.MaxAmount,
		DefaultCurrency:   cfg.Payment.DefaultCurrency,
	}

	server := payment_api.NewServer(log, cfg, payment_api.Services{
		Intents:  escrow.NewIntentService(log, bookingRepo, paymentRepo, payees, gw, vat.NewRateTable(), recorder, pricing),
		Captures: escrow.NewCaptureService(log, paymentRepo, gw, recorder),
		Refunds:  escrow.NewRefundService(log, bookingRepo, paymentRepo, gw, recorder),
		Queries:  escrow.NewQueryService(log, bookingRepo, paymentRepo, payees),
		Webhooks: escrow.NewWebhookService(log, verifier, deduplicator, paymentRepo, payeeRepo, recorder),
		Health: map[string]handler.Pinger{
			"postgres": postgresDB,
			"mongo":    mongoDB,
		},
	})
	log.Info("REST server initialized")

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Drain requests before closing the stores they use
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
		os.Exit(1)
	}
	log.Info("Server shutdown completed")
}
