package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/escrow-payments/internal/config"
	"github.com/escrow-payments/internal/data/mongo"
	"github.com/escrow-payments/internal/data/postgres"
	"github.com/escrow-payments/internal/escrow"
	"github.com/escrow-payments/internal/logger"
	"github.com/escrow-payments/internal/payment_worker/components"
	"github.com/escrow-payments/internal/payment_worker/consumer"
	"github.com/escrow-payments/internal/payment_worker/outbox_poller"
	"github.com/escrow-payments/internal/platform/messaging/consumers"
	"github.com/escrow-payments/internal/platform/messaging/producers"
	"github.com/escrow-payments/internal/platform/persistence"
	"github.com/escrow-payments/internal/platform/stripeclient"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("payment_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Payment Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

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
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	paymentRepo := mongo.NewPaymentRepository(log, mongoDB.Database())

	eventProducer, err := producers.NewPaymentEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize payment event producer", "error", err)
		os.Exit(1)
	}

	// nil when no DLQ topic is configured; failing messages are then retried until they succeed
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	var deadLetters producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetters = dlqProducer
	}

	recorder := escrow.NewPaymentRecorder(log, postgresDB, paymentRepo, bookingRepo, outboxRepo)
	captures := escrow.NewCaptureService(log, paymentRepo, stripeclient.NewGateway(log, cfg.Stripe.SecretKey), recorder)

	processor, stopProcessor := components.CreateCompletionProcessor(captures, log, cfg)
	completionHandler := consumer.NewCompletionEventHandler(log, processor, deadLetters)
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka, cfg.Kafka.BookingCompletionsTopic, deadLetters)

	poller := outbox_poller.NewPoller(
		&cfg.Outbox,
		outboxRepo,
		outbox_poller.NewEventPublisher(outboxRepo, eventProducer, log),
		log,
	)

	errChan := make(chan error, 1)
	var wg sync.WaitGroup

	if err := kafkaConsumer.Subscribe(appCtx, completionHandler.HandleMessage); err != nil {
		errChan <- fmt.Errorf("kafka consumer error: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Stop taking messages, then let in-flight captures finish
	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}
	stopProcessor()

	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("Outbox poller stopped")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	if err = dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
	}
	if err = eventProducer.Close(); err != nil {
		log.Error("Error closing payment event producer", "error", err)
	}

	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serviceErr != nil {
		log.Error("Payment Worker shutdown with errors", "error", serviceErr)
		os.Exit(1)
	}
	log.Info("Payment Worker shutdown completed")
}
