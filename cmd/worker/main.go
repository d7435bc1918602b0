package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"genie-backend/cmd"
	"genie-backend/internal/config"
	"genie-backend/internal/database"
	"genie-backend/internal/messaging"

	"github.com/caarlos0/env/v11"
)

type WorkerConfig struct {
	DatabaseURL       string `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL       string `env:"RABBITMQ_URL,notEmpty,required"`
	WorkerConcurrency int    `env:"CONCURRENCY" envDefault:"1"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}
	cmd.SetupLogging(os.Stderr, cfg.LogLevel)

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL, cfg.WorkerConcurrency)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	archiveCfg, err := config.ParseArchiveConfig()
	if err != nil {
		log.Fatalf("error parsing archive config: %v", err)
	}
	archive, err := cmd.OpenArchive(context.Background(), archiveCfg)
	if err != nil {
		log.Fatalf("Failed to open upstream archive: %v", err)
	}

	recorder := messaging.NewRecorder(db, receiver)
	if archive != nil {
		recorder.WithArchive(archive)
	}
	recorder.Start(context.Background(), cfg.WorkerConcurrency)

	log.Println("Worker started. Waiting for exchanges. Press Ctrl+C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, waiting for workers to finish...")
	recorder.Stop()

	log.Println("Worker process stopped.")
}
