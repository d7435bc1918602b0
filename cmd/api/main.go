package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"genie-backend/cmd"
	"genie-backend/internal/api"
	"genie-backend/internal/config"
	"genie-backend/internal/database"
	"genie-backend/internal/genie"
	"genie-backend/internal/messaging"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
)

type APIConfig struct {
	DatabaseURL string   `env:"DATABASE_URL,notEmpty,required"`
	RabbitMQURL string   `env:"RABBITMQ_URL,notEmpty,required"`
	APIPort     string   `env:"API_PORT" envDefault:"8001"`
	CorsOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}
	cmd.SetupLogging(os.Stderr, cfg.LogLevel)

	genieCfg, err := config.ParseGenieConfig()
	if err != nil {
		log.Fatalf("error parsing genie config: %v", err)
	}
	if missing := genieCfg.Missing(); len(missing) > 0 {
		slog.Warn("genie is not configured, requests will fail until these are set", "missing", missing)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	r := cmd.NewRouter(cfg.CorsOrigins, genieCfg.Timeout+10*time.Second)

	archiveCfg, err := config.ParseArchiveConfig()
	if err != nil {
		log.Fatalf("error parsing archive config: %v", err)
	}
	archive, err := cmd.OpenArchive(context.Background(), archiveCfg)
	if err != nil {
		log.Fatalf("Failed to open upstream archive: %v", err)
	}

	service := api.NewGenieService(genie.NewClient(genieCfg), db, publisher)
	if archive != nil {
		service.WithArchive(archive)
	}
	r.Route("/api", func(r chi.Router) {
		service.AddRoutes(r)
	})

	server := cmd.NewServer(cfg.APIPort, r)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		log.Println("Waiting for pending exchanges to publish...")
		service.Wait()
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	<-stopped
	log.Println("Server stopped.")
}
