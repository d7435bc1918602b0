package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"genie-backend/cmd"
	"genie-backend/internal/api"
	"genie-backend/internal/config"
	"genie-backend/internal/database"
	"genie-backend/internal/genie"
	"genie-backend/internal/messaging"
	"genie-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type Config struct {
	Port        int      `env:"PORT" envDefault:"3001"`
	AppDataDir  string   `env:"APP_DATA_DIR" envDefault:"./genie-data"`
	StaticDir   string   `env:"STATIC_DIR" envDefault:""`
	CorsOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
}

func createServer(db *gorm.DB, queue messaging.Publisher, archive storage.ObjectStore, genieCfg config.GenieConfig, cfg Config) (*http.Server, *api.GenieService) {
	r := cmd.NewRouter(cfg.CorsOrigins, genieCfg.Timeout+10*time.Second)

	service := api.NewGenieService(genie.NewClient(genieCfg), db, queue)
	if archive != nil {
		service.WithArchive(archive)
	}
	r.Route("/api", func(r chi.Router) {
		service.AddRoutes(r)
	})

	if cfg.StaticDir != "" {
		slog.Info("serving static files", "dir", cfg.StaticDir)
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return cmd.NewServer(fmt.Sprint(cfg.Port), r), service
}

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.AppDataDir, os.ModePerm); err != nil {
		log.Fatalf("error creating app data directory: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.AppDataDir, "backend.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	logOutput := io.MultiWriter(f, os.Stderr)
	log.SetOutput(logOutput)
	cmd.SetupLogging(logOutput, cfg.LogLevel)

	genieCfg, err := config.ParseGenieConfig()
	if err != nil {
		log.Fatalf("error parsing genie config: %v", err)
	}
	if missing := genieCfg.Missing(); len(missing) > 0 {
		slog.Warn("genie is not configured, requests will fail until these are set", "missing", missing)
	}

	slog.Info("starting backend", "port", cfg.Port, "app_data_dir", cfg.AppDataDir, "static_dir", cfg.StaticDir)

	db, err := database.OpenSQLite(cfg.AppDataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	archiveCfg, err := config.ParseArchiveConfig()
	if err != nil {
		log.Fatalf("error parsing archive config: %v", err)
	}
	if !archiveCfg.Enabled() {
		archiveCfg.Dir = filepath.Join(cfg.AppDataDir, "upstream")
	}
	archive, err := cmd.OpenArchive(context.Background(), archiveCfg)
	if err != nil {
		log.Fatalf("Failed to open upstream archive: %v", err)
	}

	queue := messaging.NewInMemoryQueue()
	recorder := messaging.NewRecorder(db, queue).WithArchive(archive)
	recorder.Start(context.Background(), 1)

	server, service := createServer(db, queue, archive, genieCfg, cfg)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		service.Wait()

		slog.Info("shutting down recorder")
		recorder.Stop()
	}()

	slog.Info("server started", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	<-stopped
	slog.Info("server stopped")
}
