package cmd

import (
	"context"
	"flag"
	"io"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"genie-backend/internal/config"
	"genie-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func SetupLogging(w io.Writer, level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLogLevel(level)})))
}

// NewRouter returns a router with the middleware every server binary uses.
// requestTimeout should exceed the upstream timeout so Genie errors are
// reported instead of cut off.
func NewRouter(corsOrigins []string, requestTimeout time.Duration) *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	return r
}

func NewServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// OpenArchive returns the store for raw Genie replies, or nil when archiving
// is disabled.
func OpenArchive(ctx context.Context, cfg config.ArchiveConfig) (storage.ObjectStore, error) {
	switch {
	case cfg.Bucket != "":
		slog.Info("archiving upstream replies to s3", "bucket", cfg.Bucket, "endpoint", cfg.S3Endpoint)
		store, err := storage.NewS3ObjectStore(ctx, cfg.Bucket, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case cfg.Dir != "":
		slog.Info("archiving upstream replies to disk", "dir", cfg.Dir)
		store, err := storage.NewLocalObjectStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, nil
	}
}
