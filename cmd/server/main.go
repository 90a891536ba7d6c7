package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/article-assets/pkg/articleref"
	"github.com/tendant/article-assets/pkg/articleref/api"
	"github.com/tendant/article-assets/pkg/articleref/config"
)

type Config struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	DatabaseURL string `env:"DATABASE_URL" env-default:""`

	PublicStorage  string `env:"PUBLIC_STORAGE" env-default:"memory"`
	PrivateStorage string `env:"PRIVATE_STORAGE" env-default:"memory"`

	PublicBaseURL    string        `env:"PUBLIC_BASE_URL" env-default:"/uploads"`
	MaxUploadSize    int64         `env:"MAX_UPLOAD_SIZE" env-default:"5242880"`
	AllowedMimeTypes string        `env:"ALLOWED_MIME_TYPES" env-default:""`
	SignedURLTTL     time.Duration `env:"SIGNED_URL_TTL" env-default:"30m"`
	SignerSecret     string        `env:"SIGNER_SECRET" env-default:""`

	FS FSConfig
	S3 S3Config
}

type FSConfig struct {
	PublicBaseDir  string `env:"FS_PUBLIC_BASE_DIR" env-default:"./data/public"`
	PrivateBaseDir string `env:"FS_PRIVATE_BASE_DIR" env-default:"./data/private"`
	URLPrefix      string `env:"FS_URL_PREFIX" env-default:"/downloads"`
}

type S3Config struct {
	Bucket                 string `env:"S3_BUCKET" env-default:""`
	Region                 string `env:"S3_REGION" env-default:"us-east-1"`
	AccessKeyID            string `env:"S3_ACCESS_KEY_ID" env-default:""`
	SecretAccessKey        string `env:"S3_SECRET_ACCESS_KEY" env-default:""`
	Endpoint               string `env:"S3_ENDPOINT" env-default:""`
	UsePathStyle           bool   `env:"S3_USE_PATH_STYLE" env-default:"false"`
	CreateBucketIfNotExist bool   `env:"S3_CREATE_BUCKET_IF_NOT_EXIST" env-default:"false"`
}

func main() {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("failed to read environment", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Environment)
	slog.SetDefault(logger)

	serverCfg, err := config.Load(withServerEnv(cfg))
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	svc, err := serverCfg.BuildService()
	if err != nil {
		logger.Error("failed to build service", "error", err)
		os.Exit(1)
	}

	router := newRouter(cfg, serverCfg, svc, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverCfg.Port),
		Handler: router,
	}

	go func() {
		logger.Info("article assets server starting",
			"port", serverCfg.Port,
			"environment", serverCfg.Environment,
			"public_storage", serverCfg.PublicStorage.Type,
			"private_storage", serverCfg.PrivateStorage.Type)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
}

func newLogger(environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// withServerEnv maps executable-level environment settings onto the
// library configuration.
func withServerEnv(cfg Config) config.Option {
	return func(c *config.ServerConfig) error {
		c.Port = cfg.Port
		c.Environment = cfg.Environment

		if cfg.DatabaseURL != "" {
			c.DatabaseType = "postgres"
			c.DatabaseURL = cfg.DatabaseURL
		}

		public, err := storageBackend(cfg, cfg.PublicStorage, cfg.FS.PublicBaseDir)
		if err != nil {
			return fmt.Errorf("public storage: %w", err)
		}
		c.PublicStorage = public

		private, err := storageBackend(cfg, cfg.PrivateStorage, cfg.FS.PrivateBaseDir)
		if err != nil {
			return fmt.Errorf("private storage: %w", err)
		}
		c.PrivateStorage = private

		c.PublicBaseURL = cfg.PublicBaseURL
		c.MaxUploadSize = cfg.MaxUploadSize
		if cfg.AllowedMimeTypes != "" {
			c.AllowedMimeTypes = splitCSV(cfg.AllowedMimeTypes)
		}
		c.SignedURLTTL = cfg.SignedURLTTL
		c.SignerSecret = cfg.SignerSecret

		return nil
	}
}

func storageBackend(cfg Config, backendType, fsBaseDir string) (config.StorageBackendConfig, error) {
	switch backendType {
	case "memory":
		return config.StorageBackendConfig{Type: "memory", Config: map[string]interface{}{}}, nil
	case "fs":
		return config.StorageBackendConfig{
			Type: "fs",
			Config: map[string]interface{}{
				"base_dir":   fsBaseDir,
				"url_prefix": cfg.FS.URLPrefix,
			},
		}, nil
	case "s3":
		if cfg.S3.Bucket == "" {
			return config.StorageBackendConfig{}, fmt.Errorf("S3_BUCKET is required for s3 storage")
		}
		return config.StorageBackendConfig{
			Type: "s3",
			Config: map[string]interface{}{
				"bucket":                     cfg.S3.Bucket,
				"region":                     cfg.S3.Region,
				"access_key_id":              cfg.S3.AccessKeyID,
				"secret_access_key":          cfg.S3.SecretAccessKey,
				"endpoint":                   cfg.S3.Endpoint,
				"use_path_style":             cfg.S3.UsePathStyle,
				"create_bucket_if_not_exist": cfg.S3.CreateBucketIfNotExist,
			},
		}, nil
	default:
		return config.StorageBackendConfig{}, fmt.Errorf("unsupported storage backend: %s", backendType)
	}
}

func newRouter(cfg Config, serverCfg *config.ServerConfig, svc articleref.Service, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Mount("/api", api.NewReferencesHandler(svc, nil, logger).Routes())
	r.Mount("/api/images", api.NewImagesHandler(svc, logger).Routes())

	// Signed serving of private filesystem objects.
	if signer := serverCfg.Signer(); signer != nil && serverCfg.PrivateStorage.Type == "fs" {
		if store, err := svc.StoreFor(articleref.VisibilityPrivate); err == nil {
			r.Mount(cfg.FS.URLPrefix, api.NewSignedFilesHandler(store, signer, logger).Routes())
		}
	}

	// Static serving of public filesystem objects. The base URL may be
	// absolute (a CDN fronting this server), so only its path is routed.
	if serverCfg.PublicStorage.Type == "fs" {
		prefix := publicPathPrefix(serverCfg.PublicBaseURL)
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.FS.PublicBaseDir))))
	}

	return r
}

func publicPathPrefix(baseURL string) string {
	prefix := baseURL
	if u, err := url.Parse(baseURL); err == nil {
		prefix = u.Path
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
