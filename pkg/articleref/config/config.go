// Package config wires repositories and storage backends into a ready
// articleref.Service from declarative server configuration.
package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/article-assets/pkg/articleref"
	"github.com/tendant/article-assets/pkg/articleref/presigned"
	"github.com/tendant/article-assets/pkg/articleref/repo/memory"
	repopg "github.com/tendant/article-assets/pkg/articleref/repo/postgres"
	fsstorage "github.com/tendant/article-assets/pkg/articleref/storage/fs"
	memorystorage "github.com/tendant/article-assets/pkg/articleref/storage/memory"
	s3storage "github.com/tendant/article-assets/pkg/articleref/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top
// of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:          "8080",
		Environment:   "development",
		DatabaseType:  "memory",
		PublicBaseURL: "/uploads",
		MaxUploadSize: articleref.DefaultMaxUploadSize,
		SignedURLTTL:  30 * time.Minute,
		PublicStorage: StorageBackendConfig{
			Type:   "memory",
			Config: map[string]interface{}{},
		},
		PrivateStorage: StorageBackendConfig{
			Type:   "memory",
			Config: map[string]interface{}{},
		},
	}
}

// ServerConfig represents server configuration for the article-assets
// service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"

	// Storage configuration, one backend per visibility tier
	PublicStorage  StorageBackendConfig
	PrivateStorage StorageBackendConfig

	// PublicBaseURL is the base under which public objects are linkable.
	PublicBaseURL string

	// Upload constraints
	MaxUploadSize    int64
	AllowedMimeTypes []string

	// SignedURLTTL bounds the validity window for private access URLs.
	SignedURLTTL time.Duration

	// SignerSecret enables HMAC-signed download links for filesystem
	// backends. Empty means private filesystem objects are proxied.
	SignerSecret string
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	for _, backend := range []StorageBackendConfig{c.PublicStorage, c.PrivateStorage} {
		switch backend.Type {
		case "memory", "fs", "s3":
		default:
			return fmt.Errorf("unsupported storage backend type: %s", backend.Type)
		}
	}

	if c.MaxUploadSize <= 0 {
		return errors.New("max upload size must be positive")
	}
	if c.SignedURLTTL <= 0 {
		return errors.New("signed URL TTL must be positive")
	}

	return nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService() (articleref.Service, error) {
	repo, err := c.buildRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	publicStore, err := c.buildStorageBackend(c.PublicStorage, articleref.VisibilityPublic)
	if err != nil {
		return nil, fmt.Errorf("failed to build public storage backend: %w", err)
	}
	privateStore, err := c.buildStorageBackend(c.PrivateStorage, articleref.VisibilityPrivate)
	if err != nil {
		return nil, fmt.Errorf("failed to build private storage backend: %w", err)
	}

	options := []articleref.Option{
		articleref.WithRepository(repo),
		articleref.WithBlobStore(articleref.VisibilityPublic, publicStore),
		articleref.WithBlobStore(articleref.VisibilityPrivate, privateStore),
		articleref.WithPublicBaseURL(c.PublicBaseURL),
		articleref.WithMaxUploadSize(c.MaxUploadSize),
		articleref.WithSignedURLExpiry(c.SignedURLTTL),
	}
	if len(c.AllowedMimeTypes) > 0 {
		options = append(options, articleref.WithAllowedMimeTypes(c.AllowedMimeTypes))
	}

	return articleref.New(options...)
}

// Signer returns the HMAC signer for filesystem-backed private downloads,
// or nil when no secret is configured.
func (c *ServerConfig) Signer() *presigned.Signer {
	if c.SignerSecret == "" {
		return nil
	}
	return presigned.New(
		presigned.WithSecretKey(c.SignerSecret),
		presigned.WithDefaultExpiration(c.SignedURLTTL),
	)
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository() (articleref.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		pool, err := pgxpool.New(context.Background(), c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildStorageBackend creates a BlobStore based on the backend
// configuration
func (c *ServerConfig) buildStorageBackend(config StorageBackendConfig, visibility articleref.Visibility) (articleref.BlobStore, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		fsConfig := fsstorage.Config{
			BaseDir:   getString(config.Config, "base_dir", "./data/storage"),
			URLPrefix: getString(config.Config, "url_prefix", ""),
		}
		// Private filesystem objects get HMAC-signed links when a signer
		// secret is configured; otherwise they are proxied. An unsigned
		// prefix would leak private objects, so it is dropped.
		if visibility == articleref.VisibilityPrivate {
			fsConfig.Signer = c.Signer()
			if fsConfig.Signer == nil {
				fsConfig.URLPrefix = ""
			}
		}
		return fsstorage.New(fsConfig)

	case "s3":
		s3Config := s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			PresignDuration:        getInt(config.Config, "presign_duration", int(c.SignedURLTTL.Seconds())),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		}
		if visibility == articleref.VisibilityPublic {
			s3Config.PublicBaseURL = c.PublicBaseURL
		}
		return s3storage.New(s3Config)

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}

func getInt(config map[string]interface{}, key string, defaultValue int) int {
	if value, exists := config[key]; exists {
		if i, ok := value.(int); ok {
			return i
		}
		if str, ok := value.(string); ok {
			if i, err := strconv.Atoi(str); err == nil {
				return i
			}
		}
		if f, ok := value.(float64); ok {
			return int(f)
		}
	}
	return defaultValue
}
