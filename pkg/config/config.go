package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"vidrelay/pkg/httputil"
)

const (
	defaultConfigPath      = "config.yaml"
	defaultChunkSize       = 8 << 20
	chunkAlignment         = 256 << 10
	defaultMaxAttempts     = 5
	defaultInitialDelay    = time.Second
	defaultMaxDelay        = 30 * time.Second
	defaultMultiplier      = 2.0
	defaultJitter          = 0.1
	defaultFetchTimeout    = 30 * time.Minute
	defaultRequestTimeout  = 60 * time.Second
	defaultCallbackTimeout = 10 * time.Second
	defaultRetention       = 24 * time.Hour
	defaultBackend         = BackendGist
	defaultLocalDir        = "./results"
	defaultGCSPrefix       = "results/"
)

const (
	BackendGist  = "gist"
	BackendGCS   = "gcs"
	BackendLocal = "local"
)

const (
	EnvYouTubeClientID     = "YOUTUBE_CLIENT_ID"
	EnvYouTubeClientSecret = "YOUTUBE_CLIENT_SECRET"
	EnvYouTubeRefreshToken = "YOUTUBE_REFRESH_TOKEN"
	EnvGistToken           = "GIST_TOKEN"
	EnvGistID              = "GIST_ID"
	EnvGCSBucket           = "GCS_BUCKET"
	EnvGCPProject          = "GOOGLE_CLOUD_PROJECT"
	EnvStoreBackend        = "RESULT_STORE"
)

// Credentials are read once at startup and never modified afterwards.
type Credentials struct {
	YouTubeClientID     string
	YouTubeClientSecret string
	YouTubeRefreshToken string
	GistToken           string
}

type Config struct {
	Credentials Credentials `yaml:"-"`
	GCPProject  string      `yaml:"-"`

	Upload UploadConfig `yaml:"upload"`
	Fetch  FetchConfig  `yaml:"fetch"`
	Store  StoreConfig  `yaml:"store"`
	Notify NotifyConfig `yaml:"notify"`
}

type UploadConfig struct {
	ChunkSize      int64         `yaml:"chunk_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       float64       `yaml:"jitter"`
}

type FetchConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	ScratchDir string        `yaml:"scratch_dir"`
}

type StoreConfig struct {
	Backend   string        `yaml:"backend"`
	Retention time.Duration `yaml:"retention"`
	GistID    string        `yaml:"gist_id"`
	LocalDir  string        `yaml:"local_dir"`
	GCSBucket string        `yaml:"gcs_bucket"`
	GCSPrefix string        `yaml:"gcs_prefix"`
}

type NotifyConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads .env, then config.yaml, then the environment. When a GCP
// project is configured, credentials still empty after that are looked up
// in Secret Manager.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, defaultConfigPath, func(ctx context.Context, project string) (SecretSource, error) {
		return NewSecretManagerSource(ctx, project)
	})
}

func load(ctx context.Context, path string, openSecrets func(context.Context, string) (SecretSource, error)) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}

	cfg := &Config{}
	if err := loadYAMLConfig(path, cfg); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	applyDefaults(cfg)

	if cfg.GCPProject != "" && cfg.Credentials.missing() {
		src, err := openSecrets(ctx, cfg.GCPProject)
		if err != nil {
			return nil, fmt.Errorf("failed to open secret manager: %w", err)
		}
		defer func() { _ = src.Close() }()

		if err := resolveSecrets(ctx, &cfg.Credentials, src); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAMLConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("No config.yaml found, using defaults")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Credentials = Credentials{
		YouTubeClientID:     os.Getenv(EnvYouTubeClientID),
		YouTubeClientSecret: os.Getenv(EnvYouTubeClientSecret),
		YouTubeRefreshToken: os.Getenv(EnvYouTubeRefreshToken),
		GistToken:           os.Getenv(EnvGistToken),
	}
	cfg.GCPProject = os.Getenv(EnvGCPProject)

	cfg.Store.GistID = getEnvOrDefault(EnvGistID, cfg.Store.GistID)
	cfg.Store.GCSBucket = getEnvOrDefault(EnvGCSBucket, cfg.Store.GCSBucket)
	cfg.Store.Backend = getEnvOrDefault(EnvStoreBackend, cfg.Store.Backend)
}

func applyDefaults(cfg *Config) {
	applyUploadDefaults(cfg)
	applyFetchDefaults(cfg)
	applyStoreDefaults(cfg)
	applyNotifyDefaults(cfg)
}

func applyUploadDefaults(cfg *Config) {
	if cfg.Upload.ChunkSize <= 0 {
		cfg.Upload.ChunkSize = defaultChunkSize
	}
	if cfg.Upload.RequestTimeout <= 0 {
		cfg.Upload.RequestTimeout = defaultRequestTimeout
	}

	retry := &cfg.Upload.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialDelay <= 0 {
		retry.InitialDelay = defaultInitialDelay
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = defaultMaxDelay
	}
	if retry.Multiplier == 0 {
		retry.Multiplier = defaultMultiplier
	}
	if retry.Jitter == 0 {
		retry.Jitter = defaultJitter
	}
}

func applyFetchDefaults(cfg *Config) {
	if cfg.Fetch.Timeout <= 0 {
		cfg.Fetch.Timeout = defaultFetchTimeout
	}
	if cfg.Fetch.ScratchDir == "" {
		cfg.Fetch.ScratchDir = os.TempDir()
	}
}

func applyStoreDefaults(cfg *Config) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = defaultBackend
	}
	if cfg.Store.Retention <= 0 {
		cfg.Store.Retention = defaultRetention
	}
	if cfg.Store.LocalDir == "" {
		cfg.Store.LocalDir = defaultLocalDir
	}
	if cfg.Store.GCSPrefix == "" {
		cfg.Store.GCSPrefix = defaultGCSPrefix
	}
}

func applyNotifyDefaults(cfg *Config) {
	if cfg.Notify.Timeout <= 0 {
		cfg.Notify.Timeout = defaultCallbackTimeout
	}
}

func (c *Config) Validate() error {
	if c.Upload.ChunkSize%chunkAlignment != 0 {
		return fmt.Errorf("upload.chunk_size must be a multiple of %d bytes, got %d", chunkAlignment, c.Upload.ChunkSize)
	}

	switch c.Store.Backend {
	case BackendGist, BackendGCS, BackendLocal:
	default:
		return fmt.Errorf("unknown store backend %q (want gist, gcs or local)", c.Store.Backend)
	}
	return nil
}

func (r RetryConfig) Policy() httputil.RetryPolicy {
	return httputil.RetryPolicy{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.InitialDelay,
		MaxDelay:     r.MaxDelay,
		Multiplier:   r.Multiplier,
		Jitter:       r.Jitter,
	}
}

func (c Credentials) missing() bool {
	return c.YouTubeClientID == "" || c.YouTubeClientSecret == "" ||
		c.YouTubeRefreshToken == "" || c.GistToken == ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
