package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr        string `yaml:"addr"`
	FrontendURL string `yaml:"frontend_url"`
	CORSOrigin  string `yaml:"cors_origin"`
	LogLevel    string `yaml:"log_level"`
	ExportLang  string `yaml:"export_lang"`

	GitLabURL          string        `yaml:"gitlab_url"`
	GitLabClientID     string        `yaml:"gitlab_client_id"`
	GitLabClientSecret string        `yaml:"gitlab_client_secret"`
	GitLabRedirectURL  string        `yaml:"gitlab_redirect_url"`
	GitLabTimeout      time.Duration `yaml:"gitlab_timeout"`

	JWTSecret  string        `yaml:"jwt_secret"`
	SealKey    string        `yaml:"seal_key"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`

	// Redis is preferred for sessions; Postgres is used when only DATABASE_URL is set.
	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	MeiliURL       string `yaml:"meili_url"`
	MeiliMasterKey string `yaml:"meili_master_key"`

	MinioEndpoint  string `yaml:"minio_endpoint"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioBucket    string `yaml:"minio_bucket"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`

	// InsecureDevSecret is set when no secret was configured and
	// ADR_INSECURE_DEV_SECRET allowed the built-in one.
	InsecureDevSecret bool `yaml:"-"`
}

// DevSecret signs tokens and seals credentials only when
// ADR_INSECURE_DEV_SECRET=true and no secret is configured.
const DevSecret = "adr-manager-dev-secret"

func defaults() Config {
	return Config{
		Addr:              ":8787",
		FrontendURL:       "/",
		CORSOrigin:        "*",
		LogLevel:          "info",
		ExportLang:        "fr",
		GitLabURL:         "https://gitlab.com",
		GitLabRedirectURL: "http://localhost:8787/api/auth/callback",
		GitLabTimeout:     10 * time.Second,
		AccessTTL:         15 * time.Minute,
		RefreshTTL:        30 * 24 * time.Hour,
		MinioBucket:       "adr-exports",
	}
}

// Load applies defaults, then the YAML file named by ADR_CONFIG_PATH, then
// environment variables. Malformed numbers, durations and booleans in the
// environment are errors.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("ADR_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	env := &envReader{}
	cfg.Addr = getenv("API_ADDR", cfg.Addr)
	cfg.FrontendURL = getenv("ADR_FRONTEND_URL", cfg.FrontendURL)
	cfg.CORSOrigin = getenv("ADR_CORS_ORIGIN", cfg.CORSOrigin)
	cfg.LogLevel = getenv("ADR_LOG_LEVEL", cfg.LogLevel)
	cfg.ExportLang = getenv("ADR_EXPORT_LANG", cfg.ExportLang)

	cfg.GitLabURL = strings.TrimRight(getenv("GITLAB_URL", cfg.GitLabURL), "/")
	cfg.GitLabClientID = getenv("GITLAB_CLIENT_ID", cfg.GitLabClientID)
	cfg.GitLabClientSecret = getenv("GITLAB_CLIENT_SECRET", cfg.GitLabClientSecret)
	cfg.GitLabRedirectURL = getenv("GITLAB_REDIRECT_URL", cfg.GitLabRedirectURL)
	cfg.GitLabTimeout = env.seconds("GITLAB_TIMEOUT_SECONDS", cfg.GitLabTimeout)

	cfg.JWTSecret = getenv("ADR_JWT_SECRET", cfg.JWTSecret)
	cfg.SealKey = getenv("ADR_SEAL_KEY", cfg.SealKey)
	cfg.AccessTTL = env.seconds("ADR_ACCESS_TTL_SECONDS", cfg.AccessTTL)
	cfg.RefreshTTL = env.seconds("ADR_REFRESH_TTL_SECONDS", cfg.RefreshTTL)

	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)

	cfg.MeiliURL = getenv("MEILI_URL", cfg.MeiliURL)
	cfg.MeiliMasterKey = getenv("MEILI_MASTER_KEY", cfg.MeiliMasterKey)

	cfg.MinioEndpoint = getenv("MINIO_ENDPOINT", cfg.MinioEndpoint)
	cfg.MinioAccessKey = getenv("MINIO_ACCESS_KEY", cfg.MinioAccessKey)
	cfg.MinioSecretKey = getenv("MINIO_SECRET_KEY", cfg.MinioSecretKey)
	cfg.MinioBucket = getenv("MINIO_BUCKET", cfg.MinioBucket)
	cfg.MinioUseSSL = env.boolean("MINIO_USE_SSL", cfg.MinioUseSSL)

	allowDevSecret := env.boolean("ADR_INSECURE_DEV_SECRET", false)
	if err := env.err(); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		if !allowDevSecret {
			return Config{}, fmt.Errorf("ADR_JWT_SECRET must be set (or ADR_INSECURE_DEV_SECRET=true for local use)")
		}
		cfg.JWTSecret = DevSecret
		cfg.InsecureDevSecret = true
	}
	if cfg.SealKey == "" {
		cfg.SealKey = cfg.JWTSecret
	}
	if cfg.RedisURL == "" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("either REDIS_URL or DATABASE_URL must be set")
	}
	return cfg, nil
}

// OAuthEnabled reports whether the GitLab OAuth application is configured.
func (c Config) OAuthEnabled() bool {
	return c.GitLabClientID != "" && c.GitLabClientSecret != ""
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

type envReader struct {
	errs []error
}

func (r *envReader) seconds(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		r.errs = append(r.errs, fmt.Errorf("%s: want a whole number of seconds, got %q", key, value))
		return fallback
	}
	return time.Duration(parsed) * time.Second
}

func (r *envReader) boolean(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: want a boolean, got %q", key, value))
		return fallback
	}
	return parsed
}

func (r *envReader) err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid environment: %w", errors.Join(r.errs...))
}
