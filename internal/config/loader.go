package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "pixelgate.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PIXELGATE_PORT")
	setString(&cfg.Server.CORSOrigin, "PIXELGATE_CORS_ORIGIN")
	setString(&cfg.Server.PublicURL, "PIXELGATE_PUBLIC_URL")
	setString(&cfg.Store.Driver, "PIXELGATE_STORE_DRIVER")
	setString(&cfg.Store.Path, "PIXELGATE_SQLITE_PATH")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "PIXELGATE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "PIXELGATE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "PIXELGATE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "PIXELGATE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "PIXELGATE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Conversions.BaseURL, "PIXELGATE_CAPI_URL")
	setString(&cfg.Conversions.APIVersion, "PIXELGATE_CAPI_VERSION")
	setDuration(&cfg.Conversions.Timeout, "PIXELGATE_CAPI_TIMEOUT")
	setString(&cfg.Webhook.SharedSecret, "PIXELGATE_WEBHOOK_SECRET")
	setString(&cfg.Admin.Token, "PIXELGATE_ADMIN_TOKEN")
	setInt64(&cfg.Cache.MaxSizeMB, "PIXELGATE_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "PIXELGATE_CACHE_TTL")
	setString(&cfg.Logging.Level, "PIXELGATE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "PIXELGATE_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "PIXELGATE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "PIXELGATE_BREAKER_TIMEOUT")
	setString(&cfg.Tracing.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate rejects configurations that cannot work.
func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if cfg.Store.Driver == "postgres" && cfg.Postgres.DSN == "" {
		return errors.New("postgres dsn is required")
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.Path == "" {
		return errors.New("sqlite path is required")
	}
	if cfg.Conversions.Timeout <= 0 {
		return errors.New("conversions timeout must be positive")
	}
	if cfg.Cache.MaxSizeMB <= 0 {
		return errors.New("cache size must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
