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
const DefaultConfigFile = "askgate.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional, but since the
// routing table can only come from YAML, a deployment without one serves no
// topics.
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
	setString(&cfg.Server.Port, "ASKGATE_PORT")
	setString(&cfg.Server.CORSOrigin, "ASKGATE_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "ASKGATE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "ASKGATE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "ASKGATE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "ASKGATE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "ASKGATE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "ASKGATE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "ASKGATE_LOG_SERVICE")
	setDuration(&cfg.Agent.InvokeTimeout, "ASKGATE_AGENT_INVOKE_TIMEOUT")
	setDuration(&cfg.Agent.HealthTimeout, "ASKGATE_AGENT_HEALTH_TIMEOUT")
	setInt(&cfg.Breaker.MaxFailures, "ASKGATE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "ASKGATE_BREAKER_TIMEOUT")
	setDuration(&cfg.Session.TTL, "ASKGATE_SESSION_TTL")
	setDuration(&cfg.Notify.Timeout, "ASKGATE_NOTIFY_TIMEOUT")
	setDuration(&cfg.Notify.DedupTTL, "ASKGATE_NOTIFY_DEDUP_TTL")
	setInt64(&cfg.Cache.MaxCostBytes, "ASKGATE_CACHE_MAX_COST_BYTES")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setInt(&cfg.Routing.DefaultThreshold, "ASKGATE_DEFAULT_THRESHOLD")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Agent.InvokeTimeout <= 0 {
		return errors.New("agent.invoke_timeout must be positive")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if cfg.Routing.DefaultThreshold < 1 || cfg.Routing.DefaultThreshold > 100 {
		return errors.New("routing.default_threshold must be in [1, 100]")
	}
	for _, s := range cfg.Notify.Sinks {
		if s.Provider == "" {
			return errors.New("notify.sinks entries require a provider")
		}
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
