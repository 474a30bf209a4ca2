package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the pipeline processes. It is built
// once at startup and passed to every component that needs it; there is no
// ambient lookup after Load returns.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Extract  ExtractConfig
	Analyze  AnalyzeConfig
	Worker   WorkerConfig
	Oracle   OracleConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type ExtractConfig struct {
	UserAgent      string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
}

type AnalyzeConfig struct {
	BaseURL string
	Timeout time.Duration
}

type WorkerConfig struct {
	ExtractWorkers int
	AnalyzeWorkers int
	RelayWorkers   int
	ClaimPoll      time.Duration
	LeaseDuration  time.Duration
}

type OracleConfig struct {
	Enabled        bool
	RPCURL         string
	PrivateKey     string // hex-encoded ed25519 seed
	ContractAddr   string
	ChainID        uint64
	ConfirmTimeout time.Duration
	MetricsCap     int
	SweepInterval  time.Duration
}

// Load reads configuration from environment variables and returns a
// validated Config. Returns a descriptive error if any required value is
// missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PIPELINE_PORT", 8080),
			Env:  envString("PIPELINE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Extract: ExtractConfig{
			UserAgent:      envString("EXTRACT_USER_AGENT", "worldmind-pipeline/1.0"),
			RequestTimeout: envDuration("EXTRACT_REQUEST_TIMEOUT", 30*time.Second),
			MaxRetries:     envInt("EXTRACT_MAX_RETRIES", 3),
			RetryBaseDelay: envDuration("EXTRACT_RETRY_BASE_DELAY", time.Second),
		},
		Analyze: AnalyzeConfig{
			BaseURL: os.Getenv("ANALYZE_BASE_URL"),
			Timeout: envDuration("ANALYZE_TIMEOUT", 2*time.Minute),
		},
		Worker: WorkerConfig{
			ExtractWorkers: envInt("WORKER_EXTRACT_CONCURRENCY", 2),
			AnalyzeWorkers: envInt("WORKER_ANALYZE_CONCURRENCY", 2),
			RelayWorkers:   envInt("WORKER_RELAY_CONCURRENCY", 1),
			ClaimPoll:      envDuration("WORKER_CLAIM_POLL", 5*time.Second),
			LeaseDuration:  envDuration("WORKER_LEASE_DURATION", 10*time.Minute),
		},
		Oracle: OracleConfig{
			Enabled:        envBool("ORACLE_ENABLED", false),
			RPCURL:         os.Getenv("ORACLE_RPC_URL"),
			PrivateKey:     os.Getenv("ORACLE_PRIVATE_KEY"),
			ContractAddr:   os.Getenv("ORACLE_CONTRACT"),
			ChainID:        uint64(envInt("ORACLE_CHAIN_ID", 1)),
			ConfirmTimeout: envDuration("ORACLE_CONFIRM_TIMEOUT", 2*time.Minute),
			MetricsCap:     envInt("ORACLE_METRICS_CAP", 5),
			SweepInterval:  envDuration("ORACLE_SWEEP_INTERVAL", 30*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Analyze.BaseURL != "" &&
		!strings.HasPrefix(c.Analyze.BaseURL, "http://") && !strings.HasPrefix(c.Analyze.BaseURL, "https://") {
		return fmt.Errorf("ANALYZE_BASE_URL must start with http:// or https://, got %q", c.Analyze.BaseURL)
	}

	if c.Extract.MaxRetries < 0 {
		return fmt.Errorf("EXTRACT_MAX_RETRIES must be >= 0, got %d", c.Extract.MaxRetries)
	}

	if c.Oracle.MetricsCap <= 0 {
		return fmt.Errorf("ORACLE_METRICS_CAP must be > 0, got %d", c.Oracle.MetricsCap)
	}

	if c.Oracle.Enabled {
		if c.Oracle.RPCURL == "" {
			return fmt.Errorf("ORACLE_RPC_URL is required when ORACLE_ENABLED is true")
		}
		if c.Oracle.PrivateKey == "" {
			return fmt.Errorf("ORACLE_PRIVATE_KEY is required when ORACLE_ENABLED is true")
		}
		if c.Oracle.ContractAddr == "" {
			return fmt.Errorf("ORACLE_CONTRACT is required when ORACLE_ENABLED is true")
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
