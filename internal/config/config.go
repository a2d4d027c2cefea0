package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port        string
	MetricsPort string

	// Database
	DataBackend  string
	SQLiteDBPath string

	// AMQP (notification boundary; optional)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Approval gate
	ApprovalThresholdCents int64
	ApprovalTTL            time.Duration
	ApprovalSweepInterval  time.Duration

	// Drift monitor
	DriftWindowDays    int
	DriftMinVelocity   float64 // fraction of required velocity below which a goal is flagged
	DriftScanInterval  time.Duration
	DriftScanParallel  int

	// Engine
	ConflictRetries int
}

func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "9091"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/wealthtogether.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "wealthtogether"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "notifications"),

		ApprovalThresholdCents: getEnvInt64("APPROVAL_THRESHOLD_CENTS", 50_000),
		ApprovalTTL:            getEnvDuration("APPROVAL_TTL", 72*time.Hour),
		ApprovalSweepInterval:  getEnvDuration("APPROVAL_SWEEP_INTERVAL", time.Minute),

		DriftWindowDays:   getEnvInt("DRIFT_WINDOW_DAYS", 30),
		DriftMinVelocity:  getEnvFloat("DRIFT_MIN_VELOCITY", 0.5),
		DriftScanInterval: getEnvDuration("DRIFT_SCAN_INTERVAL", 6*time.Hour),
		DriftScanParallel: getEnvInt("DRIFT_SCAN_PARALLEL", 4),

		ConflictRetries: getEnvInt("CONFLICT_RETRIES", 3),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errs []string

	for name, p := range map[string]string{"port": c.Port, "metrics port": c.MetricsPort} {
		if port, err := strconv.Atoi(p); err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s '%s': must be a number", name, p))
		} else if port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("invalid %s %d: must be between 1 and 65535", name, port))
		}
	}

	switch c.DataBackend {
	case "memory":
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of [memory sqlite]", c.DataBackend))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.ApprovalThresholdCents < 0 {
		errs = append(errs, fmt.Sprintf("invalid approval threshold %d: must not be negative", c.ApprovalThresholdCents))
	}
	if c.ApprovalTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid approval TTL %v: must be at least 1 minute", c.ApprovalTTL))
	}
	if c.ApprovalSweepInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid approval sweep interval %v: must be at least 1 second", c.ApprovalSweepInterval))
	}

	if c.DriftWindowDays < 1 {
		errs = append(errs, fmt.Sprintf("invalid drift window %d: must be at least 1 day", c.DriftWindowDays))
	}
	if c.DriftMinVelocity <= 0 || c.DriftMinVelocity > 1 {
		errs = append(errs, fmt.Sprintf("invalid drift velocity fraction %v: must be in (0, 1]", c.DriftMinVelocity))
	}
	if c.DriftScanParallel < 1 {
		errs = append(errs, fmt.Sprintf("invalid drift scan parallelism %d: must be at least 1", c.DriftScanParallel))
	}

	if c.ConflictRetries < 0 || c.ConflictRetries > 10 {
		errs = append(errs, fmt.Sprintf("invalid conflict retry count %d: must be between 0 and 10", c.ConflictRetries))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
