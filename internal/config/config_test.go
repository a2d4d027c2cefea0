package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %s, want 8080", cfg.Port)
	}
	if cfg.DataBackend != "memory" {
		t.Errorf("DataBackend = %s, want memory", cfg.DataBackend)
	}
	if cfg.ApprovalThresholdCents != 50_000 {
		t.Errorf("ApprovalThresholdCents = %d, want 50000", cfg.ApprovalThresholdCents)
	}
	if cfg.ApprovalTTL != 72*time.Hour {
		t.Errorf("ApprovalTTL = %v, want 72h", cfg.ApprovalTTL)
	}
	if cfg.DriftWindowDays != 30 {
		t.Errorf("DriftWindowDays = %d, want 30", cfg.DriftWindowDays)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("APPROVAL_THRESHOLD_CENTS", "250000")
	t.Setenv("DRIFT_WINDOW_DAYS", "14")
	t.Setenv("APPROVAL_TTL", "24h")

	cfg := Load()

	if cfg.Port != "9999" {
		t.Errorf("Port = %s, want 9999", cfg.Port)
	}
	if cfg.ApprovalThresholdCents != 250_000 {
		t.Errorf("ApprovalThresholdCents = %d, want 250000", cfg.ApprovalThresholdCents)
	}
	if cfg.DriftWindowDays != 14 {
		t.Errorf("DriftWindowDays = %d, want 14", cfg.DriftWindowDays)
	}
	if cfg.ApprovalTTL != 24*time.Hour {
		t.Errorf("ApprovalTTL = %v, want 24h", cfg.ApprovalTTL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Port = "nope" },
			wantErr: "invalid port",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Port = "70000" },
			wantErr: "invalid port",
		},
		{
			name:    "bad backend",
			mutate:  func(c *Config) { c.DataBackend = "postgres" },
			wantErr: "invalid data backend",
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.DataBackend = "sqlite"
				c.SQLiteDBPath = ""
			},
			wantErr: "SQLite database path",
		},
		{
			name:    "bad amqp scheme",
			mutate:  func(c *Config) { c.AMQPURL = "http://localhost" },
			wantErr: "invalid AMQP URL scheme",
		},
		{
			name:    "negative threshold",
			mutate:  func(c *Config) { c.ApprovalThresholdCents = -1 },
			wantErr: "approval threshold",
		},
		{
			name:    "approval ttl too short",
			mutate:  func(c *Config) { c.ApprovalTTL = time.Second },
			wantErr: "approval TTL",
		},
		{
			name:    "drift velocity out of range",
			mutate:  func(c *Config) { c.DriftMinVelocity = 1.5 },
			wantErr: "drift velocity",
		},
		{
			name:    "too many retries",
			mutate:  func(c *Config) { c.ConflictRetries = 50 },
			wantErr: "conflict retry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}
