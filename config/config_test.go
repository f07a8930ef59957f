package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Ledger.SafetyMargin != 0.98 {
		t.Errorf("expected safety margin 0.98, got %.2f", cfg.Ledger.SafetyMargin)
	}
	if cfg.Ledger.LargeOrderThreshold != 100_000 {
		t.Errorf("expected large order threshold 100000, got %d", cfg.Ledger.LargeOrderThreshold)
	}
	if cfg.Ledger.FailOpenOnLockTimeout {
		t.Error("expected fail-closed lock timeout by default")
	}
	if cfg.Risk.MaxPositionPerSymbol != 5_000_000 {
		t.Errorf("expected max position per symbol 5000000, got %d", cfg.Risk.MaxPositionPerSymbol)
	}
	if cfg.Executor.FailureThreshold != 3 {
		t.Errorf("expected failure threshold 3, got %d", cfg.Executor.FailureThreshold)
	}
	if cfg.Executor.BlacklistCooldown != 30*time.Minute {
		t.Errorf("expected blacklist cooldown 30m, got %s", cfg.Executor.BlacklistCooldown)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LEDGER_SAFETY_MARGIN", "0.95")
	t.Setenv("RISK_MAX_OPEN_POSITIONS", "5")
	t.Setenv("EXECUTOR_BLACKLIST_COOLDOWN", "15m")
	t.Setenv("LEDGER_FAIL_OPEN_ON_LOCK_TIMEOUT", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Ledger.SafetyMargin != 0.95 {
		t.Errorf("expected safety margin 0.95, got %.2f", cfg.Ledger.SafetyMargin)
	}
	if cfg.Risk.MaxOpenPositions != 5 {
		t.Errorf("expected max open positions 5, got %d", cfg.Risk.MaxOpenPositions)
	}
	if cfg.Executor.BlacklistCooldown != 15*time.Minute {
		t.Errorf("expected blacklist cooldown 15m, got %s", cfg.Executor.BlacklistCooldown)
	}
	if !cfg.Ledger.FailOpenOnLockTimeout {
		t.Error("expected fail-open lock timeout override")
	}
}

func TestLoad_IgnoresInvalidEnvValues(t *testing.T) {
	t.Setenv("RISK_MAX_POSITION_SIZE", "not-a-number")
	t.Setenv("LEDGER_MIN_SYNC_INTERVAL", "-5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Risk.MaxPositionSize != 10_000_000 {
		t.Errorf("expected default max position size, got %d", cfg.Risk.MaxPositionSize)
	}
	if cfg.Ledger.MinSyncInterval != 3*time.Second {
		t.Errorf("expected default min sync interval, got %s", cfg.Ledger.MinSyncInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"safety margin above one", func(c *Config) { c.Ledger.SafetyMargin = 1.5 }, true},
		{"zero lock timeout", func(c *Config) { c.Ledger.LockTimeout = 0 }, true},
		{"zero max position size", func(c *Config) { c.Risk.MaxPositionSize = 0 }, true},
		{"loss rate of one", func(c *Config) { c.Risk.MaxLossRate = 1 }, true},
		{"negative retries", func(c *Config) { c.Executor.SubmitRetries = -1 }, true},
		{"zero failure threshold", func(c *Config) { c.Executor.FailureThreshold = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestHasBroker(t *testing.T) {
	cfg := NewTestConfig()
	if cfg.HasBroker() {
		t.Error("expected no broker credentials in test config")
	}
	cfg.Broker.APIKey = "key"
	cfg.Broker.APISecret = "secret"
	if !cfg.HasBroker() {
		t.Error("expected broker credentials to be detected")
	}
}
