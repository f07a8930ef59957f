package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Broker API configuration
	Broker BrokerConfig

	// Risk limit configuration (immutable at runtime)
	Risk RiskConfig

	// Account ledger configuration
	Ledger LedgerConfig

	// Order executor configuration
	Executor ExecutorConfig

	// HTTP configuration
	HTTP HTTPConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// BrokerConfig holds broker API configuration
type BrokerConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// RiskConfig holds the hard limits the risk gate enforces and the
// parameters of position sizing. Amounts are in whole currency units.
type RiskConfig struct {
	MaxPositionSize      int64   // absolute order value cap
	MaxPositionPerSymbol int64   // total exposure cap per symbol
	MaxOpenPositions     int     // distinct symbols held at once
	MaxDailyRisk         int64   // aggregate potential-loss budget per day
	MaxVolatility        float64 // annualized volatility ceiling
	MaxLossRate          float64 // per-order potential loss fraction, also stop-loss trigger
	MaxProfitRate        float64 // take-profit trigger
	PositionSizeRatio    float64 // base allocation as fraction of available cash
	BaseVolatility       float64 // volatility at which the sizing factor is 1.0
}

// LedgerConfig holds account ledger configuration
type LedgerConfig struct {
	SafetyMargin             float64       // fraction of available cash reservations may consume
	BuyingPowerEstimateRatio float64       // fallback estimate when the broker reports zero buying power
	MinSyncInterval          time.Duration // rate limit between balance fetches
	SnapshotMaxAge           time.Duration // freshness window for Snapshot()
	LockTimeout              time.Duration // bound on ledger lock acquisition
	FailOpenOnLockTimeout    bool          // proceed unsynchronized on lock timeout (documented risk)
	LargeOrderThreshold      int64         // orders above this re-verify against fresh broker figures
	ReservationMaxAge        time.Duration // sweep reclaims reservations older than this
	SweepInterval            time.Duration
}

// ExecutorConfig holds order executor configuration
type ExecutorConfig struct {
	SubmitRetries       int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	TokenRefreshRetries int
	FailureThreshold    int           // consecutive failures before a symbol is blacklisted
	BlacklistCooldown   time.Duration // how long a tripped symbol stays refused
	RequestTimeout      time.Duration // per broker call
	PositionCheckEvery  time.Duration // stop-loss/take-profit scan interval
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Addr               string
	CORSAllowedOrigins string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Broker: BrokerConfig{
			APIKey:    os.Getenv("ALPACA_API_KEY"),
			APISecret: os.Getenv("ALPACA_API_SECRET"),
			BaseURL:   getEnvString("ALPACA_BASE_URL", "https://paper-api.alpaca.markets"),
		},
		Risk: RiskConfig{
			MaxPositionSize:      getEnvInt64("RISK_MAX_POSITION_SIZE", 10_000_000),
			MaxPositionPerSymbol: getEnvInt64("RISK_MAX_POSITION_PER_SYMBOL", 5_000_000),
			MaxOpenPositions:     getEnvInt("RISK_MAX_OPEN_POSITIONS", 10),
			MaxDailyRisk:         getEnvInt64("RISK_MAX_DAILY_RISK", 100_000),
			MaxVolatility:        getEnvFloat("RISK_MAX_VOLATILITY", 0.5),
			MaxLossRate:          getEnvFloat("RISK_MAX_LOSS_RATE", 0.02),
			MaxProfitRate:        getEnvFloat("RISK_MAX_PROFIT_RATE", 0.05),
			PositionSizeRatio:    getEnvFloat("RISK_POSITION_SIZE_RATIO", 0.1),
			BaseVolatility:       getEnvFloat("RISK_BASE_VOLATILITY", 0.10),
		},
		Ledger: LedgerConfig{
			SafetyMargin:             getEnvFloat("LEDGER_SAFETY_MARGIN", 0.98),
			BuyingPowerEstimateRatio: getEnvFloat("LEDGER_BUYING_POWER_ESTIMATE_RATIO", 0.95),
			MinSyncInterval:          getEnvDuration("LEDGER_MIN_SYNC_INTERVAL", 3*time.Second),
			SnapshotMaxAge:           getEnvDuration("LEDGER_SNAPSHOT_MAX_AGE", 5*time.Minute),
			LockTimeout:              getEnvDuration("LEDGER_LOCK_TIMEOUT", 3*time.Second),
			FailOpenOnLockTimeout:    getEnvBool("LEDGER_FAIL_OPEN_ON_LOCK_TIMEOUT", false),
			LargeOrderThreshold:      getEnvInt64("LEDGER_LARGE_ORDER_THRESHOLD", 100_000),
			ReservationMaxAge:        getEnvDuration("LEDGER_RESERVATION_MAX_AGE", 10*time.Minute),
			SweepInterval:            getEnvDuration("LEDGER_SWEEP_INTERVAL", time.Minute),
		},
		Executor: ExecutorConfig{
			SubmitRetries:       getEnvInt("EXECUTOR_SUBMIT_RETRIES", 3),
			RetryInitialBackoff: getEnvDuration("EXECUTOR_RETRY_INITIAL_BACKOFF", time.Second),
			RetryMaxBackoff:     getEnvDuration("EXECUTOR_RETRY_MAX_BACKOFF", 4*time.Second),
			TokenRefreshRetries: getEnvInt("EXECUTOR_TOKEN_REFRESH_RETRIES", 2),
			FailureThreshold:    getEnvInt("EXECUTOR_FAILURE_THRESHOLD", 3),
			BlacklistCooldown:   getEnvDuration("EXECUTOR_BLACKLIST_COOLDOWN", 30*time.Minute),
			RequestTimeout:      getEnvDuration("EXECUTOR_REQUEST_TIMEOUT", 30*time.Second),
			PositionCheckEvery:  getEnvDuration("EXECUTOR_POSITION_CHECK_EVERY", 30*time.Second),
		},
		HTTP: HTTPConfig{
			Addr:               getEnvString("HTTP_ADDR", ":8080"),
			CORSAllowedOrigins: getEnvString("CORS_ALLOWED_ORIGINS", "*"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Ledger.SafetyMargin <= 0 || c.Ledger.SafetyMargin > 1 {
		return fmt.Errorf("LEDGER_SAFETY_MARGIN must be in (0, 1], got %.2f", c.Ledger.SafetyMargin)
	}
	if c.Ledger.BuyingPowerEstimateRatio <= 0 || c.Ledger.BuyingPowerEstimateRatio > 1 {
		return fmt.Errorf("LEDGER_BUYING_POWER_ESTIMATE_RATIO must be in (0, 1], got %.2f", c.Ledger.BuyingPowerEstimateRatio)
	}
	if c.Ledger.LockTimeout <= 0 {
		return fmt.Errorf("LEDGER_LOCK_TIMEOUT must be positive, got %s", c.Ledger.LockTimeout)
	}
	if c.Risk.MaxPositionSize <= 0 {
		return fmt.Errorf("RISK_MAX_POSITION_SIZE must be positive, got %d", c.Risk.MaxPositionSize)
	}
	if c.Risk.MaxPositionPerSymbol <= 0 {
		return fmt.Errorf("RISK_MAX_POSITION_PER_SYMBOL must be positive, got %d", c.Risk.MaxPositionPerSymbol)
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("RISK_MAX_OPEN_POSITIONS must be positive, got %d", c.Risk.MaxOpenPositions)
	}
	if c.Risk.MaxLossRate <= 0 || c.Risk.MaxLossRate >= 1 {
		return fmt.Errorf("RISK_MAX_LOSS_RATE must be in (0, 1), got %.2f", c.Risk.MaxLossRate)
	}
	if c.Risk.PositionSizeRatio <= 0 || c.Risk.PositionSizeRatio > 1 {
		return fmt.Errorf("RISK_POSITION_SIZE_RATIO must be in (0, 1], got %.2f", c.Risk.PositionSizeRatio)
	}
	if c.Executor.SubmitRetries < 0 {
		return fmt.Errorf("EXECUTOR_SUBMIT_RETRIES must not be negative, got %d", c.Executor.SubmitRetries)
	}
	if c.Executor.FailureThreshold <= 0 {
		return fmt.Errorf("EXECUTOR_FAILURE_THRESHOLD must be positive, got %d", c.Executor.FailureThreshold)
	}
	return nil
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasBroker returns true if broker API credentials are available
func (c *Config) HasBroker() bool {
	return c.Broker.APIKey != "" && c.Broker.APISecret != ""
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL: "",
		},
		Broker: BrokerConfig{
			APIKey:    "",
			APISecret: "",
			BaseURL:   "https://paper-api.alpaca.markets",
		},
		Risk: RiskConfig{
			MaxPositionSize:      10_000_000,
			MaxPositionPerSymbol: 5_000_000,
			MaxOpenPositions:     10,
			MaxDailyRisk:         100_000,
			MaxVolatility:        0.5,
			MaxLossRate:          0.02,
			MaxProfitRate:        0.05,
			PositionSizeRatio:    0.1,
			BaseVolatility:       0.10,
		},
		Ledger: LedgerConfig{
			SafetyMargin:             0.98,
			BuyingPowerEstimateRatio: 0.95,
			MinSyncInterval:          3 * time.Second,
			SnapshotMaxAge:           5 * time.Minute,
			LockTimeout:              3 * time.Second,
			FailOpenOnLockTimeout:    false,
			LargeOrderThreshold:      100_000,
			ReservationMaxAge:        10 * time.Minute,
			SweepInterval:            time.Minute,
		},
		Executor: ExecutorConfig{
			SubmitRetries:       3,
			RetryInitialBackoff: time.Second,
			RetryMaxBackoff:     4 * time.Second,
			TokenRefreshRetries: 2,
			FailureThreshold:    3,
			BlacklistCooldown:   30 * time.Minute,
			RequestTimeout:      30 * time.Second,
			PositionCheckEvery:  30 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:               ":8080",
			CORSAllowedOrigins: "*",
		},
	}
}
