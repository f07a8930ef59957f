package services

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"trade-engine/observability"
)

// SymbolBreakerConfig holds configuration for per-symbol circuit breakers
type SymbolBreakerConfig struct {
	FailureThreshold uint32        // consecutive failures before the symbol is blacklisted
	Cooldown         time.Duration // how long a blacklisted symbol is refused
}

// DefaultSymbolBreakerConfig mirrors the executor defaults
var DefaultSymbolBreakerConfig = SymbolBreakerConfig{
	FailureThreshold: 3,
	Cooldown:         30 * time.Minute,
}

// SymbolBreakers manages one circuit breaker per trading symbol. A symbol
// whose submissions fail FailureThreshold times in a row is refused for
// Cooldown; one successful submission closes it again.
type SymbolBreakers struct {
	mu        sync.RWMutex
	breakers  map[string]*gobreaker.CircuitBreaker[*SubmitOrderResponse]
	trippedAt map[string]time.Time
	config    SymbolBreakerConfig
}

// NewSymbolBreakers creates a new registry with the given config
func NewSymbolBreakers(config SymbolBreakerConfig) *SymbolBreakers {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = DefaultSymbolBreakerConfig.FailureThreshold
	}
	if config.Cooldown == 0 {
		config.Cooldown = DefaultSymbolBreakerConfig.Cooldown
	}
	return &SymbolBreakers{
		breakers:  make(map[string]*gobreaker.CircuitBreaker[*SubmitOrderResponse]),
		trippedAt: make(map[string]time.Time),
		config:    config,
	}
}

// Get returns (or creates) the circuit breaker for the given symbol
func (r *SymbolBreakers) Get(symbol string) *gobreaker.CircuitBreaker[*SubmitOrderResponse] {
	r.mu.RLock()
	cb, exists := r.breakers[symbol]
	r.mu.RUnlock()

	if exists {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, exists = r.breakers[symbol]; exists {
		return cb
	}

	threshold := r.config.FailureThreshold
	settings := gobreaker.Settings{
		Name:        symbol,
		MaxRequests: 1, // one trial order once the cooldown elapses
		Interval:    0, // consecutive-failure counts never age out while closed
		Timeout:     r.config.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(symbol string, from gobreaker.State, to gobreaker.State) {
			r.recordStateChange(symbol, from, to)
		},
	}

	cb = gobreaker.NewCircuitBreaker[*SubmitOrderResponse](settings)
	r.breakers[symbol] = cb

	return cb
}

// Execute runs the given submission through the symbol's circuit breaker
func (r *SymbolBreakers) Execute(symbol string, fn func() (*SubmitOrderResponse, error)) (*SubmitOrderResponse, error) {
	return r.Get(symbol).Execute(fn)
}

// Open reports whether the symbol is currently blacklisted and, if so,
// how much of the cooldown remains.
func (r *SymbolBreakers) Open(symbol string) (bool, time.Duration) {
	r.mu.RLock()
	cb, exists := r.breakers[symbol]
	tripped := r.trippedAt[symbol]
	r.mu.RUnlock()

	if !exists || cb.State() != gobreaker.StateOpen {
		return false, 0
	}

	remaining := r.config.Cooldown - time.Since(tripped)
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining
}

// ConsecutiveFailures returns the symbol's current consecutive failure count
func (r *SymbolBreakers) ConsecutiveFailures(symbol string) uint32 {
	r.mu.RLock()
	cb, exists := r.breakers[symbol]
	r.mu.RUnlock()

	if !exists {
		return 0
	}
	return cb.Counts().ConsecutiveFailures
}

func (r *SymbolBreakers) recordStateChange(symbol string, from, to gobreaker.State) {
	observability.Warn("circuit breaker state change",
		"symbol", symbol,
		"from", from.String(),
		"to", to.String())

	metrics := observability.GetMetrics()
	metrics.SetCircuitBreakerState(symbol, stateToInt(to))

	if to == gobreaker.StateOpen {
		r.mu.Lock()
		r.trippedAt[symbol] = time.Now()
		r.mu.Unlock()
		metrics.RecordCircuitBreakerTrip(symbol)
	}
}

// SymbolBreakerStatus represents the current state of one symbol's breaker
type SymbolBreakerStatus struct {
	Symbol            string        `json:"symbol"`
	State             string        `json:"state"`
	ConsecutiveFails  uint32        `json:"consecutive_failures"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
}

// Status returns the current state of all symbol breakers
func (r *SymbolBreakers) Status() map[string]SymbolBreakerStatus {
	// Snapshot under the read lock; cb.State() may fire the state-change
	// callback, which takes the write lock.
	r.mu.RLock()
	breakers := make(map[string]*gobreaker.CircuitBreaker[*SubmitOrderResponse], len(r.breakers))
	trippedAt := make(map[string]time.Time, len(r.trippedAt))
	for symbol, cb := range r.breakers {
		breakers[symbol] = cb
	}
	for symbol, at := range r.trippedAt {
		trippedAt[symbol] = at
	}
	r.mu.RUnlock()

	status := make(map[string]SymbolBreakerStatus, len(breakers))
	for symbol, cb := range breakers {
		var remaining time.Duration
		if cb.State() == gobreaker.StateOpen {
			remaining = r.config.Cooldown - time.Since(trippedAt[symbol])
			if remaining < 0 {
				remaining = 0
			}
		}
		status[symbol] = SymbolBreakerStatus{
			Symbol:            symbol,
			State:             cb.State().String(),
			ConsecutiveFails:  cb.Counts().ConsecutiveFailures,
			CooldownRemaining: remaining,
		}
	}
	return status
}

// stateToInt converts a circuit breaker state to an integer for metrics
// 0=closed, 1=half-open, 2=open
func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
