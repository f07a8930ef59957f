// Package e2e provides end-to-end testing infrastructure for the trade engine.
package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"trade-engine/config"
	"trade-engine/internal/api"
	"trade-engine/internal/app"
	"trade-engine/repository"
	"trade-engine/services"

	"github.com/shopspring/decimal"
)

// TestHarness runs the full engine stack against a simulated broker. If
// E2E_DATABASE_URL is set, a real repository is wired in and orders and
// trades persist; otherwise the engine runs in memory only.
type TestHarness struct {
	t      *testing.T
	ctx    context.Context
	cancel context.CancelFunc
	broker *services.SimBroker
	repo   *repository.Repository
	app    *app.App
	router http.Handler
	config *config.Config
}

// NewTestHarness creates a new test harness with all dependencies initialized.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)

	return &TestHarness{
		t:      t,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Setup initializes all test dependencies.
func (h *TestHarness) Setup() error {
	h.broker = services.NewSimBroker(decimal.NewFromInt(1_000_000))

	h.config = config.NewTestConfig()
	h.config.Ledger.MinSyncInterval = 0
	h.config.Executor.RetryInitialBackoff = time.Millisecond
	h.config.Executor.RetryMaxBackoff = 4 * time.Millisecond
	h.config.Executor.BlacklistCooldown = 100 * time.Millisecond

	if dbURL := os.Getenv("E2E_DATABASE_URL"); dbURL != "" {
		var err error
		h.repo, err = repository.NewRepository(h.ctx, dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to test database: %w", err)
		}
		if err := h.repo.Migrate(h.ctx); err != nil {
			return fmt.Errorf("failed to migrate test database: %w", err)
		}
	}

	h.app = app.New(h.config, h.repo, h.broker)
	if err := h.app.Start(h.ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	handler := api.NewHandler(h.app, h.config)
	h.router = api.NewRouter(handler, h.config)

	return nil
}

// Teardown cleans up all test resources.
func (h *TestHarness) Teardown() {
	if h.repo != nil {
		h.cleanupTestData()
	}
	if h.app != nil {
		h.app.Stop()
	}
	if h.cancel != nil {
		h.cancel()
	}
}

// Context returns the test context.
func (h *TestHarness) Context() context.Context {
	return h.ctx
}

// Broker returns the simulated broker for scripting prices and failures.
func (h *TestHarness) Broker() *services.SimBroker {
	return h.broker
}

// Repository returns the test database repository, nil without E2E_DATABASE_URL.
func (h *TestHarness) Repository() *repository.Repository {
	return h.repo
}

// App returns the application instance.
func (h *TestHarness) App() *app.App {
	return h.app
}

// Router returns the HTTP router for making requests.
func (h *TestHarness) Router() http.Handler {
	return h.router
}

// Config returns the test configuration.
func (h *TestHarness) Config() *config.Config {
	return h.config
}

// DoRequest performs an HTTP request and returns the response.
func (h *TestHarness) DoRequest(method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *TestHarness) cleanupTestData() {
	queries := []string{
		"DELETE FROM orders",
		"DELETE FROM trades",
		"DELETE FROM positions",
	}

	for _, q := range queries {
		if _, err := h.repo.Pool().Exec(h.ctx, q); err != nil {
			h.t.Logf("cleanup query failed: %s: %v", q, err)
		}
	}
}
