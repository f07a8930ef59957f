package app

import (
	"context"
	"fmt"

	"trade-engine/config"
	"trade-engine/engine"
	"trade-engine/models"
	"trade-engine/observability"
	"trade-engine/repository"
	"trade-engine/services"
)

// The repository doubles as the executor's persistence port.
var _ engine.Recorder = (*repository.Repository)(nil)

// App wires the engine stack together and owns the background loops.
type App struct {
	cfg      *config.Config
	repo     *repository.Repository
	broker   services.Broker
	ledger   *engine.AccountLedger
	book     *engine.PositionBook
	risk     *engine.RiskGate
	executor *engine.OrderExecutor

	cancel context.CancelFunc
}

// New builds the full engine stack. repo may be nil, in which case
// orders and trades are not persisted.
func New(cfg *config.Config, repo *repository.Repository, broker services.Broker) *App {
	ledger := engine.NewAccountLedger(broker, cfg.Ledger)
	book := engine.NewPositionBook()
	risk := engine.NewRiskGate(broker, book, cfg.Risk)

	var recorder engine.Recorder
	if repo != nil {
		recorder = repo
	}
	executor := engine.NewOrderExecutor(broker, ledger, book, risk, recorder, cfg)

	return &App{
		cfg:      cfg,
		repo:     repo,
		broker:   broker,
		ledger:   ledger,
		book:     book,
		risk:     risk,
		executor: executor,
	}
}

// Start restores persisted positions, primes the account snapshot, and
// launches the reservation sweeper and position check loops.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.repo != nil {
		positions, err := a.repo.GetPositions(runCtx)
		if err != nil {
			observability.Warn("could not restore positions", "error", err)
		} else if len(positions) > 0 {
			a.book.Restore(positions)
			observability.Info("positions restored", "count", len(positions))
		}
	}

	if _, err := a.ledger.Sync(runCtx, true); err != nil {
		return fmt.Errorf("initial account sync failed: %w", err)
	}

	go a.ledger.RunSweeper(runCtx)
	go a.executor.RunPositionChecks(runCtx)

	observability.Info("engine started")
	return nil
}

// Stop cancels the background loops and closes the repository.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.repo != nil {
		a.repo.Close()
	}
	observability.Info("engine stopped")
}

// HasDatabase reports whether persistence is configured.
func (a *App) HasDatabase() bool {
	return a.repo != nil
}

// DatabaseHealthy pings the database.
func (a *App) DatabaseHealthy(ctx context.Context) error {
	if a.repo == nil {
		return fmt.Errorf("database not initialized")
	}
	return a.repo.Health(ctx)
}

// PlaceOrder runs an intent through the executor.
func (a *App) PlaceOrder(ctx context.Context, intent models.OrderIntent) *models.OrderResult {
	return a.executor.PlaceOrder(ctx, intent)
}

// CancelOrder cancels a pending order.
func (a *App) CancelOrder(ctx context.Context, orderID string) *models.OrderResult {
	return a.executor.CancelOrder(ctx, orderID)
}

// GetPositions returns all open positions.
func (a *App) GetPositions() []models.Position {
	return a.executor.GetPositions()
}

// GetAccountInfo returns the combined account view.
func (a *App) GetAccountInfo(ctx context.Context) (models.AccountInfo, error) {
	return a.executor.GetAccountInfo(ctx)
}

// GetRiskMetrics returns the rolling risk state.
func (a *App) GetRiskMetrics() models.RiskMetrics {
	return a.executor.GetRiskMetrics()
}

// BreakerStatus returns the per-symbol circuit breaker states.
func (a *App) BreakerStatus() map[string]services.SymbolBreakerStatus {
	return a.executor.BreakerStatus()
}

// PauseTrading stops new orders; exits still run.
func (a *App) PauseTrading() bool {
	return a.executor.PauseTrading()
}

// ResumeTrading lifts the pause.
func (a *App) ResumeTrading() bool {
	return a.executor.ResumeTrading()
}

// Paused reports the pause state.
func (a *App) Paused() bool {
	return a.executor.Paused()
}

// GetTrades returns recent persisted trades.
func (a *App) GetTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	if a.repo == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return a.repo.GetTrades(ctx, limit)
}

// GetOrders returns recent persisted order records.
func (a *App) GetOrders(ctx context.Context, limit int) ([]models.OrderRecord, error) {
	if a.repo == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return a.repo.GetOrders(ctx, limit)
}
