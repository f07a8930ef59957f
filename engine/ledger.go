package engine

import (
	"context"
	"fmt"
	"time"

	"trade-engine/config"
	"trade-engine/models"
	"trade-engine/observability"
	"trade-engine/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountLedger caches broker cash figures and arbitrates all fund
// reservations. It is the single source of truth for money available to
// spend right now:
//
//	internalAvailable = max(0, orderableCash - sum of active reservations)
//
// A reservation is accepted only when amount <= internalAvailable * margin.
// All mutations are serialized through a timeout-bounded semaphore.
type AccountLedger struct {
	broker services.Broker
	config config.LedgerConfig

	sem chan struct{}

	snapshot     models.AccountSnapshot
	synced       bool
	reservations map[uuid.UUID]*models.Reservation
}

// NewAccountLedger creates a ledger backed by the given broker.
func NewAccountLedger(broker services.Broker, cfg config.LedgerConfig) *AccountLedger {
	return &AccountLedger{
		broker:       broker,
		config:       cfg,
		sem:          make(chan struct{}, 1),
		reservations: make(map[uuid.UUID]*models.Reservation),
	}
}

// acquire takes the ledger lock, waiting at most LockTimeout. The returned
// bool reports whether the lock is actually held: with FailOpenOnLockTimeout
// set, a timed-out acquisition proceeds unsynchronized instead of failing.
func (l *AccountLedger) acquire(ctx context.Context) (bool, error) {
	select {
	case l.sem <- struct{}{}:
		return true, nil
	default:
	}

	timer := time.NewTimer(l.config.LockTimeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		if l.config.FailOpenOnLockTimeout {
			observability.Warn("ledger lock timeout, proceeding unsynchronized",
				"timeout", l.config.LockTimeout)
			return false, nil
		}
		return false, ErrLockTimeout
	}
}

func (l *AccountLedger) release(held bool) {
	if held {
		<-l.sem
	}
}

// Sync refreshes the cached account snapshot from the broker. Non-forced
// calls within MinSyncInterval of the previous sync return the cached
// snapshot without a broker round trip.
func (l *AccountLedger) Sync(ctx context.Context, force bool) (models.AccountSnapshot, error) {
	held, err := l.acquire(ctx)
	if err != nil {
		return models.AccountSnapshot{}, err
	}
	defer l.release(held)

	if err := l.syncLocked(ctx, force); err != nil {
		return l.snapshot, err
	}
	return l.snapshot, nil
}

// syncLocked fetches fresh balance figures. Callers must hold the lock.
func (l *AccountLedger) syncLocked(ctx context.Context, force bool) error {
	if !force && l.synced && time.Since(l.snapshot.LastSyncTime) < l.config.MinSyncInterval {
		return nil
	}

	balance, err := l.broker.GetAccountBalance(ctx)
	if err != nil {
		return fmt.Errorf("account sync failed: %w", err)
	}

	orderable := balance.OrderableCash
	if orderable.IsZero() && balance.AvailableCash.IsPositive() {
		// Degraded broker data: estimate buying power from reported cash.
		orderable = balance.AvailableCash.Mul(decimal.NewFromFloat(l.config.BuyingPowerEstimateRatio))
		observability.Warn("broker reported zero buying power, using estimate",
			"available_cash", balance.AvailableCash,
			"estimate", orderable)
	}

	l.snapshot = models.AccountSnapshot{
		AvailableCash: balance.AvailableCash,
		OrderableCash: orderable,
		TotalBalance:  balance.TotalBalance,
		LastSyncTime:  time.Now(),
	}
	l.synced = true

	observability.Debug("account synced",
		"available_cash", l.snapshot.AvailableCash,
		"orderable_cash", l.snapshot.OrderableCash)
	return nil
}

// reservedTotalLocked sums all active reservation amounts.
func (l *AccountLedger) reservedTotalLocked() decimal.Decimal {
	total := decimal.Zero
	for _, r := range l.reservations {
		total = total.Add(r.Amount)
	}
	return total
}

// internalAvailableLocked computes max(0, orderable - reserved).
func (l *AccountLedger) internalAvailableLocked() decimal.Decimal {
	available := l.snapshot.OrderableCash.Sub(l.reservedTotalLocked())
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

func (l *AccountLedger) updateGaugesLocked() {
	total, _ := l.reservedTotalLocked().Float64()
	observability.GetMetrics().SetReservations(len(l.reservations), total)
}

// Reserve places a hold of amount against available cash for an order on
// symbol. It forces a balance sync first, applies the safety margin, and
// re-verifies large amounts against a second fresh broker figure.
func (l *AccountLedger) Reserve(ctx context.Context, symbol string, amount decimal.Decimal) (uuid.UUID, error) {
	metrics := observability.GetMetrics()

	if !amount.IsPositive() {
		metrics.RecordReservationRejection(models.ReasonInvalidQuantity)
		return uuid.Nil, fmt.Errorf("reservation amount must be positive, got %s", amount)
	}

	held, err := l.acquire(ctx)
	if err != nil {
		if err == ErrLockTimeout {
			metrics.RecordReservationRejection(models.ReasonLockTimeout)
		}
		return uuid.Nil, err
	}
	defer l.release(held)

	if err := l.syncLocked(ctx, true); err != nil {
		if !l.synced {
			return uuid.Nil, ErrNoSnapshot
		}
		observability.Warn("reserving against cached snapshot, sync failed",
			"symbol", symbol, "error", err)
	}

	if err := l.checkMarginLocked(symbol, amount); err != nil {
		return uuid.Nil, err
	}

	if amount.GreaterThan(decimal.NewFromInt(l.config.LargeOrderThreshold)) {
		// Second check against the freshest broker figure before
		// committing a large hold.
		if err := l.syncLocked(ctx, true); err != nil {
			observability.Warn("large order re-verification sync failed",
				"symbol", symbol, "error", err)
		}
		if err := l.checkMarginLocked(symbol, amount); err != nil {
			return uuid.Nil, err
		}
	}

	reservation := &models.Reservation{
		ID:        uuid.New(),
		Symbol:    symbol,
		Amount:    amount,
		CreatedAt: time.Now(),
	}
	l.reservations[reservation.ID] = reservation
	l.updateGaugesLocked()

	observability.Info("funds reserved",
		"reservation_id", reservation.ID,
		"symbol", symbol,
		"amount", amount,
		"internal_available", l.internalAvailableLocked())

	return reservation.ID, nil
}

func (l *AccountLedger) checkMarginLocked(symbol string, amount decimal.Decimal) error {
	internal := l.internalAvailableLocked()
	limit := internal.Mul(decimal.NewFromFloat(l.config.SafetyMargin))
	if amount.GreaterThan(limit) {
		observability.GetMetrics().RecordReservationRejection(models.ReasonInsufficientFunds)
		observability.Warn("reservation rejected",
			"symbol", symbol,
			"amount", amount,
			"internal_available", internal,
			"margin_limit", limit)
		return ErrInsufficientFunds
	}
	return nil
}

// Confirm resolves a reservation. On success the amount stays accounted as
// spent until the next sync reflects it broker-side; on failure it is
// credited back. Confirming an unknown or already-resolved reservation is
// a no-op.
func (l *AccountLedger) Confirm(ctx context.Context, id uuid.UUID, success bool) bool {
	held, err := l.acquire(ctx)
	if err != nil {
		observability.Error("confirm could not acquire ledger lock",
			"reservation_id", id, "error", err)
		return false
	}
	defer l.release(held)

	reservation, exists := l.reservations[id]
	if !exists {
		return false
	}
	delete(l.reservations, id)

	if success {
		// Keep the spent amount off the books until the broker reports
		// the reduced balance.
		l.snapshot.OrderableCash = l.snapshot.OrderableCash.Sub(reservation.Amount)
		if l.snapshot.OrderableCash.IsNegative() {
			l.snapshot.OrderableCash = decimal.Zero
		}
	}
	l.updateGaugesLocked()

	observability.Info("reservation resolved",
		"reservation_id", id,
		"symbol", reservation.Symbol,
		"amount", reservation.Amount,
		"success", success)
	return true
}

// Cancel releases a reservation, crediting the amount back. Cancelling an
// unknown or already-resolved reservation is a no-op.
func (l *AccountLedger) Cancel(ctx context.Context, id uuid.UUID) bool {
	held, err := l.acquire(ctx)
	if err != nil {
		observability.Error("cancel could not acquire ledger lock",
			"reservation_id", id, "error", err)
		return false
	}
	defer l.release(held)

	reservation, exists := l.reservations[id]
	if !exists {
		return false
	}
	delete(l.reservations, id)
	l.updateGaugesLocked()

	observability.Info("reservation cancelled",
		"reservation_id", id,
		"symbol", reservation.Symbol,
		"amount", reservation.Amount)
	return true
}

// SweepExpired releases reservations older than ReservationMaxAge that were
// never confirmed, recovering from crashed or abandoned order flows. It
// returns the number of reservations released.
func (l *AccountLedger) SweepExpired(ctx context.Context) int {
	held, err := l.acquire(ctx)
	if err != nil {
		observability.Error("sweep could not acquire ledger lock", "error", err)
		return 0
	}
	defer l.release(held)

	cutoff := time.Now().Add(-l.config.ReservationMaxAge)
	swept := 0
	for id, r := range l.reservations {
		if r.CreatedAt.Before(cutoff) {
			delete(l.reservations, id)
			swept++
			observability.Warn("stale reservation swept",
				"reservation_id", id,
				"symbol", r.Symbol,
				"amount", r.Amount,
				"age", time.Since(r.CreatedAt))
		}
	}

	if swept > 0 {
		observability.GetMetrics().RecordReservationsSwept(swept)
		l.updateGaugesLocked()
	}
	return swept
}

// Snapshot returns the cached account state combined with live reservation
// totals, refreshing from the broker when the cache is older than
// SnapshotMaxAge. Sync failures serve the stale cache with a warning.
func (l *AccountLedger) Snapshot(ctx context.Context) (models.AccountInfo, error) {
	held, err := l.acquire(ctx)
	if err != nil {
		return models.AccountInfo{}, err
	}
	defer l.release(held)

	if !l.synced || time.Since(l.snapshot.LastSyncTime) > l.config.SnapshotMaxAge {
		if err := l.syncLocked(ctx, false); err != nil {
			if !l.synced {
				return models.AccountInfo{}, ErrNoSnapshot
			}
			observability.Warn("serving stale account snapshot", "error", err)
		}
	}

	return models.AccountInfo{
		AvailableCash:       l.snapshot.AvailableCash,
		OrderableCash:       l.snapshot.OrderableCash,
		TotalBalance:        l.snapshot.TotalBalance,
		InternalAvailable:   l.internalAvailableLocked(),
		OrderedAmount:       l.reservedTotalLocked(),
		PendingReservations: len(l.reservations),
		LastSyncTime:        l.snapshot.LastSyncTime,
	}, nil
}

// RunSweeper periodically releases stale reservations until ctx is done.
func (l *AccountLedger) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(l.config.SweepInterval)
	defer ticker.Stop()

	observability.Info("reservation sweeper started",
		"interval", l.config.SweepInterval,
		"max_age", l.config.ReservationMaxAge)

	for {
		select {
		case <-ctx.Done():
			observability.Info("reservation sweeper stopped")
			return
		case <-ticker.C:
			if swept := l.SweepExpired(ctx); swept > 0 {
				observability.Info("swept stale reservations", "count", swept)
			}
		}
	}
}
