package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Order metrics
	OrdersTotal     *prometheus.CounterVec
	OrderDuration   *prometheus.HistogramVec
	OrderRejections *prometheus.CounterVec
	OrderValue      *prometheus.HistogramVec

	// Reservation metrics
	ReservationsActive    prometheus.Gauge
	ReservedAmount        prometheus.Gauge
	ReservationRejections *prometheus.CounterVec
	ReservationsSwept     prometheus.Counter

	// Risk gate metrics
	RiskRejections *prometheus.CounterVec
	DailyRiskUsed  prometheus.Gauge

	// Broker API metrics
	BrokerRequestsTotal *prometheus.CounterVec
	BrokerErrorsTotal   *prometheus.CounterVec
	BrokerDuration      *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryTotal    *prometheus.CounterVec
	DBErrorsTotal   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec
}

// defaultBuckets are the default histogram buckets for duration metrics (in seconds)
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// valueBuckets are histogram buckets for order values in currency units
var valueBuckets = prometheus.ExponentialBuckets(10_000, 4, 8)

// globalMetrics is the global metrics instance
var globalMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	m := &Metrics{
		OrdersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trade_engine",
				Subsystem: "orders",
				Name:      "total",
				Help:      "Total number of order placements by side and terminal status",
			},
			[]string{"side", "status"},
		),
		OrderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trade_engine",
				Subsystem: "orders",
				Name:      "duration_seconds",
				Help:      "Duration of order placement in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"status"},
		),
		OrderRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trade_engine",
				Subsystem: "orders",
				Name:      "rejections_total",
				Help:      "Total number of rejected orders by reason",
			},
			[]string{"reason"},
		),
		OrderValue: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trade_engine",
				Subsystem: "orders",
				Name:      "value",
				Help:      "Distribution of filled order values in currency units",
				Buckets:   valueBuckets,
			},
			[]string{"side"},
		),

		ReservationsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "trade_engine",
				Subsystem: "ledger",
				Name:      "reservations_active",
				Help:      "Number of currently outstanding cash reservations",
			},
		),
		ReservedAmount: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "trade_engine",
				Subsystem: "ledger",
				Name:      "reserved_amount",
				Help:      "Total cash currently reserved in currency units",
			},
		),
		ReservationRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trade_engine",
				Subsystem: "ledger",
				Name:      "reservation_rejections_total",
				Help:      "Total number of rejected reservations by reason",
			},
			[]string{"reason"},
		),
		ReservationsSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "trade_engine",
				Subsystem: "ledger",
				Name:      "reservations_swept_total",
				Help:      "Total number of expired reservations reclaimed by the sweeper",
			},
		),

		RiskRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trade_engine",
				Subsystem: "risk",
				Name:      "rejections_total",
				Help:      "Total number of risk gate rejections by limit",
			},
			[]string{"limit"},
		),
		DailyRiskUsed: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "trade_engine",
				Subsystem: "risk",
				Name:      "daily_risk_used",
				Help:      "Daily risk budget consumed in currency units",
			},
		),

		BrokerRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trade_engine",
				Subsystem: "broker",
				Name:      "requests_total",
				Help:      "Total number of broker API requests",
			},
			[]string{"operation"},
		),
		BrokerErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trade_engine",
				Subsystem: "broker",
				Name:      "errors_total",
				Help:      "Total number of broker API errors",
			},
			[]string{"operation", "error_type"},
		),
		BrokerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trade_engine",
				Subsystem: "broker",
				Name:      "duration_seconds",
				Help:      "Duration of broker API calls in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"operation"},
		),

		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "trade_engine",
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Current state of per-symbol circuit breakers (0=closed, 1=half-open, 2=open)",
			},
			[]string{"symbol"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trade_engine",
				Subsystem: "circuit_breaker",
				Name:      "trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"symbol"},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trade_engine",
				Subsystem: "database",
				Name:      "query_duration_seconds",
				Help:      "Duration of database queries in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"operation", "table"},
		),
		DBQueryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trade_engine",
				Subsystem: "database",
				Name:      "queries_total",
				Help:      "Total number of database queries",
			},
			[]string{"operation", "table"},
		),
		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trade_engine",
				Subsystem: "database",
				Name:      "errors_total",
				Help:      "Total number of database errors",
			},
			[]string{"operation", "table"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trade_engine",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trade_engine",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trade_engine",
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "Size of HTTP responses in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),
	}

	return m
}

// InitMetrics initializes the global metrics instance
func InitMetrics() *Metrics {
	globalMetrics = NewMetrics(nil)
	return globalMetrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		return InitMetrics()
	}
	return globalMetrics
}

// SetMetrics overrides the global metrics instance (useful for testing)
func SetMetrics(m *Metrics) {
	globalMetrics = m
}

// RecordOrder records a completed order placement
func (m *Metrics) RecordOrder(side, status string, duration time.Duration) {
	m.OrdersTotal.WithLabelValues(side, status).Inc()
	m.OrderDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordOrderRejection records a rejected order
func (m *Metrics) RecordOrderRejection(reason string) {
	m.OrderRejections.WithLabelValues(reason).Inc()
}

// RecordOrderValue records the value of a filled order
func (m *Metrics) RecordOrderValue(side string, value float64) {
	m.OrderValue.WithLabelValues(side).Observe(value)
}

// SetReservations updates the active reservation gauges
func (m *Metrics) SetReservations(count int, amount float64) {
	m.ReservationsActive.Set(float64(count))
	m.ReservedAmount.Set(amount)
}

// RecordReservationRejection records a rejected reservation
func (m *Metrics) RecordReservationRejection(reason string) {
	m.ReservationRejections.WithLabelValues(reason).Inc()
}

// RecordReservationsSwept records expired reservations reclaimed by the sweeper
func (m *Metrics) RecordReservationsSwept(count int) {
	m.ReservationsSwept.Add(float64(count))
}

// RecordRiskRejection records a risk gate rejection
func (m *Metrics) RecordRiskRejection(limit string) {
	m.RiskRejections.WithLabelValues(limit).Inc()
}

// SetDailyRiskUsed updates the consumed daily risk gauge
func (m *Metrics) SetDailyRiskUsed(amount float64) {
	m.DailyRiskUsed.Set(amount)
}

// RecordBrokerRequest records a broker API request
func (m *Metrics) RecordBrokerRequest(operation string) {
	m.BrokerRequestsTotal.WithLabelValues(operation).Inc()
}

// RecordBrokerError records a broker API error
func (m *Metrics) RecordBrokerError(operation, errorType string) {
	m.BrokerErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordBrokerDuration records the duration of a broker API call
func (m *Metrics) RecordBrokerDuration(operation string, duration time.Duration) {
	m.BrokerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetCircuitBreakerState sets the current state of a symbol's circuit breaker
func (m *Metrics) SetCircuitBreakerState(symbol string, state int) {
	m.CircuitBreakerState.WithLabelValues(symbol).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(symbol string) {
	m.CircuitBreakerTrips.WithLabelValues(symbol).Inc()
}

// RecordDBQuery records a database query
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration) {
	m.DBQueryTotal.WithLabelValues(operation, table).Inc()
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordDBError records a database error
func (m *Metrics) RecordDBError(operation, table string) {
	m.DBErrorsTotal.WithLabelValues(operation, table).Inc()
}

// RecordHTTPRequest records an HTTP request with its status, duration, and response size
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// Timer is a helper for timing operations
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer creates a new timer
func (m *Metrics) NewTimer() *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: m,
	}
}

// ObserveOrder records the order duration and terminal status
func (t *Timer) ObserveOrder(side, status string) {
	t.metrics.RecordOrder(side, status, time.Since(t.start))
}

// ObserveBroker records the broker call duration
func (t *Timer) ObserveBroker(operation string) {
	t.metrics.RecordBrokerDuration(operation, time.Since(t.start))
}

// ObserveDB records the database query duration
func (t *Timer) ObserveDB(operation, table string) {
	t.metrics.RecordDBQuery(operation, table, time.Since(t.start))
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
