package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	LedgerReasonDeadlineExceeded     = "deadline_exceeded"
	LedgerReasonDBLockTimeout        = "db_lock_timeout"
	LedgerReasonSerializationFailure = "serialization_failure"
	LedgerReasonDeadlock             = "deadlock"
	LedgerReasonUniqueViolation      = "unique_violation"
	LedgerReasonUnknown              = "unknown"
)

const (
	LedgerOperationDeduct    = "deduct"
	LedgerOperationCredit    = "credit"
	LedgerOperationAdjust    = "adjust"
	LedgerOperationReconcile = "reconcile"
	LedgerOperationRefund    = "refund"
)

const (
	LedgerOutcomeOK           = "ok"
	LedgerOutcomeInsufficient = "insufficient"
	LedgerOutcomeConflict     = "conflict"
	LedgerOutcomeError        = "error"
)

// LedgerMetrics captures contention on per-account balance rows.
type LedgerMetrics struct {
	operationDuration *prometheus.HistogramVec
	retries           *prometheus.CounterVec
	errors            *prometheus.CounterVec
	lockWait          *prometheus.HistogramVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerMetrics     *LedgerMetrics
)

// Ledger returns the singleton ledger metrics registry.
func Ledger() *LedgerMetrics {
	return LedgerWithConfig(Config{})
}

// LedgerWithConfig returns the singleton ledger metrics registry using config labels.
func LedgerWithConfig(cfg Config) *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerMetrics = newLedgerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return ledgerMetrics
}

func newLedgerMetrics(registerer prometheus.Registerer, cfg Config) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "thinktest"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "thinktest_ledger_operation_duration_seconds",
		Help:        "Latency of atomic ledger operations including retries.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"operation", "outcome"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "thinktest_ledger_retries_total",
		Help:        "Ledger operations retried after a balance version conflict.",
		ConstLabels: constLabels,
	}, []string{"operation"})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "thinktest_ledger_errors_total",
		Help:        "Ledger operation failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"operation", "reason"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "thinktest_ledger_lock_wait_seconds",
		Help:        "Time spent acquiring SELECT FOR UPDATE row locks.",
		Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		ConstLabels: constLabels,
	}, []string{"resource"})

	registerer.MustRegister(operationDuration, retries, errorsTotal, lockWait)

	return &LedgerMetrics{
		operationDuration: operationDuration,
		retries:           retries,
		errors:            errorsTotal,
		lockWait:          lockWait,
	}
}

// ObserveOperation records the latency of one ledger operation.
func (m *LedgerMetrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil || m.operationDuration == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

// IncRetry counts a retried ledger operation.
func (m *LedgerMetrics) IncRetry(operation string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

// IncError counts a failed ledger operation classified by reason.
func (m *LedgerMetrics) IncError(operation string, err error) {
	if m == nil || m.errors == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(operation, ClassifyLedgerReason(err)).Inc()
}

// ObserveLockWait records how long a row lock took to acquire.
func (m *LedgerMetrics) ObserveLockWait(resource string, duration time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

// ClassifyLedgerReason maps storage errors to a bounded set of reasons.
func ClassifyLedgerReason(err error) string {
	if err == nil {
		return LedgerReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return LedgerReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return LedgerReasonUniqueViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return LedgerReasonDBLockTimeout
		case "40001":
			return LedgerReasonSerializationFailure
		case "40P01":
			return LedgerReasonDeadlock
		case "23505":
			return LedgerReasonUniqueViolation
		}
	}
	return LedgerReasonUnknown
}
