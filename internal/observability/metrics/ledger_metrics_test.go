package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyLedgerReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: LedgerReasonDeadlineExceeded},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: LedgerReasonDBLockTimeout},
		{name: "serialization", err: fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40001"}), want: LedgerReasonSerializationFailure},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: LedgerReasonDeadlock},
		{name: "unique", err: gorm.ErrDuplicatedKey, want: LedgerReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: LedgerReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyLedgerReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestLedgerMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newLedgerMetrics(registry, Config{ServiceName: "thinktest", Environment: "test"})

	m.IncRetry(LedgerOperationDeduct)
	m.IncRetry(LedgerOperationDeduct)
	m.IncError(LedgerOperationCredit, &pgconn.PgError{Code: "55P03"})
	m.ObserveOperation(LedgerOperationDeduct, LedgerOutcomeOK, 3*time.Millisecond)

	if got := testutil.ToFloat64(m.retries.WithLabelValues(LedgerOperationDeduct)); got != 2 {
		t.Fatalf("expected 2 retries, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues(LedgerOperationCredit, LedgerReasonDBLockTimeout)); got != 1 {
		t.Fatalf("expected 1 lock timeout error, got %v", got)
	}
}
