package simplemedia

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Ledger adjusts per-space consumed storage. Every adjustment is a single
// atomic increment in the backing SpaceStore; it never reads the current
// total first.
type Ledger struct {
	spaces  SpaceStore
	logger  *slog.Logger
	metrics Metrics
}

// LedgerOption configures a Ledger
type LedgerOption func(*Ledger)

// WithLedgerLogger sets the logger used for failed adjustments
func WithLedgerLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLedgerMetrics sets the metrics recorder
func WithLedgerMetrics(m Metrics) LedgerOption {
	return func(l *Ledger) {
		if m != nil {
			l.metrics = m
		}
	}
}

// NewLedger creates a ledger over spaces
func NewLedger(spaces SpaceStore, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		spaces:  spaces,
		logger:  slog.Default(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Adjust adds delta bytes to the space. Negative deltas return capacity.
// Failures are logged and returned as a *QuotaError matching
// ErrQuotaAdjustmentFailed.
func (l *Ledger) Adjust(ctx context.Context, spaceID uuid.UUID, delta int64) error {
	if delta == 0 {
		return nil
	}
	total, err := l.spaces.IncrementUsedBytes(ctx, spaceID, delta)
	if err != nil {
		l.metrics.QuotaAdjusted("error")
		l.logger.ErrorContext(ctx, "quota adjustment failed", "space_id", spaceID, "delta", delta, "err", err)
		return &QuotaError{SpaceID: spaceID, Delta: delta, Err: err}
	}
	l.metrics.QuotaAdjusted("ok")
	l.logger.DebugContext(ctx, "quota adjusted", "space_id", spaceID, "delta", delta, "used_bytes", total)
	return nil
}
