package scheduler

import (
	"context"
	"time"

	"repairlink_backend/platform/logger"
)

// StalePaymentExpirer periodically expires abandoned payment intents,
// freeing each request's active-payment slot for a retry.
type StalePaymentExpirer struct {
	payments StaleExpirer
	interval time.Duration
	log      *logger.Logger
}

// StaleExpirer is the slice of the payments service the expirer needs.
type StaleExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// NewStalePaymentExpirer creates the expirer loop.
func NewStalePaymentExpirer(payments StaleExpirer, interval time.Duration, log *logger.Logger) *StalePaymentExpirer {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StalePaymentExpirer{payments: payments, interval: interval, log: log}
}

// Run sweeps until the context is cancelled.
func (e *StalePaymentExpirer) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		expired, err := e.payments.ExpireStale(ctx)
		if err != nil {
			e.log.Warn("stale payment sweep failed", "error", err)
			continue
		}
		if expired > 0 {
			e.log.Info("expired stale payments", "count", expired)
		}
	}
}
