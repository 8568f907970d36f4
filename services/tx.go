package services

import (
	"context"
	"fmt"
	"time"

	"github.com/nls08/NLS-Portal-sub001/logging"
	"github.com/nls08/NLS-Portal-sub001/metrics"
	"github.com/nls08/NLS-Portal-sub001/storage"
)

// TxRunner runs units of work in storage transactions, retrying transient aborts.
type TxRunner struct {
	db          storage.Database
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
}

func NewTxRunner(db storage.Database, timeout time.Duration, maxAttempts int) *TxRunner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &TxRunner{db: db, timeout: timeout, maxAttempts: maxAttempts, backoff: 50 * time.Millisecond}
}

// Run executes fn in a transaction bounded by the runner's timeout. fn may run more
// than once, so it must not have side effects outside the transaction.
func (r *TxRunner) Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = r.db.WithTransaction(ctx, fn)
		if err == nil || !storage.IsTransient(err) {
			return err
		}

		metrics.TxRetries.WithLabelValues(name).Inc()
		logging.Logger.Warnf("Event ID: TX_TRANSIENT_ABORT, Description: Transaction %s aborted on attempt %d/%d: %v", name, attempt, r.maxAttempts, err)
		if attempt == r.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}
	return fmt.Errorf("%s: %w: %w", name, ErrTxConflict, err)
}

