package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// TxFunc is executed within a Firestore transaction. It may run several times.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises transaction behaviour.
type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	timeout  time.Duration
}

// WithTxAttempts overrides the retry attempts for a transaction.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout sets a timeout for the transaction context.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// RunTransaction executes fn within a transaction on the provided client. Errors returned
// by fn that already carry their own meaning (sentinels, typed errors) are passed through
// untouched; only Firestore failures are classified.
func RunTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, opts ...TxOption) error {
	if client == nil {
		return WrapError("transaction", errors.New("firestore: client is nil"))
	}
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.timeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > cfg.timeout {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
		}
	}

	var appErr error
	err := client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		appErr = nil
		if err := fn(ctx, tx); err != nil {
			var passthrough *abortError
			if errors.As(err, &passthrough) {
				appErr = passthrough.err
			}
			return err
		}
		return nil
	}, firestore.MaxAttempts(cfg.attempts))

	if appErr != nil {
		return appErr
	}
	return WrapError("transaction", err)
}

type abortError struct{ err error }

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// Abort marks err as an application decision: the transaction rolls back and
// RunTransaction returns err unchanged instead of classifying it as a storage failure.
func Abort(err error) error {
	if err == nil {
		return nil
	}
	return &abortError{err: err}
}
