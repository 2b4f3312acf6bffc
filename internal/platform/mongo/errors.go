package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// Error implements repositories.RepositoryError for MongoDB backed repositories.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether no document matched.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict reports duplicate keys and transaction write conflicts.
func (e *Error) IsConflict() bool { return e != nil && e.conflict }

// IsUnavailable reports network failures and server timeouts.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// WrapError classifies driver errors. Context cancellations are passed through.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	e := &Error{op: op, err: err}
	var labeled mongo.LabeledError
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		e.notFound = true
	case mongo.IsDuplicateKeyError(err):
		e.conflict = true
	case errors.As(err, &labeled) && labeled.HasErrorLabel("TransientTransactionError"):
		e.conflict = true
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		e.unavailable = true
	}
	return e
}
