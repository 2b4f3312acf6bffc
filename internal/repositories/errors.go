package repositories

import (
	"errors"
	"fmt"
)

// StoreErrorCode enumerates repository error causes shared by every backend.
type StoreErrorCode string

const (
	// StoreErrorUnknown represents an unspecified storage failure.
	StoreErrorUnknown StoreErrorCode = "store_unknown"
	// StoreErrorNotFound indicates the document does not exist.
	StoreErrorNotFound StoreErrorCode = "store_not_found"
	// StoreErrorConflict indicates a duplicate insert or exhausted transaction retries.
	StoreErrorConflict StoreErrorCode = "store_conflict"
	// StoreErrorUnavailable indicates the backend could not be reached.
	StoreErrorUnavailable StoreErrorCode = "store_unavailable"
)

// StoreError wraps storage failures with machine readable codes and the ledger context
// needed for manual reconciliation.
type StoreError struct {
	Op        string
	Code      StoreErrorCode
	Message   string
	OrderID   string
	ProductID string
	Err       error
}

var _ RepositoryError = (*StoreError)(nil)

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the document was missing.
func (e *StoreError) IsNotFound() bool { return e != nil && e.Code == StoreErrorNotFound }

// IsConflict reports whether the write lost a race or duplicated an id.
func (e *StoreError) IsConflict() bool { return e != nil && e.Code == StoreErrorConflict }

// IsUnavailable reports whether the backend was unreachable.
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Code == StoreErrorUnavailable }

// NewStoreError constructs a typed storage error.
func NewStoreError(op string, code StoreErrorCode, message string, err error) *StoreError {
	return &StoreError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NotFound builds a not-found error for op.
func NotFound(op string, message string) *StoreError {
	return NewStoreError(op, StoreErrorNotFound, message, nil)
}

// WithOrder attaches ledger context to storage errors. Errors that do not come from a
// repository, such as decisions returned by a mutator, are returned unchanged.
func WithOrder(err error, orderID, productID string) error {
	if err == nil {
		return nil
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		clone := *storeErr
		if clone.OrderID == "" {
			clone.OrderID = orderID
		}
		if clone.ProductID == "" {
			clone.ProductID = productID
		}
		return &clone
	}
	var repoErr RepositoryError
	if !errors.As(err, &repoErr) {
		return err
	}
	code := StoreErrorUnknown
	switch {
	case repoErr.IsNotFound():
		code = StoreErrorNotFound
	case repoErr.IsConflict():
		code = StoreErrorConflict
	case repoErr.IsUnavailable():
		code = StoreErrorUnavailable
	}
	return &StoreError{Code: code, OrderID: orderID, ProductID: productID, Err: err}
}

// IsNotFound reports whether err carries a not-found classification.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err carries a conflict classification.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
