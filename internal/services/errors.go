package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/picklepantry/api/internal/platform/pagination"
	"github.com/picklepantry/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrCheckoutValidation signals a checkout without items, address or a usable method.
	ErrCheckoutValidation = errors.New("checkout: validation failed")
	// ErrOrderInvalidStatus signals a status value outside the enum.
	ErrOrderInvalidStatus = errors.New("order: invalid status")
	// ErrOrderNotFound indicates the order does not exist or is not visible to the caller.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrProductNotFound indicates a referenced product does not exist.
	ErrProductNotFound = errors.New("product: not found")
	// ErrOrderIllegalTransition indicates a state machine violation.
	ErrOrderIllegalTransition = errors.New("order: illegal status transition")
	// ErrPaymentVerificationFailed indicates the gateway proof did not hold. No order exists.
	ErrPaymentVerificationFailed = errors.New("payment: verification failed")
	// ErrPaymentUnavailable indicates the gateway could not be reached.
	ErrPaymentUnavailable = errors.New("payment: gateway unavailable")
	// ErrDeliveryOTPMismatch indicates the delivery code did not match.
	ErrDeliveryOTPMismatch = errors.New("order: delivery otp mismatch")
	// ErrDeliveryOTPExpired indicates the delivery code is past its expiry.
	ErrDeliveryOTPExpired = errors.New("order: delivery otp expired")
	// ErrOrderConflict indicates concurrent writers exhausted the storage retries.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderStorage wraps persistence failures that need manual reconciliation.
	ErrOrderStorage = errors.New("order: storage failure")
	// ErrCartInvalidInput signals an invalid cart change.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the cart has no row for the product and weight.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCatalogInvalidInput signals an invalid product definition.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
)

var serviceSentinels = []error{
	ErrOrderInvalidInput,
	ErrCheckoutValidation,
	ErrOrderInvalidStatus,
	ErrOrderNotFound,
	ErrProductNotFound,
	ErrOrderIllegalTransition,
	ErrPaymentVerificationFailed,
	ErrPaymentUnavailable,
	ErrDeliveryOTPMismatch,
	ErrDeliveryOTPExpired,
	ErrOrderConflict,
	ErrOrderStorage,
	ErrCartInvalidInput,
	ErrCartItemNotFound,
	ErrCatalogInvalidInput,
}

func isServiceError(err error) bool {
	for _, sentinel := range serviceSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// mapOrderError translates repository failures into service sentinels. Storage failures are
// logged with the order and product involved so the ledger can be reconciled by hand.
func mapOrderError(ctx context.Context, logger Logger, op string, orderID string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case isServiceError(err):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	case repositories.IsNotFound(err):
		return ErrOrderNotFound
	case repositories.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrOrderConflict, err)
	}

	fields := map[string]any{"op": op, "order_id": orderID, "error": err.Error()}
	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		if storeErr.OrderID != "" {
			fields["order_id"] = storeErr.OrderID
		}
		if storeErr.ProductID != "" {
			fields["product_id"] = storeErr.ProductID
		}
	}
	logger(ctx, "order.storage.failed", fields)
	return fmt.Errorf("%w: %w", ErrOrderStorage, err)
}

// mapCatalogError translates product repository failures.
func mapCatalogError(err error, invalid error) error {
	switch {
	case err == nil:
		return nil
	case isServiceError(err):
		return err
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return fmt.Errorf("%w: %v", invalid, err)
	case repositories.IsNotFound(err):
		return ErrProductNotFound
	default:
		return err
	}
}
