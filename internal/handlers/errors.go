package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/picklepantry/api/internal/platform/httpx"
	"github.com/picklepantry/api/internal/platform/requestctx"
	"github.com/picklepantry/api/internal/services"
)

// writeServiceError maps service sentinels onto the HTTP error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidStatus):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrCheckoutValidation),
		errors.Is(err, services.ErrCartInvalidInput),
		errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderIllegalTransition):
		httpx.WriteError(ctx, w, httpx.NewError("illegal_transition", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDeliveryOTPMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_otp", "delivery code does not match", http.StatusBadRequest))
	case errors.Is(err, services.ErrDeliveryOTPExpired):
		httpx.WriteError(ctx, w, httpx.NewError("otp_expired", "delivery code has expired", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentVerificationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_verification_failed", "payment could not be verified", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrPaymentUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment gateway unavailable", http.StatusBadGateway))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderStorage):
		httpx.WriteError(ctx, w, httpx.NewError("order_storage_error", "order storage failed", http.StatusInternalServerError))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
	}
}
