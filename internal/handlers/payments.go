package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/picklepantry/api/internal/platform/auth"
	"github.com/picklepantry/api/internal/services"
)

type createPaymentOrderRequest struct {
	Items    []checkoutItemRequest `json:"items"`
	Currency string                `json:"currency,omitempty"`
	Provider string                `json:"provider,omitempty"`
}

type paymentIntentResponse struct {
	Provider        string `json:"provider"`
	IntentID        string `json:"intentId,omitempty"`
	ProviderOrderID string `json:"providerOrderId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	KeyID           string `json:"keyId,omitempty"`
	ClientSecret    string `json:"clientSecret,omitempty"`
}

type verifyPaymentRequest struct {
	Provider        string          `json:"provider,omitempty"`
	ProviderOrderID string          `json:"providerOrderId"`
	PaymentID       string          `json:"paymentId"`
	Signature       string          `json:"signature,omitempty"`
	Order           checkoutRequest `json:"order"`
}

// PaymentHandlers exposes the online payment flow. Online orders are only created by
// verify-payment once the gateway proof holds.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentReconciler
	cfg      handlerConfig
}

// NewPaymentHandlers constructs the /payment handlers.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentReconciler, opts ...HandlerOption) *PaymentHandlers {
	return &PaymentHandlers{authn: authn, payments: payments, cfg: newHandlerConfig(opts)}
}

// Routes registers the /payment endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	write := guarded(r, h.authn, h.cfg, true)
	write.Post("/create-order", h.createOrder)
	write.Post("/verify-payment", h.verifyPayment)
}

func (h *PaymentHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req createPaymentOrderRequest
	if !decodeBody(ctx, w, r, h.cfg.maxBodyBytes, &req) {
		return
	}
	cmd := services.CreatePaymentOrderCommand{
		UserID:   identity.UID,
		Currency: req.Currency,
		Provider: req.Provider,
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.CheckoutItem{ProductID: item.ProductID, Weight: item.SelectedWeight, Quantity: item.Quantity})
	}

	intent, err := h.payments.CreatePaymentOrder(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, paymentIntentResponse{
		Provider:        intent.Provider,
		IntentID:        intent.IntentID,
		ProviderOrderID: intent.ProviderOrderID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		KeyID:           intent.KeyID,
		ClientSecret:    intent.ClientSecret,
	})
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req verifyPaymentRequest
	if !decodeBody(ctx, w, r, h.cfg.maxBodyBytes, &req) {
		return
	}
	checkout := req.Order.toCommand(identity.UID, requestLocale(r, identity))
	checkout.PaymentMethod = ""

	order, err := h.payments.VerifyPayment(ctx, services.VerifyPaymentCommand{
		Checkout:        checkout,
		Provider:        req.Provider,
		ProviderOrderID: req.ProviderOrderID,
		PaymentID:       req.PaymentID,
		Signature:       req.Signature,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}
