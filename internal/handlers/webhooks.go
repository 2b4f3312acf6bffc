package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/platform/auth"
	"github.com/picklepantry/api/internal/platform/httpx"
	"github.com/picklepantry/api/internal/platform/requestctx"
	"github.com/picklepantry/api/internal/services"
)

const courierActor = "courier"

type deliveryWebhookRequest struct {
	OrderID    string     `json:"orderId"`
	Status     string     `json:"status"`
	OccurredAt *time.Time `json:"occurredAt,omitempty"`
}

type webhookAckResponse struct {
	Received bool   `json:"received"`
	OrderID  string `json:"orderId"`
	Status   string `json:"status"`
}

// WebhookHandlers receives signed courier callbacks. Signature checks run as group
// middleware before these handlers.
type WebhookHandlers struct {
	orders services.OrderService
	cfg    handlerConfig
}

// NewWebhookHandlers constructs the /webhooks handlers.
func NewWebhookHandlers(orders services.OrderService, opts ...HandlerOption) *WebhookHandlers {
	return &WebhookHandlers{orders: orders, cfg: newHandlerConfig(opts)}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.cfg.idempotency != nil {
		r = r.With(h.cfg.idempotency)
	}
	r.Post("/deliveries", h.delivery)
}

func (h *WebhookHandlers) delivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	var req deliveryWebhookRequest
	if !decodeBody(ctx, w, r, h.cfg.maxBodyBytes, &req) {
		return
	}
	status, ok := domain.ParseOrderStatus(req.Status)
	if !ok || status != domain.OrderStatusDelivered {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status", "courier webhooks only report delivered", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.OrderID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderId is required", http.StatusBadRequest))
		return
	}

	source, _ := auth.WebhookSourceFromContext(ctx)
	fields := []zap.Field{zap.String("orderId", req.OrderID), zap.String("source", source)}
	if req.OccurredAt != nil {
		fields = append(fields, zap.Time("occurredAt", req.OccurredAt.UTC()))
	}
	requestctx.Logger(ctx).Info("courier delivery received", fields...)

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: req.OrderID,
		Status:  string(status),
		ActorID: courierActor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true, OrderID: order.ID, Status: string(order.Status)})
}
