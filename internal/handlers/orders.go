package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/platform/auth"
	"github.com/picklepantry/api/internal/platform/httpx"
	"github.com/picklepantry/api/internal/services"
)

type checkoutItemRequest struct {
	ProductID      string `json:"productId"`
	SelectedWeight string `json:"selectedWeight"`
	Quantity       int    `json:"quantity"`
	// Client-computed prices are accepted for compatibility and never trusted.
	UnitPrice  int64 `json:"unitPrice,omitempty"`
	TotalPrice int64 `json:"totalPrice,omitempty"`
}

type checkoutRequest struct {
	Items         []checkoutItemRequest `json:"items"`
	Address       addressPayload        `json:"address"`
	DeliveryDate  string                `json:"deliveryDate"`
	DeliveryTime  string                `json:"deliveryTime"`
	PaymentMethod string                `json:"paymentMethod"`
	PaymentStatus string                `json:"paymentStatus,omitempty"`
	TotalAmount   int64                 `json:"totalAmount,omitempty"`
	Currency      string                `json:"currency,omitempty"`
}

func (req checkoutRequest) toCommand(userID, locale string) services.CheckoutCommand {
	cmd := services.CheckoutCommand{
		UserID:        userID,
		Items:         make([]services.CheckoutItem, 0, len(req.Items)),
		Address:       req.Address.toService(),
		DeliveryDate:  req.DeliveryDate,
		DeliveryTime:  req.DeliveryTime,
		PaymentMethod: req.PaymentMethod,
		Currency:      req.Currency,
		Locale:        locale,
		ClientTotal:   req.TotalAmount,
	}
	var lineTotals int64
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.CheckoutItem{
			ProductID: item.ProductID,
			Weight:    item.SelectedWeight,
			Quantity:  item.Quantity,
		})
		lineTotals += item.TotalPrice
	}
	if cmd.ClientTotal == 0 {
		cmd.ClientTotal = lineTotals
	}
	if strings.TrimSpace(cmd.PaymentMethod) == "" {
		cmd.PaymentMethod = string(domain.PaymentMethodCOD)
	}
	return cmd
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

type verifyDeliveryOTPRequest struct {
	OrderID string `json:"orderId"`
	OTP     string `json:"otp"`
}

type statusStatsPayload struct {
	Count       int64 `json:"count"`
	TotalAmount int64 `json:"totalAmount"`
}

type orderStatsResponse struct {
	TotalOrders  int64                         `json:"totalOrders"`
	TotalRevenue int64                         `json:"totalRevenue"`
	ByStatus     map[string]statusStatsPayload `json:"byStatus"`
}

// OrderHandlers exposes checkout, order reads and status changes.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	checkout services.PaymentReconciler
	cfg      handlerConfig
	otp      attemptLimiter
}

// NewOrderHandlers constructs the /orders handlers.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, checkout services.PaymentReconciler, opts ...HandlerOption) *OrderHandlers {
	cfg := newHandlerConfig(opts)
	return &OrderHandlers{
		authn:    authn,
		orders:   orders,
		checkout: checkout,
		cfg:      cfg,
		otp:      newWindowLimiter(cfg.otpLimit, cfg.otpWindow, cfg.clock),
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	user := guarded(r, h.authn, h.cfg, false)
	userWrite := guarded(r, h.authn, h.cfg, true)
	admin := guarded(r, h.authn, h.cfg, false, auth.RoleAdmin)
	adminWrite := guarded(r, h.authn, h.cfg, true, auth.RoleAdmin)

	userWrite.Post("/", h.createOrder)
	user.Get("/", h.listMyOrders)
	admin.Get("/admin/all", h.listAllOrders)
	admin.Get("/admin/stats", h.orderStats)
	userWrite.Post("/verify-delivery-otp", h.verifyDeliveryOTP)
	user.Get("/{orderID}", h.getOrder)
	adminWrite.Patch("/{orderID}/status", h.updateStatus)
	userWrite.Post("/{orderID}/cancel", h.cancelOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeBody(ctx, w, r, h.cfg.maxBodyBytes, &req) {
		return
	}
	if method, ok := domain.ParsePaymentMethod(req.PaymentMethod); ok && method == domain.PaymentMethodOnline {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "online orders are created through /payment/verify-payment", http.StatusBadRequest))
		return
	}

	order, err := h.checkout.Checkout(ctx, req.toCommand(identity.UID, requestLocale(r, identity)))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	page, ok := parsePage(ctx, w, r)
	if !ok {
		return
	}
	result, err := h.orders.ListOrders(ctx, services.ListOrdersQuery{
		UserID:     identity.UID,
		Statuses:   parseFilterValues(r.URL.Query()["status"]),
		Pagination: page,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(result.Items, result.NextPageToken))
}

func (h *OrderHandlers) listAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}
	page, ok := parsePage(ctx, w, r)
	if !ok {
		return
	}
	result, err := h.orders.ListOrders(ctx, services.ListOrdersQuery{
		UserID:     strings.TrimSpace(r.URL.Query().Get("user_id")),
		Statuses:   parseFilterValues(r.URL.Query()["status"]),
		Pagination: page,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(result.Items, result.NextPageToken))
}

func (h *OrderHandlers) orderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	if _, ok := requireStaff(ctx, w); !ok {
		return
	}
	stats, err := h.orders.OrderStats(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := orderStatsResponse{
		TotalOrders:  stats.TotalOrders,
		TotalRevenue: stats.TotalRevenue,
		ByStatus:     make(map[string]statusStatsPayload, len(stats.ByStatus)),
	}
	for status, entry := range stats.ByStatus {
		resp.ByStatus[string(status)] = statusStatsPayload{Count: entry.Count, TotalAmount: entry.TotalAmount}
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	order, err := h.orders.FindOrder(ctx, services.FindOrderQuery{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  identity.UID,
		Staff:   identity.IsStaff(),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireStaff(ctx, w)
	if !ok {
		return
	}
	var req updateStatusRequest
	if !decodeBody(ctx, w, r, h.cfg.maxBodyBytes, &req) {
		return
	}
	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  req.Status,
		ActorID: identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if !decodeBody(ctx, w, r, h.cfg.maxBodyBytes, &req) {
			return
		}
	}
	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  identity.UID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) verifyDeliveryOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req verifyDeliveryOTPRequest
	if !decodeBody(ctx, w, r, h.cfg.maxBodyBytes, &req) {
		return
	}
	if h.otp != nil && !h.otp.Allow(identity.UID+"/"+strings.TrimSpace(req.OrderID)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many delivery code attempts", http.StatusTooManyRequests))
		return
	}
	order, err := h.orders.VerifyDeliveryOTP(ctx, services.VerifyDeliveryOTPCommand{
		OrderID: req.OrderID,
		UserID:  identity.UID,
		OTP:     req.OTP,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// parseFilterValues splits repeated and comma separated query values.
func parseFilterValues(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
