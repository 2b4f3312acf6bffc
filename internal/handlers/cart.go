package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/picklepantry/api/internal/platform/auth"
	"github.com/picklepantry/api/internal/services"
)

type addCartItemRequest struct {
	ProductID      string `json:"productId"`
	SelectedWeight string `json:"selectedWeight"`
	Quantity       int    `json:"quantity"`
	// Prices are resolved from the catalog.
	UnitPrice  int64 `json:"unitPrice,omitempty"`
	TotalPrice int64 `json:"totalPrice,omitempty"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// CartHandlers exposes the authenticated cart of the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
	cfg   handlerConfig
}

// NewCartHandlers constructs handlers enforcing authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService, opts ...HandlerOption) *CartHandlers {
	return &CartHandlers{authn: authn, carts: carts, cfg: newHandlerConfig(opts)}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	read := guarded(r, h.authn, h.cfg, false)
	write := guarded(r, h.authn, h.cfg, true)

	read.Get("/", h.getCart)
	write.Delete("/", h.clearCart)
	write.Post("/items", h.addItem)
	write.Patch("/items/{productID}/{weight}", h.updateItem)
	write.Delete("/items/{productID}/{weight}", h.removeItem)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	cart, err := h.carts.GetCart(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(cart))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req addCartItemRequest
	if !decodeBody(ctx, w, r, h.cfg.maxBodyBytes, &req) {
		return
	}
	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		UserID:    identity.UID,
		ProductID: req.ProductID,
		Weight:    req.SelectedWeight,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(cart))
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !decodeBody(ctx, w, r, h.cfg.maxBodyBytes, &req) {
		return
	}
	cart, err := h.carts.UpdateItemQuantity(ctx, services.UpdateCartItemCommand{
		UserID:    identity.UID,
		ProductID: chi.URLParam(r, "productID"),
		Weight:    chi.URLParam(r, "weight"),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(cart))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	cart, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		UserID:    identity.UID,
		ProductID: chi.URLParam(r, "productID"),
		Weight:    chi.URLParam(r, "weight"),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(cart))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if err := h.carts.ClearCart(ctx, identity.UID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(services.Cart{UserID: identity.UID}))
}
