package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/platform/auth"
	"github.com/picklepantry/api/internal/platform/httpx"
	"github.com/picklepantry/api/internal/services"
)

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

type upsertPriceTierRequest struct {
	Weight string `json:"weight"`
	Price  int64  `json:"price"`
	Stock  int    `json:"stock"`
}

type upsertProductRequest struct {
	Name              string                   `json:"name"`
	Description       string                   `json:"description,omitempty"`
	Category          string                   `json:"category,omitempty"`
	Prices            []upsertPriceTierRequest `json:"prices"`
	Discount          float64                  `json:"discount,omitempty"`
	IsDiscountActive  bool                     `json:"isDiscountActive,omitempty"`
	DiscountStartDate *time.Time               `json:"discountStartDate,omitempty"`
	DiscountEndDate   *time.Time               `json:"discountEndDate,omitempty"`
	IsAvailable       *bool                    `json:"isAvailable,omitempty"`
}

// ProductHandlers serves the public catalog and the admin upsert and delete endpoints.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	cfg     handlerConfig
}

// NewProductHandlers constructs the /products handlers.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService, opts ...HandlerOption) *ProductHandlers {
	return &ProductHandlers{authn: authn, catalog: catalog, cfg: newHandlerConfig(opts)}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	guarded(r, h.authn, h.cfg, false, auth.RoleAdmin).Get("/admin/all", h.listAllProducts)
	r.Get("/{productID}", h.getProduct)
	guarded(r, h.authn, h.cfg, true, auth.RoleAdmin).Put("/{productID}", h.upsertProduct)
	guarded(r, h.authn, h.cfg, true, auth.RoleAdmin).Delete("/{productID}", h.deleteProduct)
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// listAllProducts includes unavailable products for catalog management.
func (h *ProductHandlers) listAllProducts(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireStaff(r.Context(), w); !ok {
		return
	}
	h.list(w, r, true)
}

func (h *ProductHandlers) list(w http.ResponseWriter, r *http.Request, includeUnavailable bool) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	page, ok := parsePage(ctx, w, r)
	if !ok {
		return
	}
	result, err := h.catalog.ListProducts(ctx, services.ProductFilter{
		Category:           strings.TrimSpace(r.URL.Query().Get("category")),
		IncludeUnavailable: includeUnavailable,
		Pagination:         page,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := productListResponse{Items: make([]productPayload, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, quote := range result.Items {
		resp.Items = append(resp.Items, buildProductPayload(quote))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	quote, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(quote))
}

func (h *ProductHandlers) upsertProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !identity.HasRole(auth.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "admin role required", http.StatusForbidden))
		return
	}
	var req upsertProductRequest
	if !decodeBody(ctx, w, r, h.cfg.maxBodyBytes, &req) {
		return
	}

	product := services.Product{
		ID:                chi.URLParam(r, "productID"),
		Name:              req.Name,
		Description:       req.Description,
		Category:          req.Category,
		Discount:          req.Discount,
		IsDiscountActive:  req.IsDiscountActive,
		DiscountStartDate: req.DiscountStartDate,
		DiscountEndDate:   req.DiscountEndDate,
		IsAvailable:       true,
	}
	if req.IsAvailable != nil {
		product.IsAvailable = *req.IsAvailable
	}
	for i, tier := range req.Prices {
		weight, ok := domain.ParseWeightTier(tier.Weight)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "prices["+strconv.Itoa(i)+"].weight is not a supported weight", http.StatusBadRequest))
			return
		}
		product.Prices = append(product.Prices, services.PriceTier{Weight: weight, Price: tier.Price, Stock: tier.Stock})
	}

	quote, err := h.catalog.UpsertProduct(ctx, services.UpsertProductCommand{Product: product, ActorID: identity.UID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildProductPayload(quote))
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !identity.HasRole(auth.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_role", "admin role required", http.StatusForbidden))
		return
	}
	err := h.catalog.DeleteProduct(ctx, services.DeleteProductCommand{
		ProductID: chi.URLParam(r, "productID"),
		ActorID:   identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
