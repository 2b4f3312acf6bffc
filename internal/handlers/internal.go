package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/picklepantry/api/internal/services"
)

type ledgerLinePayload struct {
	ProductID   string `json:"productId"`
	Weight      string `json:"selectedWeight"`
	Quantity    int    `json:"quantity"`
	StockBefore int    `json:"stockBefore"`
	StockAfter  int    `json:"stockAfter"`
	Reason      string `json:"reason,omitempty"`
}

type ledgerOutcomeResponse struct {
	OrderID string              `json:"orderId"`
	Applied bool                `json:"applied"`
	Lines   []ledgerLinePayload `json:"lines"`
	Skipped []ledgerLinePayload `json:"skipped,omitempty"`
}

// InternalHandlers serves service-to-service maintenance endpoints. OIDC checks run as
// group middleware.
type InternalHandlers struct {
	ledger services.InventoryLedger
	cfg    handlerConfig
}

// NewInternalHandlers constructs the /internal handlers.
func NewInternalHandlers(ledger services.InventoryLedger, opts ...HandlerOption) *InternalHandlers {
	return &InternalHandlers{ledger: ledger, cfg: newHandlerConfig(opts)}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.cfg.idempotency != nil {
		r = r.With(h.cfg.idempotency)
	}
	r.Post("/orders/{orderID}/ledger:apply", h.applyLedger)
}

func (h *InternalHandlers) applyLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ledger == nil {
		serviceUnavailable(ctx, w, "inventory")
		return
	}
	orderID := chi.URLParam(r, "orderID")
	outcome, err := h.ledger.ApplyOnce(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := ledgerOutcomeResponse{
		OrderID: orderID,
		Applied: outcome.Applied,
		Lines:   make([]ledgerLinePayload, 0, len(outcome.Lines)),
	}
	for _, line := range outcome.Lines {
		resp.Lines = append(resp.Lines, buildLedgerLine(line))
	}
	for _, line := range outcome.Skipped {
		resp.Skipped = append(resp.Skipped, buildLedgerLine(line))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func buildLedgerLine(line services.LedgerLine) ledgerLinePayload {
	return ledgerLinePayload{
		ProductID:   line.ProductID,
		Weight:      string(line.Weight),
		Quantity:    line.Quantity,
		StockBefore: line.StockBefore,
		StockAfter:  line.StockAfter,
		Reason:      line.Reason,
	}
}
