package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/repositories"
)

// InventoryLedgerDeps bundles collaborators required to construct the ledger.
type InventoryLedgerDeps struct {
	Orders repositories.OrderRepository
	Clock  func() time.Time
	Logger Logger
}

type inventoryLedger struct {
	orders repositories.OrderRepository
	clock  func() time.Time
	logger Logger
}

var _ InventoryLedger = (*inventoryLedger)(nil)

// NewInventoryLedger returns the ledger used for manual reconciliation of delivered orders.
// Status transitions apply stock through the same repository step.
func NewInventoryLedger(deps InventoryLedgerDeps) (InventoryLedger, error) {
	if deps.Orders == nil {
		return nil, errors.New("inventory ledger: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &inventoryLedger{
		orders: deps.Orders,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// ApplyOnce decrements stock for a delivered order whose flag is still false. Repeated or
// concurrent calls after the first return an outcome with Applied false.
func (l *inventoryLedger) ApplyOnce(ctx context.Context, orderID string) (LedgerOutcome, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return LedgerOutcome{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := l.clock()
	result, err := l.orders.Mutate(ctx, orderID, func(current Order) (repositories.OrderChange, error) {
		if current.Status != domain.OrderStatusDelivered {
			return repositories.OrderChange{}, fmt.Errorf("%w: order is %s, not delivered", ErrOrderIllegalTransition, current.Status)
		}
		if current.StockDecremented {
			return repositories.OrderChange{Skip: true}, nil
		}
		current.UpdatedAt = now
		return repositories.OrderChange{Order: current, ApplyStock: true}, nil
	})
	if err != nil {
		return LedgerOutcome{}, mapOrderError(ctx, l.logger, "inventory.apply_once", orderID, err)
	}

	logLedgerOutcome(ctx, l.logger, orderID, result.Ledger)
	return result.Ledger, nil
}

func logLedgerOutcome(ctx context.Context, logger Logger, orderID string, outcome LedgerOutcome) {
	if !outcome.Applied {
		return
	}
	for _, line := range outcome.Skipped {
		logger(ctx, "inventory.line.skipped", map[string]any{
			"order_id":   orderID,
			"product_id": line.ProductID,
			"weight":     string(line.Weight),
			"quantity":   line.Quantity,
			"reason":     line.Reason,
		})
	}
	logger(ctx, "inventory.stock.applied", map[string]any{
		"order_id": orderID,
		"lines":    len(outcome.Lines),
		"skipped":  len(outcome.Skipped),
	})
}
