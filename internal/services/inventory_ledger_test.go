package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	domain "github.com/picklepantry/api/internal/domain"
)

func TestInventoryLedgerRejectsUndeliveredOrders(t *testing.T) {
	store := seedStore(t, 10)
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Orders: store.Orders(), Clock: newTestClock().Now})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	insertOrder(t, store, Order{ID: "ord_prep", Status: domain.OrderStatusPreparing})

	if _, err := ledger.ApplyOnce(context.Background(), "ord_prep"); !errors.Is(err, ErrOrderIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
	if _, err := ledger.ApplyOnce(context.Background(), "ord_missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := stockOf(t, store, domain.Weight500g); got != 10 {
		t.Fatalf("expected untouched stock, got %d", got)
	}
}

func TestInventoryLedgerAppliesOnce(t *testing.T) {
	store := seedStore(t, 1)
	logger := &recordingLogger{}
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Orders: store.Orders(), Clock: newTestClock().Now, Logger: logger.Log})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	insertOrder(t, store, Order{ID: "ord_done", Status: domain.OrderStatusDelivered})

	outcome, err := ledger.ApplyOnce(context.Background(), "ord_done")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !outcome.Applied || len(outcome.Lines) != 1 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	line := outcome.Lines[0]
	if line.StockBefore != 1 || line.StockAfter != 0 {
		t.Fatalf("expected stock to floor at zero, got %d -> %d", line.StockBefore, line.StockAfter)
	}

	second, err := ledger.ApplyOnce(context.Background(), "ord_done")
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if second.Applied {
		t.Fatalf("expected second apply to be a no-op")
	}
	if len(logger.find("inventory.stock.applied")) != 1 {
		t.Fatalf("expected a single applied log entry")
	}
}

func TestInventoryLedgerConcurrentCallsDecrementOnce(t *testing.T) {
	store := seedStore(t, 10)
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Orders: store.Orders()})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	insertOrder(t, store, Order{ID: "ord_conc", Status: domain.OrderStatusDelivered})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := ledger.ApplyOnce(context.Background(), "ord_conc")
			if err != nil {
				t.Errorf("apply: %v", err)
				return
			}
			if outcome.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("expected exactly one applying call, got %d", applied)
	}
	if got := stockOf(t, store, domain.Weight500g); got != 8 {
		t.Fatalf("expected stock 8, got %d", got)
	}
}

func TestInventoryLedgerSkipsMissingProducts(t *testing.T) {
	store := seedStore(t, 10)
	logger := &recordingLogger{}
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Orders: store.Orders(), Logger: logger.Log})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	insertOrder(t, store, Order{
		ID:     "ord_gone",
		Status: domain.OrderStatusDelivered,
		Items: []OrderItem{
			{ProductID: "P404", Weight: domain.Weight250g, UnitPrice: 100, Quantity: 1, LineTotal: 100},
			{ProductID: "P1", Weight: domain.Weight250g, UnitPrice: 120, Quantity: 3, LineTotal: 360},
		},
	})

	outcome, err := ledger.ApplyOnce(context.Background(), "ord_gone")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(outcome.Skipped) != 1 || outcome.Skipped[0].Reason != domain.LedgerSkipProductMissing {
		t.Fatalf("expected missing product to be skipped, got %+v", outcome.Skipped)
	}
	if got := stockOf(t, store, domain.Weight250g); got != 7 {
		t.Fatalf("expected remaining lines to apply, got %d", got)
	}
	skipped := logger.find("inventory.line.skipped")
	if len(skipped) != 1 || skipped[0].fields["product_id"] != "P404" {
		t.Fatalf("expected skipped line to be logged, got %+v", skipped)
	}

	stored, err := store.Orders().FindByID(context.Background(), "ord_gone")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !stored.StockDecremented {
		t.Fatalf("expected flag to be set after partial application")
	}
}
