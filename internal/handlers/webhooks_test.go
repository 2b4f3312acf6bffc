package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/services"
)

func TestWebhookHandlersDelivery(t *testing.T) {
	var captured services.UpdateOrderStatusCommand
	orders := &stubOrderService{
		updateStatusFunc: func(_ context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
			captured = cmd
			if cmd.OrderID == "ord_done" {
				return services.Order{}, services.ErrOrderIllegalTransition
			}
			order := sampleOrder()
			order.Status = domain.OrderStatusDelivered
			return order, nil
		},
	}
	handler := NewWebhookHandlers(orders)

	rr := serve(t, "/webhooks", handler.Routes, nil, http.MethodPost, "/webhooks/deliveries", `{"orderId":"ord_1","status":"delivered","occurredAt":"2026-03-10T11:00:00Z"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ActorID != courierActor || captured.Status != "delivered" || captured.OrderID != "ord_1" {
		t.Fatalf("unexpected command %+v", captured)
	}
	var resp webhookAckResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Received || resp.Status != "delivered" {
		t.Fatalf("unexpected ack %+v", resp)
	}

	rr = serve(t, "/webhooks", handler.Routes, nil, http.MethodPost, "/webhooks/deliveries", `{"orderId":"ord_done","status":"delivered"}`)
	if rr.Code != http.StatusBadRequest || decodeErrorCode(t, rr) != "illegal_transition" {
		t.Fatalf("expected illegal_transition, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestWebhookHandlersRejectsOtherStatuses(t *testing.T) {
	called := false
	orders := &stubOrderService{
		updateStatusFunc: func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error) {
			called = true
			return services.Order{}, nil
		},
	}
	handler := NewWebhookHandlers(orders)

	for _, body := range []string{
		`{"orderId":"ord_1","status":"cancelled"}`,
		`{"orderId":"ord_1","status":"shipped"}`,
		`{"status":"delivered"}`,
	} {
		rr := serve(t, "/webhooks", handler.Routes, nil, http.MethodPost, "/webhooks/deliveries", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", body, rr.Code)
		}
	}
	if called {
		t.Fatalf("rejected callbacks must not reach the order service")
	}
}

func TestInternalHandlersApplyLedger(t *testing.T) {
	ledger := &stubInventoryLedger{
		applyFunc: func(_ context.Context, orderID string) (services.LedgerOutcome, error) {
			switch orderID {
			case "ord_pending":
				return services.LedgerOutcome{}, services.ErrOrderIllegalTransition
			case "ord_missing":
				return services.LedgerOutcome{}, services.ErrOrderNotFound
			}
			return services.LedgerOutcome{
				Applied: true,
				Lines: []services.LedgerLine{
					{ProductID: "P1", Weight: domain.Weight500g, Quantity: 2, StockBefore: 10, StockAfter: 8},
				},
				Skipped: []services.LedgerLine{
					{ProductID: "P404", Weight: domain.Weight1kg, Quantity: 1, Reason: domain.LedgerSkipProductMissing},
				},
			}, nil
		},
	}
	handler := NewInternalHandlers(ledger)

	rr := serve(t, "/internal", handler.Routes, nil, http.MethodPost, "/internal/orders/ord_1/ledger:apply", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp ledgerOutcomeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Applied || resp.OrderID != "ord_1" || len(resp.Lines) != 1 || resp.Lines[0].StockAfter != 8 {
		t.Fatalf("unexpected outcome %+v", resp)
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0].Reason != domain.LedgerSkipProductMissing {
		t.Fatalf("unexpected skipped lines %+v", resp.Skipped)
	}

	rr = serve(t, "/internal", handler.Routes, nil, http.MethodPost, "/internal/orders/ord_pending/ledger:apply", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	rr = serve(t, "/internal", handler.Routes, nil, http.MethodPost, "/internal/orders/ord_missing/ledger:apply", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
