package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/picklepantry/api/internal/domain"
)

func TestCartServiceLifecycle(t *testing.T) {
	store := seedStore(t, 10)
	svc, err := NewCartService(CartServiceDeps{Carts: store.Carts(), Products: store.Products(), Clock: newTestClock().Now})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	ctx := context.Background()

	empty, err := svc.GetCart(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(empty.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", empty.Items)
	}

	if _, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "user-1", ProductID: "P1", Weight: "500g", Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	cart, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "user-1", ProductID: "P1", Weight: "500g", Quantity: 2})
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 3 || cart.Items[0].LineTotal != 600 {
		t.Fatalf("expected merged row, got %+v", cart.Items)
	}

	cart, err = svc.UpdateItemQuantity(ctx, UpdateCartItemCommand{UserID: "user-1", ProductID: "P1", Weight: "500g", Quantity: 5})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if cart.Items[0].LineTotal != 1000 {
		t.Fatalf("expected line total 1000, got %d", cart.Items[0].LineTotal)
	}

	if _, err := svc.RemoveItem(ctx, RemoveCartItemCommand{UserID: "user-1", ProductID: "P1", Weight: "1kg"}); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
	cart, err = svc.RemoveItem(ctx, RemoveCartItemCommand{UserID: "user-1", ProductID: "P1", Weight: "500g"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart after remove")
	}

	if _, err := svc.AddItem(ctx, AddCartItemCommand{UserID: "user-1", ProductID: "P1", Weight: "250g", Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.ClearCart(ctx, "user-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	cleared, _ := svc.GetCart(ctx, "user-1")
	if len(cleared.Items) != 0 {
		t.Fatalf("expected cleared cart")
	}
}

func TestCartServiceValidation(t *testing.T) {
	store := seedStore(t, 10)
	svc, err := NewCartService(CartServiceDeps{Carts: store.Carts(), Products: store.Products()})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  AddCartItemCommand
		want error
	}{
		{name: "missing user", cmd: AddCartItemCommand{ProductID: "P1", Weight: "500g", Quantity: 1}, want: ErrCartInvalidInput},
		{name: "bad weight", cmd: AddCartItemCommand{UserID: "user-1", ProductID: "P1", Weight: "750g", Quantity: 1}, want: ErrCartInvalidInput},
		{name: "quantity too large", cmd: AddCartItemCommand{UserID: "user-1", ProductID: "P1", Weight: "500g", Quantity: 101}, want: ErrCartInvalidInput},
		{name: "unknown product", cmd: AddCartItemCommand{UserID: "user-1", ProductID: "P404", Weight: "500g", Quantity: 1}, want: ErrProductNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.AddItem(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := svc.UpdateItemQuantity(ctx, UpdateCartItemCommand{UserID: "user-1", ProductID: "P1", Weight: string(domain.Weight500g), Quantity: 1}); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}
