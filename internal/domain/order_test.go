package domain

import "testing"

func TestEvaluateTransitionTerminalStatusesAreFrozen(t *testing.T) {
	for _, from := range []OrderStatus{OrderStatusDelivered, OrderStatusCancelled} {
		for _, to := range OrderStatuses {
			got := EvaluateTransition(from, to)
			if from == OrderStatusDelivered && to == OrderStatusDelivered {
				if got != TransitionNoop {
					t.Fatalf("delivered->delivered: expected noop, got %v", got)
				}
				continue
			}
			if got != TransitionForbidden {
				t.Fatalf("%s->%s: expected forbidden, got %v", from, to, got)
			}
		}
	}
}

func TestEvaluateTransition(t *testing.T) {
	cases := []struct {
		from OrderStatus
		to   OrderStatus
		want Transition
	}{
		{OrderStatusPending, OrderStatusConfirmed, TransitionApply},
		{OrderStatusConfirmed, OrderStatusPreparing, TransitionApply},
		{OrderStatusPreparing, OrderStatusOutForDelivery, TransitionApply},
		{OrderStatusOutForDelivery, OrderStatusDelivered, TransitionApply},
		{OrderStatusPending, OrderStatusDelivered, TransitionApply},
		{OrderStatusPending, OrderStatusCancelled, TransitionApply},
		{OrderStatusOutForDelivery, OrderStatusCancelled, TransitionApply},
		{OrderStatusPreparing, OrderStatusConfirmed, TransitionForbidden},
		{OrderStatusOutForDelivery, OrderStatusPending, TransitionForbidden},
		{OrderStatusConfirmed, OrderStatusConfirmed, TransitionNoop},
		{OrderStatus("unknown"), OrderStatusConfirmed, TransitionForbidden},
	}
	for _, tc := range cases {
		if got := EvaluateTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s->%s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestCancellationPaymentStatusIsTotal(t *testing.T) {
	for _, method := range []PaymentMethod{PaymentMethodCOD, PaymentMethodOnline} {
		for _, status := range PaymentStatuses {
			got, ok := CancellationPaymentStatus(method, status)
			if !ok {
				t.Fatalf("missing table entry for %s/%s", method, status)
			}
			var want PaymentStatus
			switch {
			case method == PaymentMethodCOD:
				want = PaymentStatusFailed
			case status == PaymentStatusPaid:
				want = PaymentStatusRefundPending
			default:
				want = status
			}
			if got != want {
				t.Fatalf("%s/%s: expected %q, got %q", method, status, want, got)
			}
		}
	}
	if _, ok := CancellationPaymentStatus(PaymentMethod("card"), PaymentStatusPaid); ok {
		t.Fatalf("expected unknown method to be rejected")
	}
}

func TestParseEnumsAreExact(t *testing.T) {
	if _, ok := ParseOrderStatus("Delivered"); ok {
		t.Fatalf("status matching must be case sensitive")
	}
	if status, ok := ParseOrderStatus("out_for_delivery"); !ok || status != OrderStatusOutForDelivery {
		t.Fatalf("expected out_for_delivery to parse, got %q %v", status, ok)
	}
	if _, ok := ParsePaymentMethod("cod"); ok {
		t.Fatalf("payment method matching must be exact")
	}
	if weight, ok := ParseWeightTier(" 1kg "); !ok || weight != Weight1kg {
		t.Fatalf("expected 1kg, got %q", weight)
	}
}

func TestOrderStatsExcludesCancelledRevenue(t *testing.T) {
	var stats OrderStats
	stats.Add(OrderStatusPending, 400)
	stats.Add(OrderStatusDelivered, 250)
	stats.Add(OrderStatusCancelled, 1000)

	if stats.TotalOrders != 3 {
		t.Fatalf("expected 3 orders, got %d", stats.TotalOrders)
	}
	if stats.TotalRevenue != 650 {
		t.Fatalf("expected revenue 650, got %d", stats.TotalRevenue)
	}
	if got := stats.ByStatus[OrderStatusCancelled]; got.Count != 1 || got.TotalAmount != 1000 {
		t.Fatalf("unexpected cancelled bucket %+v", got)
	}
}

func TestAddressDeliverable(t *testing.T) {
	cases := []struct {
		name    string
		address Address
		want    bool
	}{
		{name: "empty", address: Address{}},
		{name: "city only", address: Address{City: "Hyderabad"}},
		{name: "street without pincode", address: Address{Street: "12 MG Road", City: "Hyderabad", State: "TS"}},
		{name: "pincode without street", address: Address{Pincode: "500001"}},
		{name: "street and pincode", address: Address{Street: "12 MG Road", Pincode: "500001"}, want: true},
		{name: "full", address: Address{Name: "Asha", Phone: "9999999999", Street: "12 MG Road", City: "Hyderabad", State: "TS", Pincode: "500001"}, want: true},
	}
	for _, tc := range cases {
		if got := tc.address.Deliverable(); got != tc.want {
			t.Fatalf("%s: Deliverable() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
