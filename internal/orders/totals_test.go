package orders

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/enums"
)

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func TestComputeTotals(t *testing.T) {
	totals := ComputeTotals(TotalsInput{
		Lines: []TotalsLine{
			{UnitPrice: d("1500"), Quantity: 2},
			{UnitPrice: d("2000"), Quantity: 1},
		},
		DeliveryFee:       d("500"),
		DiscountAmount:    decimal.Zero,
		ServiceFeePercent: d("5"),
		CommissionPercent: d("10"),
		Currency:          enums.CurrencyNGN,
	})

	if !totals.Subtotal.Equal(d("5000")) {
		t.Fatalf("subtotal = %s, want 5000", totals.Subtotal)
	}
	if !totals.ServiceFee.Equal(d("250")) {
		t.Fatalf("service fee = %s, want 250", totals.ServiceFee)
	}
	if !totals.CommissionAmount.Equal(d("500")) {
		t.Fatalf("commission = %s, want 500", totals.CommissionAmount)
	}
	if !totals.TotalAmount.Equal(d("5750")) {
		t.Fatalf("total = %s, want 5750", totals.TotalAmount)
	}
}

func TestComputeTotalsInvariant(t *testing.T) {
	totals := ComputeTotals(TotalsInput{
		Lines: []TotalsLine{
			{UnitPrice: d("333.335"), Quantity: 3},
		},
		DeliveryFee:       d("120.005"),
		DiscountAmount:    d("50.555"),
		ServiceFeePercent: d("2.5"),
		CommissionPercent: d("7.5"),
		Currency:          enums.CurrencyNGN,
	})

	recomputed := totals.Subtotal.
		Add(totals.DeliveryFee).
		Add(totals.ServiceFee).
		Sub(totals.DiscountAmount)
	if !totals.TotalAmount.Equal(recomputed.RoundBank(2)) {
		t.Fatalf("total %s does not match recomputed %s", totals.TotalAmount, recomputed)
	}
	if totals.TotalAmount.Exponent() < -2 {
		t.Fatalf("total %s not rounded to minor units", totals.TotalAmount)
	}
}

func TestComputeTotalsBankersRounding(t *testing.T) {
	// 0.125% of 1000 = 1.25, banker's rounding to 2 places keeps 1.25;
	// 5 at the half boundary rounds to even: 2.345 -> 2.34, 2.355 -> 2.36.
	got := ComputeTotals(TotalsInput{
		Lines:             []TotalsLine{{UnitPrice: d("2.345"), Quantity: 1}},
		ServiceFeePercent: decimal.Zero,
		CommissionPercent: decimal.Zero,
		Currency:          enums.CurrencyNGN,
	})
	if !got.Subtotal.Equal(d("2.34")) {
		t.Fatalf("subtotal = %s, want 2.34", got.Subtotal)
	}

	got = ComputeTotals(TotalsInput{
		Lines:             []TotalsLine{{UnitPrice: d("2.355"), Quantity: 1}},
		ServiceFeePercent: decimal.Zero,
		CommissionPercent: decimal.Zero,
		Currency:          enums.CurrencyNGN,
	})
	if !got.Subtotal.Equal(d("2.36")) {
		t.Fatalf("subtotal = %s, want 2.36", got.Subtotal)
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct {
		from, to enums.OrderStatus
	}{
		{enums.OrderStatusNew, enums.OrderStatusConfirmed},
		{enums.OrderStatusNew, enums.OrderStatusCancelled},
		{enums.OrderStatusConfirmed, enums.OrderStatusPreparing},
		{enums.OrderStatusConfirmed, enums.OrderStatusRefunded},
		{enums.OrderStatusPreparing, enums.OrderStatusReady},
		{enums.OrderStatusReady, enums.OrderStatusOutForDelivery},
		{enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered},
		{enums.OrderStatusOutForDelivery, enums.OrderStatusCancelled},
		{enums.OrderStatusDelivered, enums.OrderStatusRefunded},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	forbidden := []struct {
		from, to enums.OrderStatus
	}{
		{enums.OrderStatusNew, enums.OrderStatusPreparing},
		{enums.OrderStatusNew, enums.OrderStatusDelivered},
		{enums.OrderStatusConfirmed, enums.OrderStatusNew},
		{enums.OrderStatusDelivered, enums.OrderStatusCancelled},
		{enums.OrderStatusCancelled, enums.OrderStatusConfirmed},
		{enums.OrderStatusRefunded, enums.OrderStatusNew},
		{enums.OrderStatusReady, enums.OrderStatusPreparing},
	}
	for _, tc := range forbidden {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}
