package orders

import (
	"github.com/shopspring/decimal"

	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/money"
)

// TotalsLine is one priced cart line used for totals computation.
type TotalsLine struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// TotalsInput carries everything needed to derive an order's money fields.
type TotalsInput struct {
	Lines             []TotalsLine
	DeliveryFee       decimal.Decimal
	DiscountAmount    decimal.Decimal
	ServiceFeePercent decimal.Decimal
	CommissionPercent decimal.Decimal
	Currency          enums.Currency
}

// Totals holds the computed money fields for an order.
type Totals struct {
	Subtotal         decimal.Decimal
	DeliveryFee      decimal.Decimal
	ServiceFee       decimal.Decimal
	DiscountAmount   decimal.Decimal
	CommissionAmount decimal.Decimal
	TotalAmount      decimal.Decimal
}

// ComputeTotals derives an order's money fields from its line items. The
// computation is pure so persisted totals can be re-derived for auditing.
// total_amount = subtotal + delivery_fee + service_fee - discount_amount.
func ComputeTotals(input TotalsInput) Totals {
	subtotal := decimal.Zero
	for _, line := range input.Lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	subtotal = money.Round(subtotal, input.Currency)

	deliveryFee := money.Round(input.DeliveryFee, input.Currency)
	serviceFee := money.Percent(subtotal, input.ServiceFeePercent, input.Currency)
	discount := money.Round(input.DiscountAmount, input.Currency)
	commission := money.Percent(subtotal, input.CommissionPercent, input.Currency)

	total := subtotal.Add(deliveryFee).Add(serviceFee).Sub(discount)

	return Totals{
		Subtotal:         subtotal,
		DeliveryFee:      deliveryFee,
		ServiceFee:       serviceFee,
		DiscountAmount:   discount,
		CommissionAmount: commission,
		TotalAmount:      money.Round(total, input.Currency),
	}
}
