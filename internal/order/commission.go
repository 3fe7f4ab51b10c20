package order

import "github.com/shopspring/decimal"

// CommissionRates are platform percentages applied on top of the
// negotiated price. Defaults match the platform settings used in
// production: the buyer pays price + 5.90%, the seller nets
// price - 9.90%.
type CommissionRates struct {
	BuyerPct  decimal.Decimal
	SellerPct decimal.Decimal
}

// DefaultCommissionRates returns the standard C2C rates.
func DefaultCommissionRates() CommissionRates {
	return CommissionRates{
		BuyerPct:  decimal.NewFromFloat(5.90),
		SellerPct: decimal.NewFromFloat(9.90),
	}
}

// Commissions is the full money breakdown for one order.
type Commissions struct {
	BuyerCommission    decimal.Decimal
	SellerCommission   decimal.Decimal
	PlatformCommission decimal.Decimal
	SellerNet          decimal.Decimal
	BuyerTotal         decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Calculate computes the commission breakdown for price. Amounts are
// rounded to 2 decimal places, half up, after the percentage split.
func (r CommissionRates) Calculate(price decimal.Decimal) Commissions {
	buyerCut := price.Mul(r.BuyerPct).Div(hundred).Round(2)
	sellerCut := price.Mul(r.SellerPct).Div(hundred).Round(2)
	return Commissions{
		BuyerCommission:    buyerCut,
		SellerCommission:   sellerCut,
		PlatformCommission: buyerCut.Add(sellerCut),
		SellerNet:          price.Sub(sellerCut),
		BuyerTotal:         price.Add(buyerCut),
	}
}
