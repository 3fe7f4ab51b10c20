package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateDefaultRates(t *testing.T) {
	c := DefaultCommissionRates().Calculate(decimal.NewFromInt(18000))

	assert.True(t, c.BuyerCommission.Equal(decimal.NewFromFloat(1062)), "buyer commission %s", c.BuyerCommission)
	assert.True(t, c.SellerCommission.Equal(decimal.NewFromFloat(1782)), "seller commission %s", c.SellerCommission)
	assert.True(t, c.PlatformCommission.Equal(decimal.NewFromFloat(2844)))
	assert.True(t, c.SellerNet.Equal(decimal.NewFromFloat(16218)))
	assert.True(t, c.BuyerTotal.Equal(decimal.NewFromFloat(19062)))
}

func TestCalculateRounding(t *testing.T) {
	rates := CommissionRates{
		BuyerPct:  decimal.NewFromFloat(5.90),
		SellerPct: decimal.NewFromFloat(9.90),
	}
	price := decimal.NewFromFloat(99.99)
	c := rates.Calculate(price)

	// 99.99 * 0.059 = 5.89941 -> 5.90
	assert.True(t, c.BuyerCommission.Equal(decimal.NewFromFloat(5.90)), "got %s", c.BuyerCommission)
	// 99.99 * 0.099 = 9.89901 -> 9.90
	assert.True(t, c.SellerCommission.Equal(decimal.NewFromFloat(9.90)), "got %s", c.SellerCommission)
	assert.True(t, c.BuyerTotal.Equal(price.Add(c.BuyerCommission)))
	assert.True(t, c.SellerNet.Equal(price.Sub(c.SellerCommission)))
}

func TestStatusLabelUnknownFailsLoudly(t *testing.T) {
	_, err := Status("shipped").Label()
	require.Error(t, err)

	_, err = ParseStatus("shipped")
	require.Error(t, err)

	st, err := ParseStatus("pending_delivery")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingDelivery, st)
}
