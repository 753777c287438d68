package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateMargin(t *testing.T) {
	// Bought 100 quote at price 10 with 0.5 fee, so 9.95 base filled.
	// Selling all of it at 12 with a 0.5% taker fee.
	res := CalculateMargin(100, 9.95, 0.5, 100, 12, 0.005)

	require.InDelta(t, 119.4, res.SellSize, 1e-9)
	require.InDelta(t, 0.597, res.SellFee, 1e-9)
	require.InDelta(t, 119.4-0.597-99.5, res.Profit, 1e-9)
	require.InDelta(t, (res.Profit/100)*100, res.Margin, 1e-9)
}

func TestCalculateMargin_ZeroBuySize(t *testing.T) {
	res := CalculateMargin(0, 0, 0, 100, 10, 0.005)
	assert.Zero(t, res.Margin)
}

func TestTruncateFloat(t *testing.T) {
	assert.Equal(t, 1.23, TruncateFloat(1.239, 2))
	assert.Equal(t, -1.24, TruncateFloat(-1.239, 2))
	assert.Equal(t, 0.0, TruncateFloat(0.009, 2))
}

func TestRoundFloat(t *testing.T) {
	assert.Equal(t, 1.24, RoundFloat(1.235, 2))
	assert.Equal(t, 1.2, RoundFloat(1.24, 1))
}

func TestDefaultTakerFee(t *testing.T) {
	assert.Equal(t, 0.005, DefaultTakerFee(CoinbasePro))
	assert.Equal(t, 0.001, DefaultTakerFee(Binance))
	assert.Equal(t, 0.0015, DefaultTakerFee(Kucoin))
}
