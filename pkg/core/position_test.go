package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosition_TrackBuySell(t *testing.T) {
	p := &Position{}
	require.False(t, p.OpenPosition())

	p.TrackBuy(Order{Size: 100, Filled: 9.95, Price: 10, Fees: 0.5})
	require.True(t, p.OpenPosition())
	assert.Equal(t, 100.0, p.LastBuySize)
	assert.Equal(t, 100.0, p.FirstBuySize)
	assert.Equal(t, 10.0, p.LastBuyHigh)
	assert.Equal(t, 1, p.BuyCount)

	p.TSLTriggered = true
	p.PreventLoss = true

	p.TrackSell(Order{Price: 11, Filled: 9.95, Fees: 0.55})
	require.False(t, p.OpenPosition())
	assert.Zero(t, p.LastBuyPrice)
	assert.False(t, p.TSLTriggered)
	assert.False(t, p.PreventLoss)
	assert.Equal(t, 1, p.SellCount)
	// Quote proceeds net of fees: 11*9.95 - 0.55.
	assert.InDelta(t, 108.9, p.SellSum, 1e-9)
}

func TestPosition_ChangePcntFromBuyHigh(t *testing.T) {
	p := &Position{LastBuyHigh: 100}
	assert.InDelta(t, -10, p.ChangePcntFromBuyHigh(90), 1e-9)

	// Dust-priced highs are ignored.
	p.LastBuyHigh = 0.5
	assert.Zero(t, p.ChangePcntFromBuyHigh(0.4))
}

func TestGranularity_Parse(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Granularity
	}{
		{"3600", OneHour},
		{"1h", OneHour},
		{"15m", FifteenMinutes},
		{"86400", OneDay},
		{"24h", OneDay},
	} {
		g, err := ParseGranularity(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, g, tc.in)
	}

	_, err := ParseGranularity("7m")
	require.ErrorIs(t, err, ErrInvalidGranularity)
}
