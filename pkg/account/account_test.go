package account

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/exchange"
	"github.com/candlebot/candlebot/pkg/logger/zerolog"
)

func testSimulated(t *testing.T, options ...SimulatedOption) *Simulated {
	t.Helper()
	log, err := zerolog.New("disabled", time.RFC3339, false, false)
	require.NoError(t, err)
	return NewSimulated(core.CoinbasePro, log, options...)
}

func TestSimulatedRoundTrip(t *testing.T) {
	ctx := context.Background()
	acc := testSimulated(t, WithSimAsset("USD", 1000), WithSimFee(0.005))

	buy, err := acc.Buy(ctx, "BTC-USD", 500, 100)
	require.NoError(t, err)
	assert.Equal(t, core.ActionBuy, buy.Action)
	assert.Equal(t, 500.0, buy.Size)
	assert.InDelta(t, 4.975, buy.Filled, 1e-9)
	assert.InDelta(t, 2.5, buy.Fees, 1e-9)

	usd, err := acc.Balance(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, 500.0, usd)

	btc, err := acc.Balance(ctx, "BTC")
	require.NoError(t, err)
	assert.InDelta(t, 4.975, btc, 1e-9)

	sell, err := acc.Sell(ctx, "BTC-USD", btc, 110)
	require.NoError(t, err)
	assert.Equal(t, core.ActionSell, sell.Action)
	assert.Equal(t, btc, sell.Filled)

	usd, err = acc.Balance(ctx, "USD")
	require.NoError(t, err)
	// 500 + 4.975*110 less 0.5% sell fee.
	assert.InDelta(t, 500+4.975*110*0.995, usd, 1e-9)
}

func TestSimulatedRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	acc := testSimulated(t, WithSimAsset("USD", 10))

	_, err := acc.Buy(ctx, "BTC-USD", 50, 100)
	require.ErrorIs(t, err, core.ErrInsufficientFunds)

	_, err = acc.Sell(ctx, "BTC-USD", 1, 100)
	require.ErrorIs(t, err, core.ErrInsufficientFunds)
}

func TestSimulatedRejectsBadPrice(t *testing.T) {
	ctx := context.Background()
	acc := testSimulated(t, WithSimAsset("USD", 1000))

	_, err := acc.Buy(ctx, "BTC-USD", 100, 0)
	require.ErrorIs(t, err, core.ErrUnsuitablePrice)
}

func TestSimulatedOrderClock(t *testing.T) {
	ctx := context.Background()
	acc := testSimulated(t, WithSimAsset("USD", 1000))

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	acc.SetTime(at)

	order, err := acc.Buy(ctx, "BTC-USD", 100, 100)
	require.NoError(t, err)
	assert.Equal(t, at, order.CreatedAt)
	assert.Equal(t, int64(1), order.ID)

	orders := acc.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, order, orders[0])
}

func TestSimulatedEquity(t *testing.T) {
	ctx := context.Background()
	acc := testSimulated(t, WithSimAsset("USD", 1000), WithSimFee(0))

	assert.Equal(t, 1000.0, acc.InitialBalance("USD"))
	assert.Equal(t, 1000.0, acc.Equity("BTC", "USD", 100))

	_, err := acc.Buy(ctx, "BTC-USD", 1000, 100)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, acc.Equity("BTC", "USD", 100))
	assert.Equal(t, 1100.0, acc.Equity("BTC", "USD", 110))
}

func TestLiveDelegatesToExchange(t *testing.T) {
	ctx := context.Background()
	venue := exchange.NewDummy("BTC-USD")
	venue.SetPrice(100)
	venue.SetBalance("USD", 1000)

	acc := NewLive(venue)

	usd, err := acc.Balance(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, usd)

	buy, err := acc.Buy(ctx, "BTC-USD", 200, 0)
	require.NoError(t, err)
	assert.Equal(t, core.ActionBuy, buy.Action)
	assert.Equal(t, 100.0, buy.Price)

	_, err = acc.Sell(ctx, "BTC-USD", buy.Filled, 0)
	require.NoError(t, err)
}
