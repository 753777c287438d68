package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlebot/candlebot/pkg/core"
)

func TestDummyBuySell(t *testing.T) {
	ctx := context.Background()
	d := NewDummy("BTC-USD")
	d.SetPrice(100)
	d.SetBalance("USD", 1000)

	buy, err := d.MarketBuy(ctx, "BTC-USD", 500)
	require.NoError(t, err)
	assert.Equal(t, core.ActionBuy, buy.Action)
	assert.Equal(t, core.OrderStatusDone, buy.Status)
	assert.Equal(t, 100.0, buy.Price)
	assert.Equal(t, 500.0, buy.Size)
	assert.InDelta(t, 4.975, buy.Filled, 1e-9)

	usd, err := d.GetBalance(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, 500.0, usd)

	btc, err := d.GetBalance(ctx, "BTC")
	require.NoError(t, err)
	assert.InDelta(t, 4.975, btc, 1e-9)

	d.SetPrice(110)
	sell, err := d.MarketSell(ctx, "BTC-USD", btc)
	require.NoError(t, err)
	assert.Equal(t, core.ActionSell, sell.Action)
	assert.Equal(t, 110.0, sell.Price)
	assert.Equal(t, btc, sell.Filled)

	usd, err = d.GetBalance(ctx, "USD")
	require.NoError(t, err)
	assert.Greater(t, usd, 1000.0)
}

func TestDummyRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	d := NewDummy("BTC-USD")
	d.SetPrice(100)
	d.SetBalance("USD", 10)

	_, err := d.MarketBuy(ctx, "BTC-USD", 50)
	require.ErrorIs(t, err, core.ErrInsufficientFunds)

	_, err = d.MarketSell(ctx, "BTC-USD", 1)
	require.ErrorIs(t, err, core.ErrInsufficientFunds)
}

func TestDummyOrderHistory(t *testing.T) {
	ctx := context.Background()
	d := NewDummy("BTC-USD")
	d.SetPrice(100)
	d.SetBalance("USD", 1000)
	d.SetBalance("BTC", 1)

	_, err := d.MarketBuy(ctx, "BTC-USD", 100)
	require.NoError(t, err)
	_, err = d.MarketSell(ctx, "BTC-USD", 0.5)
	require.NoError(t, err)

	all, err := d.GetOrders(ctx, "BTC-USD", core.ActionNone, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	buys, err := d.GetOrders(ctx, "BTC-USD", core.ActionBuy, core.OrderStatusDone)
	require.NoError(t, err)
	require.Len(t, buys, 1)
	assert.Equal(t, int64(1), buys[0].ID)
}

func TestDummyCandleWindow(t *testing.T) {
	ctx := context.Background()
	d := NewDummy("BTC-USD")

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]core.Candle, 5)
	for i := range candles {
		candles[i] = core.Candle{
			Time:  base.Add(time.Duration(i) * time.Hour),
			Close: 100 + float64(i),
		}
	}
	d.SetCandles(candles)

	got, err := d.GetHistoricalData(ctx, "BTC-USD", core.OneHour, base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "BTC-USD", got[0].Market)
	assert.Equal(t, core.OneHour, got[0].Granularity)

	price, err := d.GetTicker(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Equal(t, 104.0, price)

	now, err := d.GetTime(ctx)
	require.NoError(t, err)
	assert.Equal(t, candles[4].Time, now)
}
