package candlebot

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlebot/candlebot/pkg/config"
	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/exchange"
	"github.com/candlebot/candlebot/pkg/logger/zerolog"
	"github.com/candlebot/candlebot/pkg/notification"
	"github.com/candlebot/candlebot/pkg/storage"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Exchange = core.Dummy
	cfg.Market = "BTC-USD"
	cfg.BaseCurrency = "BTC"
	cfg.QuoteCurrency = "USD"
	cfg.Granularity = core.OneHour
	cfg.Sim = config.SimFast
	cfg.DisableTelegram = true
	// Pull a window comfortably above the minimum history so boundary
	// rounding never starves the indicator stack.
	cfg.AdjustTotalPeriods = 400
	return cfg
}

// flatCandles is n hourly candles at a constant price ending near now, so a
// default simulation window covers them.
func flatCandles(n int, price float64) []core.Candle {
	start := time.Now().UTC().Truncate(time.Hour).Add(-time.Duration(n) * time.Hour)

	candles := make([]core.Candle, n)
	for i := range candles {
		candles[i] = core.Candle{
			Time:     start.Add(time.Duration(i) * time.Hour),
			Open:     price,
			High:     price + 1,
			Low:      price - 1,
			Close:    price,
			Volume:   10,
			Complete: true,
		}
	}
	return candles
}

// trendCandles walks the close through a full cycle: a flat base for the
// first half, a steep climb, then a steep drop, so the EMA pair crosses up
// and back down inside one simulation.
func trendCandles(n int) []core.Candle {
	start := time.Now().UTC().Truncate(time.Hour).Add(-time.Duration(n) * time.Hour)

	price := 100.0
	candles := make([]core.Candle, n)
	for i := range candles {
		switch {
		case i >= n/2 && i < 3*n/4:
			price += 2
		case i >= 3*n/4:
			price -= 2
		}
		candles[i] = core.Candle{
			Time:     start.Add(time.Duration(i) * time.Hour),
			Open:     price,
			High:     price + 1,
			Low:      price - 1,
			Close:    price,
			Volume:   10,
			Complete: true,
		}
	}
	return candles
}

func newTestBot(t *testing.T, cfg *config.Config, dummy *exchange.DummyExchange) *Bot {
	t.Helper()
	chdirTemp(t)

	log, err := zerolog.New("disabled", timeLayout, false, false)
	require.NoError(t, err)

	store, err := storage.FromMemory()
	require.NoError(t, err)

	bot, err := New(cfg,
		WithExchange(dummy),
		WithLogger(log),
		WithStorage(store),
	)
	require.NoError(t, err)
	return bot
}

func TestSimulationCompletesOnFlatMarket(t *testing.T) {
	dummy := exchange.NewDummy("BTC-USD")
	dummy.SetCandles(flatCandles(400, 100))

	bot := newTestBot(t, testConfig(), dummy)
	require.NoError(t, bot.Run(context.Background()))

	require.NotNil(t, bot.sim)
	assert.GreaterOrEqual(t, bot.sim.frame.Len(), 300)
	assert.Equal(t, bot.sim.frame.Len(), bot.pos.Iterations)
	assert.Zero(t, bot.pos.BuyCount)
	assert.Zero(t, bot.pos.SellCount)
}

func TestExecuteBuySellRoundTrip(t *testing.T) {
	dummy := exchange.NewDummy("BTC-USD")
	dummy.SetCandles(flatCandles(400, 100))

	bot := newTestBot(t, testConfig(), dummy)
	require.NotNil(t, bot.paper)

	require.NoError(t, bot.prepareSimulation(context.Background()))
	df := bot.sim.frame
	ctx := context.Background()

	require.NoError(t, bot.executeBuy(ctx, df, 100))
	assert.True(t, bot.pos.OpenPosition())
	assert.Equal(t, 1000.0, bot.pos.LastBuySize)
	assert.InDelta(t, 9.95, bot.pos.LastBuyFilled, 1e-9)
	assert.Equal(t, 100.0, bot.pos.LastBuyPrice)

	orders, err := bot.storage.Orders(core.WithAction(core.ActionBuy))
	require.NoError(t, err)
	require.Len(t, orders, 1)

	dummy.SetPrice(110)
	require.NoError(t, bot.executeSell(ctx, df, 110))
	assert.False(t, bot.pos.OpenPosition())
	assert.Equal(t, core.ActionSell, bot.pos.LastAction)

	require.Len(t, bot.sim.trades, 1)
	trade := bot.sim.trades[0]
	assert.InDelta(t, 94.0275, trade.Profit, 1e-4)
	assert.InDelta(t, 9.40275, trade.Margin, 1e-4)
	assert.Equal(t, 100.0, trade.BuyPrice)
	assert.Equal(t, 110.0, trade.SellPrice)

	// Both legs are quote sizes: 9.95 BTC at 110 minus the taker fee.
	assert.InDelta(t, 1089.0275, trade.SellSize, 1e-4)
	assert.InDelta(t, 1089.0275, bot.pos.SellSum, 1e-4)
	assert.InDelta(t, 8.90275, bot.compoundedMargin(), 1e-4)
}

func TestBuyRespectsMaxAndMinSize(t *testing.T) {
	dummy := exchange.NewDummy("BTC-USD")
	dummy.SetCandles(flatCandles(400, 100))

	maxSize := 250.0
	cfg := testConfig()
	cfg.BuyMaxSize = &maxSize

	bot := newTestBot(t, cfg, dummy)
	require.NoError(t, bot.prepareSimulation(context.Background()))

	require.NoError(t, bot.executeBuy(context.Background(), bot.sim.frame, 100))
	assert.Equal(t, 250.0, bot.pos.LastBuySize)

	// A minimum above the remaining balance skips the next entry entirely.
	minSize := 10000.0
	cfg.BuyMinSize = &minSize
	bot.pos.TrackSell(core.Order{Action: core.ActionSell})
	require.NoError(t, bot.executeBuy(context.Background(), bot.sim.frame, 100))
	assert.False(t, bot.pos.OpenPosition())
}

func TestManualOverridesFromControlFile(t *testing.T) {
	dummy := exchange.NewDummy("BTC-USD")
	dummy.SetCandles(flatCandles(400, 100))

	bot := newTestBot(t, testConfig(), dummy)

	action, immediate := bot.applyManualOverrides(core.ActionWait, false)
	assert.Equal(t, core.ActionWait, action)
	assert.False(t, immediate)

	require.NoError(t, bot.control.UpdateControl(func(c *notification.ControlState) { c.ManualBuy = true }))

	action, immediate = bot.applyManualOverrides(core.ActionWait, false)
	assert.Equal(t, core.ActionBuy, action)
	assert.True(t, immediate)

	// One-shot: consumed on the first read.
	action, _ = bot.applyManualOverrides(core.ActionWait, false)
	assert.Equal(t, core.ActionWait, action)
}

func TestPauseSuppressesSignals(t *testing.T) {
	dummy := exchange.NewDummy("BTC-USD")
	dummy.SetCandles(flatCandles(400, 100))

	bot := newTestBot(t, testConfig(), dummy)
	require.NoError(t, bot.control.UpdateControl(func(c *notification.ControlState) {
		c.Status = "paused"
	}))

	action, immediate := bot.applyManualOverrides(core.ActionBuy, true)
	assert.Equal(t, core.ActionWait, action)
	assert.False(t, immediate)
}

func TestFrameThrough(t *testing.T) {
	df := core.NewDataframe("BTC-USD", core.OneHour, flatCandles(5, 100))
	df.Metadata["ema12"] = core.Series[float64]{1, 2, 3, 4, 5}
	df.Flags["goldencross"] = []bool{false, false, true, true, true}

	window := frameThrough(df, 3)
	assert.Equal(t, 3, window.Len())
	assert.Equal(t, df.Time[2], window.LastTime())
	assert.Equal(t, 3.0, window.Metric("ema12"))
	assert.True(t, window.Flag("goldencross"))

	// Requesting at least the full frame returns it unchanged.
	assert.Equal(t, df, frameThrough(df, 5))
	assert.Equal(t, df, frameThrough(df, 10))
}

func TestSimWindowFromConfiguredDates(t *testing.T) {
	dummy := exchange.NewDummy("BTC-USD")
	dummy.SetCandles(flatCandles(400, 100))

	cfg := testConfig()
	cfg.SimStartDate = "2026-01-01"
	cfg.SimEndDate = "2026-01-15 12:00:00"

	bot := newTestBot(t, cfg, dummy)
	start, end, err := bot.simWindow()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC), end)

	cfg.SimStartDate = "2026-02-01"
	_, _, err = bot.simWindow()
	assert.Error(t, err)
}

func TestDownloadHistoryPaginatesAndSorts(t *testing.T) {
	candles := flatCandles(450, 100)
	dummy := exchange.NewDummy("BTC-USD")
	dummy.SetCandles(candles)

	bot := newTestBot(t, testConfig(), dummy)

	start := candles[0].Time
	end := candles[len(candles)-1].Time
	got, err := bot.downloadHistory(context.Background(), start, end)
	require.NoError(t, err)

	require.NotEmpty(t, got)
	assert.GreaterOrEqual(t, len(got), 400)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Time.Before(got[i].Time))
	}
}

func TestTrendSimulationRoundTrip(t *testing.T) {
	dummy := exchange.NewDummy("BTC-USD")
	dummy.SetCandles(trendCandles(400))

	cfg := testConfig()
	cfg.DisableBullOnly = true
	cfg.DisableBuyOBV = true
	cfg.DisableBuyElderRay = true

	bot := newTestBot(t, cfg, dummy)
	require.NoError(t, bot.Run(context.Background()))

	// The climb enters, the drop exits; every entry has a matching exit.
	require.NotZero(t, bot.pos.BuyCount)
	assert.Equal(t, bot.pos.BuyCount, bot.pos.SellCount)
	require.NotEmpty(t, bot.sim.trades)

	// Recorded sell sizes are quote proceeds net of fees, derivable from the
	// buy leg and the fill prices alone.
	fee := dummy.GetTakerFee()
	for _, trade := range bot.sim.trades {
		filled := trade.BuySize * (1 - fee) / trade.BuyPrice
		assert.InDelta(t, filled*trade.SellPrice*(1-fee), trade.SellSize, 1e-6)
		assert.Greater(t, trade.SellSize, trade.BuySize/2)
	}

	last := bot.sim.trades[len(bot.sim.trades)-1]
	want := (last.SellSize - bot.pos.FirstBuySize) / bot.pos.FirstBuySize * 100
	assert.InDelta(t, want, bot.compoundedMargin(), 1e-9)
}

func TestCompoundedMargin(t *testing.T) {
	bot := &Bot{sim: &simState{lastSellSize: 1200}}
	bot.pos.FirstBuySize = 1000
	assert.InDelta(t, 20.0, bot.compoundedMargin(), 1e-9)

	bot.sim.lastSellSize = 0
	assert.Zero(t, bot.compoundedMargin())
}

func TestRecoverPosition(t *testing.T) {
	dummy := exchange.NewDummy("BTC-USD")
	dummy.SetCandles(flatCandles(400, 100))

	bot := newTestBot(t, testConfig(), dummy)
	require.NoError(t, bot.storage.CreateOrder(&core.Order{
		Market: "BTC-USD",
		Action: core.ActionBuy,
		Price:  100,
		Size:   500,
		Filled: 4.975,
		Fees:   2.5,
		Status: core.OrderStatusDone,
	}))

	require.NoError(t, bot.recoverPosition(context.Background()))
	assert.True(t, bot.pos.OpenPosition())
	assert.Equal(t, 500.0, bot.pos.LastBuySize)
	assert.Equal(t, 100.0, bot.pos.LastBuyPrice)
}

func TestRecoverPositionFromVenueOrders(t *testing.T) {
	dummy := exchange.NewDummy("BTC-USD")
	dummy.SetCandles(flatCandles(400, 100))
	dummy.SetBalance("USD", 1000)

	cfg := testConfig()
	cfg.Sim = config.SimOff
	cfg.Live = true

	bot := newTestBot(t, cfg, dummy)

	// The fill exists only on the venue, never in local storage.
	_, err := dummy.MarketBuy(context.Background(), "BTC-USD", 500)
	require.NoError(t, err)

	require.NoError(t, bot.recoverPosition(context.Background()))
	assert.True(t, bot.pos.OpenPosition())
	assert.Equal(t, 500.0, bot.pos.LastBuySize)
	assert.Equal(t, 100.0, bot.pos.LastBuyPrice)
	assert.InDelta(t, 4.975, bot.pos.LastBuyFilled, 1e-9)
}
