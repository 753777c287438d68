package strategy

import (
	"testing"
	"time"

	"github.com/candlebot/candlebot/pkg/config"
	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/logger/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStrategy(t *testing.T, cfg *config.Config) *Strategy {
	t.Helper()
	log, err := zerolog.New("disabled", time.RFC3339, false, false)
	require.NoError(t, err)
	return New(cfg, log)
}

// sigFrame builds a one row frame with the given flags and metric values.
func sigFrame(closes []float64, flags map[string]bool, metrics map[string]float64) *core.Dataframe {
	df := &core.Dataframe{
		Market:   "BTC-USD",
		Close:    closes,
		Time:     make([]time.Time, len(closes)),
		Metadata: make(map[string]core.Series[float64]),
		Flags:    make(map[string][]bool),
	}
	for name, v := range flags {
		df.Flags[name] = []bool{v}
	}
	for name, v := range metrics {
		df.Metadata[name] = core.Series[float64]{v}
	}
	// Mandatory columns default off rather than absent.
	for _, name := range []string{"ema12gtema26co", "macdgtsignal", "ema12gtema26", "macdgtsignalco", "ema12ltema26co", "macdltsignal"} {
		if _, ok := df.Flags[name]; !ok {
			df.Flags[name] = []bool{false}
		}
	}
	return df
}

func TestBuySignal_FreshEMACross(t *testing.T) {
	cfg := config.Default()
	s := testStrategy(t, cfg)
	pos := &core.Position{}

	df := sigFrame([]float64{100},
		map[string]bool{
			"goldencross":    true,
			"ema12gtema26co": true,
			"macdgtsignal":   true,
			"eri_buy":        true,
		},
		map[string]float64{"obv_pc": 1})

	assert.True(t, s.BuySignal(df, pos, 100))
	assert.Equal(t, core.ActionBuy, s.Action(df, pos, 100))
}

func TestBuySignal_SecondPathMACDCross(t *testing.T) {
	cfg := config.Default()
	s := testStrategy(t, cfg)

	df := sigFrame([]float64{100},
		map[string]bool{
			"goldencross":    true,
			"ema12gtema26":   true,
			"macdgtsignalco": true,
			"eri_buy":        true,
		},
		map[string]float64{"obv_pc": 0})

	assert.True(t, s.BuySignal(df, &core.Position{}, 100))
}

func TestBuySignal_OBVVeto(t *testing.T) {
	cfg := config.Default()
	s := testStrategy(t, cfg)

	df := sigFrame([]float64{100},
		map[string]bool{
			"goldencross":    true,
			"ema12gtema26co": true,
			"macdgtsignal":   true,
			"eri_buy":        true,
		},
		map[string]float64{"obv_pc": -6})

	assert.False(t, s.BuySignal(df, &core.Position{}, 100))

	cfg.DisableBuyOBV = true
	assert.True(t, s.BuySignal(df, &core.Position{}, 100))
}

func TestBuySignal_BullOnly(t *testing.T) {
	cfg := config.Default()
	s := testStrategy(t, cfg)

	df := sigFrame([]float64{100},
		map[string]bool{
			"goldencross":    false,
			"ema12gtema26co": true,
			"macdgtsignal":   true,
			"eri_buy":        true,
		},
		map[string]float64{"obv_pc": 1})

	assert.False(t, s.BuySignal(df, &core.Position{}, 100))

	cfg.DisableBullOnly = true
	assert.True(t, s.BuySignal(df, &core.Position{}, 100))
}

func TestBuySignal_NearHighVeto(t *testing.T) {
	cfg := config.Default()
	cfg.DisableBuyNearHigh = true
	s := testStrategy(t, cfg)

	df := sigFrame([]float64{90, 100, 95},
		map[string]bool{
			"goldencross":    true,
			"ema12gtema26co": true,
			"macdgtsignal":   true,
			"eri_buy":        true,
		},
		map[string]float64{"obv_pc": 1})

	// 98 is within 3% of the close high of 100.
	assert.False(t, s.BuySignal(df, &core.Position{LastAction: core.ActionSell}, 98))
	// 96 is not.
	assert.True(t, s.BuySignal(df, &core.Position{LastAction: core.ActionSell}, 96))
}

func TestSellSignal(t *testing.T) {
	cfg := config.Default()
	s := testStrategy(t, cfg)

	df := sigFrame([]float64{100},
		map[string]bool{"ema12ltema26co": true, "macdltsignal": true}, nil)
	assert.True(t, s.SellSignal(df, &core.Position{}))

	df = sigFrame([]float64{100},
		map[string]bool{"ema12ltema26co": true, "macdltsignal": false}, nil)
	assert.False(t, s.SellSignal(df, &core.Position{}))

	// MACD confirmation is waived when the MACD leg is disabled.
	cfg.DisableBuyMACD = true
	assert.True(t, s.SellSignal(df, &core.Position{}))
}

func TestAction_WaitWhenFlat(t *testing.T) {
	cfg := config.Default()
	s := testStrategy(t, cfg)

	df := sigFrame([]float64{100}, map[string]bool{"goldencross": true}, nil)
	assert.Equal(t, core.ActionWait, s.Action(df, &core.Position{}, 100))
}
