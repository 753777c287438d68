package strategy

import (
	"math"

	"github.com/candlebot/candlebot/pkg/config"
	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/indicator"
	"github.com/candlebot/candlebot/pkg/logger"
)

// PointsStrategy scores six independent signal groups (RSI, ADX, MACD
// oscillator, OBV, MACD leader and EMA/WMA cross) on the newest row and
// trades on the accumulated points instead of the standard EMA/MACD
// signals. Strong readings score double.
type PointsStrategy struct {
	cfg *config.Config
	log logger.Logger

	maxPts       int
	ptsToBuy     int
	immedBuyPts  int
	ptsToSell    int
	immedSellPts int

	// How many of the gated signal groups must agree on top of the raw
	// points before a trade is taken.
	sigRequiredBuy  int
	sigRequiredSell int

	buyPts  int
	sellPts int
	sigBuy  int
	sigSell int

	actions map[string]string
}

// NewPointsStrategy returns the scorer with its tuned default thresholds.
func NewPointsStrategy(cfg *config.Config, log logger.Logger) *PointsStrategy {
	return &PointsStrategy{
		cfg:             cfg,
		log:             log,
		maxPts:          11,
		ptsToBuy:        8,
		immedBuyPts:     10,
		ptsToSell:       3,
		immedSellPts:    6,
		sigRequiredBuy:  3,
		sigRequiredSell: 0,
		actions:         make(map[string]string),
	}
}

// Points returns the score of the last Evaluate call.
func (p *PointsStrategy) Points() (buy, sell int) { return p.buyPts, p.sellPts }

// HoldOverride reports whether buy pressure is strong enough to hold an
// open position through a sell trigger.
func (p *PointsStrategy) HoldOverride() bool { return p.buyPts >= p.maxPts }

// Decorate adds the non-standard indicator columns the scorer reads. It
// runs after the standard engine pass and reuses its rsi14 and obv
// columns; the 8/21/5 EMA oscillator variant replaces macd and signal.
func (p *PointsStrategy) Decorate(df *core.Dataframe) {
	closes := []float64(df.Close)
	highs := []float64(df.High)
	lows := []float64(df.Low)

	rsi := df.Column("rsi14")
	rsima := core.Series[float64](indicator.WMA(rsi, 10))
	df.Metadata["rsima10"] = rsima
	df.Metadata["rsi_ma_pcnt"] = pctAbove(rsi, rsima)
	df.Metadata["rsi14_pc"] = pctChange(rsi)

	adx := core.Series[float64](indicator.ADX(highs, lows, closes, 14))
	plusDI := core.Series[float64](indicator.PlusDI(highs, lows, closes, 14))
	minusDI := core.Series[float64](indicator.MinusDI(highs, lows, closes, 14))
	df.Metadata["adx14"] = adx
	df.Metadata["+di14"] = plusDI
	df.Metadata["-di14"] = minusDI
	df.Metadata["di_pcnt"] = pctAbove(plusDI, minusDI)
	df.Metadata["+di_pc"] = pctChange(plusDI)

	// MACD variant on 8/21 EMAs with an SMA5 signal line.
	ema8 := indicator.EMA(closes, 8)
	ema21 := indicator.EMA(closes, 21)
	macd := make(core.Series[float64], len(closes))
	for i := range macd {
		macd[i] = ema8[i] - ema21[i]
	}
	sig := core.Series[float64](indicator.SMA(macd, 5))
	df.Metadata["macd"] = macd
	df.Metadata["signal"] = sig
	df.Metadata["macd_sig_pcnt"] = pctAbove(macd, sig)
	df.Metadata["macd_pc"] = pctChange(macd)

	obv := df.Column("obv")
	obvsm := core.Series[float64](indicator.SMA(obv, 5))
	df.Metadata["obvsm"] = obvsm
	df.Metadata["obv_sm_diff"] = pctAbove(obv, obvsm)

	addMACDLeader(df, closes)

	ema5 := core.Series[float64](indicator.EMA(closes, 5))
	df.Metadata["ema5"] = ema5
	df.Metadata["ema5_wma5"] = core.Series[float64](indicator.WMA(ema5, 5))
	df.Metadata["ema5_pc"] = pctChange(ema5)
}

// addMACDLeader computes Siligardos' MACD leader, an oscillator that leads
// the plain 12/26 MACD by adding the smoothed distance of price from each
// of its EMAs.
func addMACDLeader(df *core.Dataframe, closes []float64) {
	ema12 := indicator.EMA(closes, 12)
	ema26 := indicator.EMA(closes, 26)

	diffFast := make([]float64, len(closes))
	diffSlow := make([]float64, len(closes))
	macdl := make(core.Series[float64], len(closes))
	for i := range closes {
		diffFast[i] = closes[i] - ema12[i]
		diffSlow[i] = closes[i] - ema26[i]
		macdl[i] = ema12[i] - ema26[i]
	}

	leadFast := indicator.EMA(diffFast, 12)
	leadSlow := indicator.EMA(diffSlow, 26)
	lead := make(core.Series[float64], len(closes))
	for i := range closes {
		lead[i] = macdl[i] + leadFast[i] - leadSlow[i]
	}

	sig := core.Series[float64](indicator.EMA(macdl, 9))
	df.Metadata["macdl"] = macdl
	df.Metadata["macdl_sig"] = sig
	df.Metadata["macdlead"] = lead
	df.Metadata["macdl_sg_diff"] = pctAbove(lead, sig)
	df.Metadata["macdlead_pc"] = pctChange(lead)
}

// Evaluate rescores the newest row of df.
func (p *PointsStrategy) Evaluate(df *core.Dataframe) {
	p.Decorate(df)

	p.buyPts, p.sellPts = 0, 0
	p.sigBuy, p.sigSell = 0, 0
	m := df.Metric

	// RSI rising and clear of its weighted MA.
	switch {
	case m("rsi_ma_pcnt") > 10 && m("rsi14_pc") >= 0:
		if m("rsi_ma_pcnt") > 20 && m("rsi14") > 50 {
			p.buyPts += 2
			p.actions["rsi"] = "strongbuy"
		} else {
			p.buyPts++
			p.actions["rsi"] = "buy"
		}
	case m("rsi14_pc") < 0:
		if m("rsi_ma_pcnt") < -10 {
			p.sellPts += 2
			p.actions["rsi"] = "strongsell"
		} else {
			p.sellPts++
			p.actions["rsi"] = "sell"
		}
	default:
		p.actions["rsi"] = "wait"
	}

	// ADX with DI+ leading DI- by a widening gap.
	switch {
	case m("+di14") > m("-di14") && m("di_pcnt") > 20 && m("+di_pc") > 0:
		p.sigBuy++
		if m("adx14") > 30 && (m("di_pcnt") > 50 || m("+di14") > m("adx14")) {
			p.buyPts += 2
			p.actions["adx"] = "strongbuy"
		} else {
			p.buyPts++
			p.actions["adx"] = "buy"
		}
	case m("+di_pc") < 0 || m("+di14") < m("-di14"):
		if m("di_pcnt") < -10 || m("-di14") > m("adx14") {
			p.sellPts += 2
			p.actions["adx"] = "strongsell"
		} else {
			p.sellPts++
			p.actions["adx"] = "sell"
		}
	default:
		p.actions["adx"] = "wait"
	}

	// 8/21/5 MACD oscillator climbing clear of its signal.
	switch {
	case m("macd_sig_pcnt") > 25 && m("macd_pc") > 0:
		if m("macd") > 0 && m("macd_sig_pcnt") > 35 {
			p.buyPts += 2
			p.actions["macd"] = "strongbuy"
		} else {
			p.buyPts++
			p.actions["macd"] = "buy"
		}
	case m("macd_pc") < 0:
		if m("macd_sig_pcnt") < 0 {
			p.sellPts += 2
			p.actions["macd"] = "strongsell"
		} else {
			p.sellPts++
			p.actions["macd"] = "sell"
		}
	default:
		p.actions["macd"] = "wait"
	}

	// OBV above its SMA5 and not shrinking.
	switch {
	case m("obv_sm_diff") > 1 && m("obv_pc") >= 0:
		p.sigBuy++
		p.buyPts++
		p.actions["obv"] = "buy"
	case m("obv_sm_diff") < 0 || m("obv_pc") < 0:
		p.sigSell++
		p.sellPts++
		p.actions["obv"] = "sell"
	default:
		p.actions["obv"] = "wait"
	}

	// MACD leader ahead of its signal and accelerating.
	switch {
	case m("macdl_sg_diff") > 50 && m("macdlead_pc") > 20 && m("macdlead") > 0:
		p.sigBuy++
		if m("macdlead_pc") > 40 && m("macdl_sg_diff") > 100 {
			p.buyPts += 2
			p.actions["macdl"] = "strongbuy"
		} else {
			p.buyPts++
			p.actions["macdl"] = "buy"
		}
	case m("macdlead_pc") < 0:
		p.sigSell++
		if m("macdl_sg_diff") < 0 {
			p.sellPts += 2
			p.actions["macdl"] = "strongsell"
		} else {
			p.sellPts++
			p.actions["macdl"] = "sell"
		}
	default:
		p.actions["macdl"] = "wait"
	}

	// EMA5 crossing its own WMA5.
	switch {
	case m("ema5") > m("ema5_wma5") && m("ema5_pc") > 0:
		p.sigBuy++
		if m("ema5_pc") > 5 {
			p.buyPts += 2
			p.actions["emawma"] = "strongbuy"
		} else {
			p.buyPts++
			p.actions["emawma"] = "buy"
		}
	case m("ema5_pc") < 0:
		p.sigSell++
		if m("ema5") < m("ema5_wma5") {
			p.sellPts += 2
			p.actions["emawma"] = "strongsell"
		} else {
			p.sellPts++
			p.actions["emawma"] = "sell"
		}
	default:
		p.actions["emawma"] = "wait"
	}

	p.log.WithFields(map[string]any{
		"buy_pts":  p.buyPts,
		"sell_pts": p.sellPts,
		"rsi":      p.actions["rsi"],
		"adx":      p.actions["adx"],
		"macd":     p.actions["macd"],
		"obv":      p.actions["obv"],
		"macdl":    p.actions["macdl"],
		"emawma":   p.actions["emawma"],
	}).Debug("points strategy scored")
}

// BuySignal reports whether the last score clears the buy thresholds. It
// arms the immediate trailing buy on pos when the score is high enough.
func (p *PointsStrategy) BuySignal(pos *core.Position) bool {
	if p.buyPts < p.ptsToBuy || p.sigBuy < p.sigRequiredBuy {
		return false
	}
	if pos != nil {
		pos.TrailingBuyImmediate = p.cfg.TrailingBuyImmediatePcnt != nil &&
			p.buyPts >= p.immedBuyPts
	}
	return true
}

// SellSignal reports whether the last score clears the sell thresholds. It
// arms the immediate trailing sell on pos when the score is high enough.
func (p *PointsStrategy) SellSignal(pos *core.Position) bool {
	if p.sellPts < p.ptsToSell || p.sigSell < p.sigRequiredSell {
		return false
	}
	if pos != nil {
		pos.TrailingSellImmediate = p.cfg.TrailingSellImmediatePcnt != nil &&
			p.sellPts >= p.immedSellPts
	}
	return true
}

// pctChange is the row over row percent change of s, first row zero,
// rounded to 2 decimals. Rows following a zero stay zero.
func pctChange(s core.Series[float64]) core.Series[float64] {
	out := make(core.Series[float64], len(s))
	for i := 1; i < len(s); i++ {
		if s[i-1] != 0 {
			out[i] = core.RoundFloat((s[i]/s[i-1]-1)*100, 2)
		}
	}
	return out
}

// pctAbove is how far a sits above b in percent of b's magnitude, rounded
// to 2 decimals. Zero where b is zero.
func pctAbove(a, b core.Series[float64]) core.Series[float64] {
	out := make(core.Series[float64], len(a))
	for i := range a {
		if b[i] != 0 {
			out[i] = core.RoundFloat((a[i]-b[i])/math.Abs(b[i])*100, 2)
		}
	}
	return out
}
