// Package strategy turns the newest row of a decorated dataframe into a
// BUY, SELL or WAIT decision, guards every sell behind an ordered chain of
// exit rules, and confirms entries and exits through trailing price
// machines.
package strategy

import (
	"fmt"

	"github.com/candlebot/candlebot/pkg/config"
	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/logger"
)

// Strategy evaluates signals for a single market. It mutates only the
// Position handed to it; dataframes are read-only here.
type Strategy struct {
	cfg    *config.Config
	log    logger.Logger
	custom *PointsStrategy
}

// New creates a strategy bound to cfg. When the custom points strategy is
// enabled it replaces the standard EMA/MACD signals entirely.
func New(cfg *config.Config, log logger.Logger) *Strategy {
	s := &Strategy{cfg: cfg, log: log}
	if cfg.EnableCustomStrategy {
		s.custom = NewPointsStrategy(cfg, log)
	}
	return s
}

// Custom returns the points strategy, nil when not enabled.
func (s *Strategy) Custom() *PointsStrategy { return s.custom }

// Action resolves the raw trade signal for the newest row of df. The exit
// rules and trailing machines run afterwards in the control loop.
func (s *Strategy) Action(df *core.Dataframe, pos *core.Position, price float64) core.ActionType {
	if s.custom != nil {
		s.custom.Evaluate(df)
	}

	if pos.LastAction != core.ActionBuy && s.BuySignal(df, pos, price) {
		return core.ActionBuy
	}
	if pos.LastAction == core.ActionBuy && s.SellSignal(df, pos) {
		return core.ActionSell
	}
	return core.ActionWait
}

// BuySignal reports whether the newest row qualifies as an entry.
func (s *Strategy) BuySignal(df *core.Dataframe, pos *core.Position, price float64) bool {
	cfg := s.cfg

	// Do not enter within reach of the frame's close high.
	if pos.LastAction != core.ActionBuy && bool(cfg.DisableBuyNearHigh) {
		high := df.Close.Max()
		if price > high*(1-cfg.NoBuyNearHighPcnt/100) {
			s.log.WithFields(map[string]any{
				"market": df.Market,
				"price":  price,
				"high":   high,
			}).Warnf("ignoring buy signal, price within %v%% of high", cfg.NoBuyNearHighPcnt)
			return false
		}
	}

	if !bool(cfg.DisableBullOnly) && !df.Flag("goldencross") {
		return false
	}

	// The points strategy replaces the standard signals when enabled.
	if s.custom != nil {
		return s.custom.BuySignal(pos)
	}

	if cfg.DisableBuyEMA && cfg.DisableBuyMACD {
		s.log.Warn("EMA and MACD indicators are both disabled, no buy signal possible")
		return false
	}

	for _, name := range []string{"ema12gtema26co", "macdgtsignal"} {
		if _, ok := df.Flags[name]; !ok {
			panic(fmt.Sprintf("strategy: mandatory column %q missing from dataframe", name))
		}
	}

	obvOK := df.Metric("obv_pc") > -5 || bool(cfg.DisableBuyOBV)
	eriOK := df.Flag("eri_buy") || bool(cfg.DisableBuyElderRay)

	// Entry 1: fresh EMA12/EMA26 cross with MACD already above its signal.
	if (df.Flag("ema12gtema26co") || bool(cfg.DisableBuyEMA)) &&
		(df.Flag("macdgtsignal") || bool(cfg.DisableBuyMACD)) &&
		obvOK && eriOK {
		return true
	}

	// Entry 2: EMA12 already above with a fresh MACD cross.
	if (df.Flag("ema12gtema26") || bool(cfg.DisableBuyEMA)) &&
		df.Flag("macdgtsignalco") &&
		obvOK && eriOK {
		return true
	}

	return false
}

// SellSignal reports whether the newest row qualifies as an exit. The exit
// rule chain can still veto or force a sell independently of this.
func (s *Strategy) SellSignal(df *core.Dataframe, pos *core.Position) bool {
	cfg := s.cfg

	if s.custom != nil {
		return s.custom.SellSignal(pos)
	}

	if cfg.DisableBuyEMA && cfg.DisableBuyMACD {
		return false
	}

	return df.Flag("ema12ltema26co") &&
		(df.Flag("macdltsignal") || bool(cfg.DisableBuyMACD))
}
