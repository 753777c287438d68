package strategy

import (
	"math"

	"github.com/candlebot/candlebot/pkg/core"
)

// TriggerInput carries the per-tick numbers the exit rules evaluate.
// ChangePcntHigh is the percent distance of price below the high water mark
// since the last buy and is zero or negative.
type TriggerInput struct {
	Price          float64
	PriceExit      float64
	Margin         float64
	ChangePcntHigh float64
}

type verdict int

const (
	pass verdict = iota
	fire
	suppress
)

// exitRule is one link of the sell trigger chain. The first rule that does
// not pass decides the outcome, so order is precedence.
type exitRule struct {
	name string
	eval func(s *Strategy, pos *core.Position, in TriggerInput) verdict
}

var exitRules = []exitRule{
	{"prevent-loss", evalPreventLoss},
	{"no-sell-at-loss", evalNoSellAtLoss},
	{"no-sell-bounds", evalNoSellBounds},
	{"trailing-stop-loss", evalTrailingStopLoss},
	{"loss-failsafe-lower-pcnt", evalLossFailsafeLower},
	{"loss-failsafe-fibonacci", evalLossFailsafeFibonacci},
	{"profit-bank-upper-pcnt", evalProfitBankUpper},
	{"sell-at-resistance", evalSellAtResistance},
}

// SellTrigger walks the exit rule chain and reports whether the position
// must be closed now, regardless of the raw sell signal.
func (s *Strategy) SellTrigger(pos *core.Position, in TriggerInput) bool {
	// Strong custom buy pressure holds the position open.
	if s.custom != nil && bool(s.cfg.SellTriggerOverride) && s.custom.HoldOverride() {
		return false
	}

	for _, rule := range exitRules {
		switch rule.eval(s, pos, in) {
		case fire:
			s.log.WithFields(map[string]any{
				"rule":   rule.name,
				"margin": core.TruncateFloat(in.Margin, 2),
				"price":  in.Price,
			}).Warn("sell trigger fired")
			return true
		case suppress:
			return false
		}
	}
	return false
}

// Prevent loss is a two phase latch: arm once margin clears the trigger,
// fire when it falls back to the margin set point. A trigger of zero skips
// the latch and checks the set point alone.
func evalPreventLoss(s *Strategy, pos *core.Position, in TriggerInput) verdict {
	cfg := s.cfg
	if !cfg.PreventLoss {
		return pass
	}

	if !pos.PreventLoss && in.Margin > cfg.PreventLossTrigger {
		pos.PreventLoss = true
		s.log.Warnf("%s reached prevent loss trigger of %v%%, watching margin %v%%",
			cfg.Market, cfg.PreventLossTrigger, cfg.PreventLossMargin)
		return pass
	}

	if (pos.PreventLoss && in.Margin <= cfg.PreventLossMargin) ||
		(cfg.PreventLossTrigger == 0 && in.Margin <= cfg.PreventLossMargin) {
		return fire
	}
	return pass
}

func evalNoSellAtLoss(s *Strategy, pos *core.Position, in TriggerInput) verdict {
	if !bool(s.cfg.SellAtLoss) && in.Margin <= 0 {
		return suppress
	}
	return pass
}

func evalNoSellBounds(s *Strategy, pos *core.Position, in TriggerInput) verdict {
	cfg := s.cfg
	if cfg.NoSellMinPcnt != nil && in.Margin >= *cfg.NoSellMinPcnt &&
		cfg.NoSellMaxPcnt != nil && in.Margin <= *cfg.NoSellMaxPcnt {
		return suppress
	}
	return pass
}

// The trailing stop loss arms once margin clears its trigger and fires when
// price falls far enough below the post-buy high. In dynamic mode each
// trigger hit ratchets the trigger and shrinks the stop percent until the
// configured max.
func evalTrailingStopLoss(s *Strategy, pos *core.Position, in TriggerInput) verdict {
	cfg := s.cfg
	if cfg.TrailingStopLoss == nil {
		return pass
	}

	// Seed from config on the first evaluation after a buy.
	if pos.TSLPcnt == 0 {
		pos.TSLPcnt = *cfg.TrailingStopLoss
		pos.TSLTrigger = cfg.TrailingStopLossTrigger
	}

	if cfg.DynamicTSL {
		next := math.Round(pos.TSLTrigger * cfg.TSLTriggerMultiplier)
		if cfg.TSLTriggerMultiplier != 0 && in.Margin > next && !pos.TSLMax {
			// Price pushed past the next rung, rearm so the stop ratchets.
			pos.TSLTriggered = false
		}

		if !pos.TSLTriggered {
			if cfg.TSLTriggerMultiplier != 0 && in.Margin > next {
				pos.TSLTriggered = true
				pos.TSLTrigger = next
				pos.TSLPcnt = core.RoundFloat(pos.TSLPcnt*cfg.TSLMultiplier, 1)
				if pos.TSLPcnt <= cfg.TSLMaxPcnt {
					pos.TSLMax = true
				}
			} else if in.Margin > pos.TSLTrigger {
				pos.TSLTriggered = true
			}
		}
	} else if in.Margin > pos.TSLTrigger {
		pos.TSLTriggered = true
	}

	if pos.TSLTriggered && in.ChangePcntHigh < pos.TSLPcnt {
		return fire
	}
	return pass
}

func evalLossFailsafeLower(s *Strategy, pos *core.Position, in TriggerInput) verdict {
	cfg := s.cfg
	if !bool(cfg.DisableFailsafeLowerPcnt) && bool(cfg.SellAtLoss) &&
		cfg.SellLowerPcnt != nil && in.Margin < *cfg.SellLowerPcnt {
		return fire
	}
	return pass
}

// The fibonacci floor failsafe only runs when no explicit lower percent is
// configured.
func evalLossFailsafeFibonacci(s *Strategy, pos *core.Position, in TriggerInput) verdict {
	cfg := s.cfg
	if !bool(cfg.DisableFailsafeFibonacci) && bool(cfg.SellAtLoss) &&
		cfg.SellLowerPcnt == nil &&
		pos.FibLow > 0 && pos.FibLow >= in.Price {
		return fire
	}
	return pass
}

func evalProfitBankUpper(s *Strategy, pos *core.Position, in TriggerInput) verdict {
	cfg := s.cfg
	if !bool(cfg.DisableProfitBankUpperPcnt) &&
		cfg.SellUpperPcnt != nil && in.Margin > *cfg.SellUpperPcnt {
		return fire
	}
	return pass
}

func evalSellAtResistance(s *Strategy, pos *core.Position, in TriggerInput) verdict {
	cfg := s.cfg
	if bool(cfg.SellAtResistance) && in.Margin >= 2 &&
		in.Price > 0 && in.Price >= in.PriceExit &&
		(bool(cfg.SellAtLoss) || in.Margin > 0) {
		return fire
	}
	return pass
}

// WaitTrigger reports whether the pending action on pos must be parked for
// this tick. An armed prevent loss latch is never parked.
func (s *Strategy) WaitTrigger(pos *core.Position, margin float64, goldencross bool) bool {
	cfg := s.cfg

	if (pos.PreventLoss && margin <= cfg.PreventLossMargin) ||
		(bool(cfg.PreventLoss) && cfg.PreventLossTrigger == 0 && margin <= cfg.PreventLossMargin) {
		return false
	}

	if pos.Action == core.ActionBuy && !bool(cfg.DisableBullOnly) && !goldencross {
		s.log.Warn("ignoring buy signal, bear market in bull-only mode")
		return true
	}

	if pos.Action == core.ActionSell && !bool(cfg.SellAtLoss) && margin <= 0 {
		s.log.Warn("ignoring sell signal, no sell at loss")
		return true
	}

	if pos.Action == core.ActionSell &&
		cfg.NoSellMinPcnt != nil && margin >= *cfg.NoSellMinPcnt &&
		cfg.NoSellMaxPcnt != nil && margin <= *cfg.NoSellMaxPcnt {
		s.log.Warn("ignoring sell signal, within no-sell bounds")
		return true
	}

	return false
}
