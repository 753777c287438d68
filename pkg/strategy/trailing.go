package strategy

import (
	"fmt"

	"github.com/candlebot/candlebot/pkg/core"
)

// TrailingResult is the outcome of one trailing machine step. Immediate
// means the action fires now instead of waiting for the candle close.
type TrailingResult struct {
	Action    core.ActionType
	Immediate bool
	Note      string
}

// CheckTrailingBuy latches the waiting price on the first buy signal and
// confirms the buy only after price has climbed back off the low. The
// waiting price ratchets down while price keeps falling.
func (s *Strategy) CheckTrailingBuy(pos *core.Position, price float64) TrailingResult {
	cfg := s.cfg

	var pricechange float64
	if pos.TrailingBuy && pos.WaitingBuyPrice > 0 {
		pricechange = core.TruncateFloat(
			(pos.WaitingBuyPrice-price)/pos.WaitingBuyPrice*-100, 2)
	} else {
		pos.WaitingBuyPrice = price
		pos.TrailingBuy = true
	}

	var res TrailingResult
	switch {
	case price < pos.WaitingBuyPrice:
		pos.WaitingBuyPrice = price
		res = TrailingResult{
			Action: core.ActionWait,
			Note:   fmt.Sprintf("wait chg: dec %.2f%%", pricechange),
		}

	case cfg.TrailingBuyImmediatePcnt != nil &&
		(pos.TrailingBuyImmediate || bool(cfg.TrailingImmediateBuy)) &&
		pricechange > *cfg.TrailingBuyImmediatePcnt:
		res = TrailingResult{
			Action:    core.ActionBuy,
			Immediate: true,
			Note: fmt.Sprintf("immediate buy chg: %.2f%%/%v%%",
				pricechange, *cfg.TrailingBuyImmediatePcnt),
		}

	// 10% band so a move a hair under the setting does not hold another
	// full candle.
	case pricechange < cfg.TrailingBuyPcnt*0.9:
		res = TrailingResult{
			Action: core.ActionWait,
			Note:   fmt.Sprintf("wait chg: %.2f%%/%v%%", pricechange, cfg.TrailingBuyPcnt),
		}

	default:
		res = TrailingResult{
			Action: core.ActionBuy,
			Note:   fmt.Sprintf("buy chg: %.2f%%/%v%%", pricechange, cfg.TrailingBuyPcnt),
		}
	}

	pos.Action = res.Action
	if s.cfg.Verbose() {
		s.log.WithField("market", cfg.Market).Info("trailing buy", res.Note)
	}
	return res
}

// CheckTrailingSell mirrors the buy machine for exits: the waiting price
// ratchets up while price keeps climbing and the sell confirms once price
// has dropped far enough off the high. A configured bailout sells
// immediately on a sharp drop regardless of confirmation state.
func (s *Strategy) CheckTrailingSell(pos *core.Position, price float64) TrailingResult {
	cfg := s.cfg

	if !pos.TrailingSell {
		return TrailingResult{Action: pos.Action}
	}

	var pricechange float64
	if pos.WaitingSellPrice > 0 {
		pricechange = core.TruncateFloat(
			(pos.WaitingSellPrice-price)/pos.WaitingSellPrice*-100, 2)
	} else {
		pos.WaitingSellPrice = price
	}

	var res TrailingResult
	switch {
	case price >= pos.WaitingSellPrice:
		pos.WaitingSellPrice = price
		res = TrailingResult{
			Action: core.ActionWait,
			Note:   fmt.Sprintf("wait chg: inc %.2f%%", pricechange),
		}

	case cfg.TrailingSellBailoutPcnt != nil &&
		pricechange < *cfg.TrailingSellBailoutPcnt:
		res = TrailingResult{
			Action:    core.ActionSell,
			Immediate: true,
			Note: fmt.Sprintf("bailout sell chg: %.2f%%/%v%%",
				pricechange, *cfg.TrailingSellBailoutPcnt),
		}

	case cfg.TrailingSellImmediatePcnt != nil &&
		(pos.TrailingSellImmediate || bool(cfg.TrailingImmediateSell)) &&
		pricechange < *cfg.TrailingSellImmediatePcnt:
		res = TrailingResult{
			Action:    core.ActionSell,
			Immediate: true,
			Note: fmt.Sprintf("immediate sell chg: %.2f%%/%v%%",
				pricechange, *cfg.TrailingSellImmediatePcnt),
		}

	// Same 10% band as the buy side.
	case pricechange > cfg.TrailingSellPcnt*0.9:
		res = TrailingResult{
			Action: core.ActionWait,
			Note:   fmt.Sprintf("wait chg: %.2f%%/%v%%", pricechange, cfg.TrailingSellPcnt),
		}

	default:
		res = TrailingResult{
			Action: core.ActionSell,
			Note:   fmt.Sprintf("sell chg: %.2f%%/%v%%", pricechange, cfg.TrailingSellPcnt),
		}
	}

	pos.Action = res.Action
	if s.cfg.Verbose() {
		s.log.WithField("market", cfg.Market).Info("trailing sell", res.Note)
	}
	return res
}
