package strategy

import (
	"testing"

	"github.com/candlebot/candlebot/pkg/config"
	"github.com/candlebot/candlebot/pkg/core"
	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }

func TestSellTrigger_TrailingStopLoss(t *testing.T) {
	cfg := config.Default()
	cfg.TrailingStopLoss = floatPtr(-3)
	cfg.TrailingStopLossTrigger = 3
	s := testStrategy(t, cfg)

	pos := &core.Position{LastAction: core.ActionBuy, LastBuyPrice: 100, LastBuyHigh: 100}

	steps := []struct {
		price float64
		fire  bool
	}{
		{102, false}, // below trigger margin
		{105, false}, // arms the stop
		{110, false}, // new high
		{108, false}, // -1.8% off the high
		{104, true},  // -5.5% off the high
	}

	for _, step := range steps {
		if step.price > pos.LastBuyHigh {
			pos.LastBuyHigh = step.price
		}
		in := TriggerInput{
			Price:          step.price,
			Margin:         (step.price/pos.LastBuyPrice - 1) * 100,
			ChangePcntHigh: pos.ChangePcntFromBuyHigh(step.price),
		}
		assert.Equal(t, step.fire, s.SellTrigger(pos, in), "price %v", step.price)
	}
	assert.True(t, pos.TSLTriggered)
}

func TestSellTrigger_DynamicTSLRatchet(t *testing.T) {
	cfg := config.Default()
	cfg.TrailingStopLoss = floatPtr(-3)
	cfg.TrailingStopLossTrigger = 3
	cfg.DynamicTSL = true
	s := testStrategy(t, cfg)

	pos := &core.Position{LastAction: core.ActionBuy, LastBuyPrice: 100, LastBuyHigh: 100}

	// Margin 5 clears round(3*1.1)=3: trigger ratchets to 3 and the stop
	// percent shrinks to -3.3.
	assert.False(t, s.SellTrigger(pos, TriggerInput{Price: 105, Margin: 5}))
	assert.True(t, pos.TSLTriggered)
	assert.Equal(t, 3.0, pos.TSLTrigger)
	assert.Equal(t, -3.3, pos.TSLPcnt)
}

func TestSellTrigger_PreventLossLatch(t *testing.T) {
	cfg := config.Default()
	cfg.PreventLoss = true
	cfg.PreventLossTrigger = 2
	cfg.PreventLossMargin = 1
	s := testStrategy(t, cfg)

	pos := &core.Position{LastAction: core.ActionBuy, LastBuyPrice: 100}

	assert.False(t, s.SellTrigger(pos, TriggerInput{Margin: 1}))
	assert.False(t, pos.PreventLoss)

	assert.False(t, s.SellTrigger(pos, TriggerInput{Margin: 3}))
	assert.True(t, pos.PreventLoss)

	assert.False(t, s.SellTrigger(pos, TriggerInput{Margin: 2}))
	assert.True(t, s.SellTrigger(pos, TriggerInput{Margin: 1}))
}

func TestSellTrigger_PreventLossOverridesNoSellAtLoss(t *testing.T) {
	cfg := config.Default()
	cfg.SellAtLoss = false
	cfg.PreventLoss = true
	cfg.PreventLossTrigger = 0 // margin set point only
	cfg.PreventLossMargin = 0.5
	s := testStrategy(t, cfg)

	pos := &core.Position{LastAction: core.ActionBuy}
	assert.True(t, s.SellTrigger(pos, TriggerInput{Margin: -0.5}))
}

func TestSellTrigger_NoSellAtLoss(t *testing.T) {
	cfg := config.Default()
	cfg.SellAtLoss = false
	cfg.SellLowerPcnt = floatPtr(-2)
	s := testStrategy(t, cfg)

	// Even a breached lower failsafe is suppressed at a loss.
	assert.False(t, s.SellTrigger(&core.Position{}, TriggerInput{Margin: -5}))
}

func TestSellTrigger_NoSellBounds(t *testing.T) {
	cfg := config.Default()
	cfg.NoSellMinPcnt = floatPtr(5)
	cfg.NoSellMaxPcnt = floatPtr(10)
	cfg.SellUpperPcnt = floatPtr(5)
	s := testStrategy(t, cfg)

	// Margin 6 sits inside the no-sell band, suppressing the profit bank.
	assert.False(t, s.SellTrigger(&core.Position{}, TriggerInput{Margin: 6}))
	// Outside the band the profit bank fires.
	assert.True(t, s.SellTrigger(&core.Position{}, TriggerInput{Margin: 11}))
}

func TestSellTrigger_LossFailsafeLowerPcnt(t *testing.T) {
	cfg := config.Default()
	cfg.SellLowerPcnt = floatPtr(-2)
	s := testStrategy(t, cfg)

	assert.True(t, s.SellTrigger(&core.Position{}, TriggerInput{Margin: -3}))
	assert.False(t, s.SellTrigger(&core.Position{}, TriggerInput{Margin: -1}))

	cfg.DisableFailsafeLowerPcnt = true
	assert.False(t, s.SellTrigger(&core.Position{}, TriggerInput{Margin: -3}))
}

func TestSellTrigger_FibonacciFloor(t *testing.T) {
	cfg := config.Default()
	s := testStrategy(t, cfg)

	pos := &core.Position{FibLow: 95}
	assert.True(t, s.SellTrigger(pos, TriggerInput{Price: 94, Margin: -1}))
	assert.False(t, s.SellTrigger(pos, TriggerInput{Price: 96, Margin: -1}))

	// An explicit lower percent failsafe takes the fibonacci floor out of
	// the chain.
	cfg.SellLowerPcnt = floatPtr(-50)
	assert.False(t, s.SellTrigger(pos, TriggerInput{Price: 94, Margin: -1}))
}

func TestSellTrigger_SellAtResistance(t *testing.T) {
	cfg := config.Default()
	cfg.SellAtResistance = true
	s := testStrategy(t, cfg)

	in := TriggerInput{Price: 110, PriceExit: 108, Margin: 10}
	assert.True(t, s.SellTrigger(&core.Position{}, in))

	// Requires at least 2% margin.
	in.Margin = 1.5
	assert.False(t, s.SellTrigger(&core.Position{}, in))

	// Price still below the exit level.
	in = TriggerInput{Price: 106, PriceExit: 108, Margin: 10}
	assert.False(t, s.SellTrigger(&core.Position{}, in))
}

func TestWaitTrigger(t *testing.T) {
	cfg := config.Default()
	s := testStrategy(t, cfg)

	// Bear market buy in bull-only mode is parked.
	pos := &core.Position{Action: core.ActionBuy}
	assert.True(t, s.WaitTrigger(pos, 0, false))
	assert.False(t, s.WaitTrigger(pos, 0, true))

	// Sell at a loss is parked when sellatloss is off.
	cfg.SellAtLoss = false
	pos = &core.Position{Action: core.ActionSell}
	assert.True(t, s.WaitTrigger(pos, -1, true))
	cfg.SellAtLoss = true
	assert.False(t, s.WaitTrigger(pos, -1, true))

	// Sell inside the no-sell band is parked.
	cfg.NoSellMinPcnt = floatPtr(5)
	cfg.NoSellMaxPcnt = floatPtr(10)
	assert.True(t, s.WaitTrigger(pos, 7, true))
	assert.False(t, s.WaitTrigger(pos, 12, true))
}

func TestWaitTrigger_PreventLossWinsOverWait(t *testing.T) {
	cfg := config.Default()
	cfg.SellAtLoss = false
	cfg.PreventLoss = true
	cfg.PreventLossTrigger = 2
	cfg.PreventLossMargin = 1
	s := testStrategy(t, cfg)

	pos := &core.Position{Action: core.ActionSell, PreventLoss: true}
	assert.False(t, s.WaitTrigger(pos, 0.5, true))
}
