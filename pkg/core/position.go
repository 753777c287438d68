package core

import "time"

// Position is the single-market trading state the control loop threads
// through every tick. Monetary fields are quote-denominated unless the name
// says otherwise.
type Position struct {
	Action     ActionType
	LastAction ActionType

	// Snapshot of the latest filled buy. LastBuyPrice > 0 exactly when
	// LastAction is BUY; only the control loop mutates these together.
	LastBuySize   float64
	LastBuyFilled float64
	LastBuyPrice  float64
	LastBuyFee    float64
	LastBuyHigh   float64

	FirstBuySize float64
	BuyCount     int
	SellCount    int
	BuySum       float64
	SellSum      float64

	// Nearest Fibonacci retracement band around the last traded price,
	// recomputed on every buy and sell.
	FibLow  float64
	FibHigh float64

	// Trailing-buy / trailing-sell confirmation state machines.
	// TrailingBuyImmediate implies TrailingBuy.
	TrailingBuy           bool
	WaitingBuyPrice       float64
	TrailingBuyImmediate  bool
	TrailingSell          bool
	WaitingSellPrice      float64
	TrailingSellImmediate bool

	// Trailing stop loss latches.
	TSLTriggered bool
	TSLPcnt      float64
	TSLTrigger   float64
	TSLMax       bool

	// Prevent-loss two-phase latch.
	PreventLoss bool

	// Timestamp of the newest dataframe row already acted on.
	LastDFIndex time.Time

	Iterations int
}

// OpenPosition reports whether the bot currently holds the base asset.
func (p *Position) OpenPosition() bool {
	return p.LastAction == ActionBuy
}

// TrackBuy records a filled buy order and arms the per-position latches.
func (p *Position) TrackBuy(order Order) {
	p.LastAction = ActionBuy
	p.LastBuySize = order.Size
	p.LastBuyFilled = order.Filled
	p.LastBuyPrice = order.Price
	p.LastBuyFee = order.Fees
	p.LastBuyHigh = order.Price

	if p.BuyCount == 0 {
		p.FirstBuySize = order.Size
	}
	p.BuyCount++
	p.BuySum += order.Size

	p.TrailingBuy = false
	p.WaitingBuyPrice = 0
	p.TrailingBuyImmediate = false
	p.TSLTriggered = false
	p.TSLPcnt = 0
	p.TSLTrigger = 0
	p.TSLMax = false
	p.PreventLoss = false
}

// TrackSell records a filled sell order and clears the position. Sell fills
// report base quantity, so the quote proceeds net of fees are accumulated,
// keeping SellSum in the same unit as BuySum.
func (p *Position) TrackSell(order Order) {
	p.LastAction = ActionSell
	p.SellCount++
	p.SellSum += order.Price*order.Filled - order.Fees

	p.LastBuySize = 0
	p.LastBuyFilled = 0
	p.LastBuyPrice = 0
	p.LastBuyFee = 0
	p.LastBuyHigh = 0

	p.TrailingSell = false
	p.WaitingSellPrice = 0
	p.TrailingSellImmediate = false
	p.TSLTriggered = false
	p.TSLPcnt = 0
	p.TSLTrigger = 0
	p.TSLMax = false
	p.PreventLoss = false
}

// ChangePcntFromBuyHigh is the percent distance of price below the high
// water mark since the last buy. Zero when no meaningful high is tracked.
func (p *Position) ChangePcntFromBuyHigh(price float64) float64 {
	if p.LastBuyHigh <= 1 {
		return 0
	}
	return (price/p.LastBuyHigh - 1) * 100
}
