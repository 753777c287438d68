package candlebot

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/indicator"
	"github.com/candlebot/candlebot/pkg/notification"
	"github.com/candlebot/candlebot/pkg/scheduler"
	"github.com/candlebot/candlebot/pkg/storage"
	"github.com/candlebot/candlebot/pkg/strategy"
)

// minTradePrice guards against markets quoted so low that size math loses
// all precision.
const minTradePrice = 0.0001

// tick is the control loop body: fetch candles, decorate, decide, settle,
// persist, reschedule. It runs as a scheduler job so it never overlaps with
// itself.
func (b *Bot) tick(ctx context.Context) error {
	cfg := b.cfg

	if b.sim == nil {
		if _, err := b.exchange.GetTime(ctx); err != nil {
			return core.Transient(fmt.Errorf("exchange unreachable: %w", err))
		}
	}

	b.pos.Iterations++

	df, err := b.currentFrame(ctx)
	if err != nil {
		return err
	}

	if b.sim == nil && bool(cfg.SmartSwitch) {
		switched, err := b.smartSwitch(ctx, df)
		if err != nil {
			return err
		}
		if switched {
			b.sched.Schedule("tick", scheduler.SmartSwitchDelay, b.tick)
			return nil
		}
	}

	if err := b.checkFrameLength(df); err != nil {
		return err
	}

	price, err := b.currentPrice(ctx, df)
	if err != nil {
		return err
	}
	if price < minTradePrice {
		return fmt.Errorf("%w: %v %s", core.ErrUnsuitablePrice, price, cfg.Market)
	}

	if b.paper != nil {
		b.paper.SetTime(df.LastTime())
	}

	if b.pos.OpenPosition() && price > b.pos.LastBuyHigh {
		b.pos.LastBuyHigh = price
	}

	var margin core.MarginResult
	if b.pos.OpenPosition() {
		margin = core.CalculateMargin(
			b.pos.LastBuySize, b.pos.LastBuyFilled, b.pos.LastBuyFee,
			cfg.SellPercent, price, b.exchange.GetTakerFee())
	}

	action, immediate := b.resolveAction(df, price, margin)

	if b.sim == nil {
		action, immediate = b.applyManualOverrides(action, immediate)
	}

	// A pending signal sell drops to five-minute candles so the exit is
	// tracked at a finer grain. Trigger fires sell right away instead.
	if b.sim == nil && bool(cfg.SellSmartSwitch) &&
		action == core.ActionSell && !immediate && b.granularity != core.FiveMinutes {
		b.log.Infof("sell pending, switching granularity %s -> %s", b.granularity, core.FiveMinutes)
		b.granularity = core.FiveMinutes
		b.sched.Schedule("tick", scheduler.SmartSwitchDelay, b.tick)
		return nil
	}

	// The newest row is only acted on once; trailing confirmations and
	// trigger fires bypass the dedupe because they track live price, not
	// candle closes.
	stale := !df.LastTime().After(b.pos.LastDFIndex)
	if stale && !immediate {
		b.log.Debugf("row %s already processed, holding", df.LastTime().Format(timeLayout))
		action = core.ActionWait
	}

	switch action {
	case core.ActionBuy:
		err = b.executeBuy(ctx, df, price)
	case core.ActionSell:
		err = b.executeSell(ctx, df, price)
	}
	if err != nil {
		return err
	}

	b.pos.LastDFIndex = df.LastTime()

	if b.sim == nil {
		b.writeControlSnapshot(price, margin, action)
	}

	return b.scheduleNext()
}

// currentFrame returns the decorated frame for this tick: a fresh fetch in
// live mode, a growing slice of the preloaded history in simulation.
func (b *Bot) currentFrame(ctx context.Context) (*core.Dataframe, error) {
	if b.sim != nil {
		return frameThrough(b.sim.frame, b.pos.Iterations), nil
	}

	candles, err := b.exchange.GetHistoricalData(ctx, b.cfg.Market, b.granularity, time.Time{}, time.Time{})
	if err != nil {
		return nil, core.Transient(fmt.Errorf("fetch candles: %w", err))
	}
	if len(candles) == 0 {
		return nil, core.Transient(fmt.Errorf("%w: no candles for %s %s", core.ErrInsufficientData, b.cfg.Market, b.granularity))
	}

	df := core.NewDataframe(b.cfg.Market, b.granularity, candles)
	if err := indicator.AddAll(df); err != nil {
		return nil, err
	}
	if custom := b.strategy.Custom(); custom != nil {
		custom.Decorate(df)
	}

	b.feed.Publish(candles[len(candles)-1])
	return df, nil
}

// checkFrameLength enforces the minimum history the indicator stack needs.
// Binance serves at most 250 daily candles for young listings, so the daily
// granularity gets a lower bound there.
func (b *Bot) checkFrameLength(df *core.Dataframe) error {
	need := 300
	if b.cfg.Exchange == core.Binance && b.granularity == core.OneDay {
		need = 250
	}

	if b.sim != nil {
		// Early simulation iterations replay a short window on purpose;
		// only the full history has to clear the bar.
		if b.sim.frame.Len() < need {
			return fmt.Errorf("%w: %d candles, need %d", core.ErrInsufficientData, b.sim.frame.Len(), need)
		}
		return nil
	}

	if df.Len() < need {
		return core.Transient(fmt.Errorf("%w: %d candles, need %d", core.ErrInsufficientData, df.Len(), need))
	}
	return nil
}

func (b *Bot) currentPrice(ctx context.Context, df *core.Dataframe) (float64, error) {
	if b.sim != nil {
		return df.Close.Last(0), nil
	}
	price, err := b.exchange.GetTicker(ctx, b.cfg.Market)
	if err != nil {
		return 0, core.Transient(fmt.Errorf("fetch ticker: %w", err))
	}
	return price, nil
}

// resolveAction runs the strategy pipeline for one tick: raw signal, exit
// trigger chain, wait trigger, then the trailing confirmation machines.
func (b *Bot) resolveAction(df *core.Dataframe, price float64, margin core.MarginResult) (core.ActionType, bool) {
	action := b.strategy.Action(df, &b.pos, price)
	immediate := false

	if b.pos.OpenPosition() {
		fired := b.strategy.SellTrigger(&b.pos, strategy.TriggerInput{
			Price:          price,
			PriceExit:      b.pos.FibHigh,
			Margin:         margin.Margin,
			ChangePcntHigh: b.pos.ChangePcntFromBuyHigh(price),
		})
		if fired {
			action = core.ActionSell
			immediate = true
		}
	}

	b.pos.Action = action
	if action != core.ActionWait && b.strategy.WaitTrigger(&b.pos, margin.Margin, df.Flag("goldencross")) {
		return core.ActionWait, false
	}

	switch action {
	case core.ActionBuy:
		result := b.strategy.CheckTrailingBuy(&b.pos, price)
		if result.Note != "" {
			b.log.Info(result.Note)
		}
		return result.Action, result.Immediate
	case core.ActionSell:
		if !immediate {
			if b.cfg.TrailingSellPcnt != 0 {
				b.pos.TrailingSell = true
			}
			result := b.strategy.CheckTrailingSell(&b.pos, price)
			if result.Note != "" {
				b.log.Info(result.Note)
			}
			return result.Action, result.Immediate
		}
	}

	return action, immediate
}

// applyManualOverrides folds in the Telegram control file: pause wins over
// everything, then one-shot manual buys and sells.
func (b *Bot) applyManualOverrides(action core.ActionType, immediate bool) (core.ActionType, bool) {
	if b.control.Paused() {
		if action != core.ActionWait {
			b.log.Infof("trading paused, suppressing %s", action)
		}
		return core.ActionWait, false
	}

	manual, err := b.control.ConsumeManualAction()
	if err != nil {
		b.log.WithError(err).Warn("reading manual overrides failed")
		return action, immediate
	}

	switch {
	case manual == core.ActionBuy && !b.pos.OpenPosition():
		b.log.Info("manual buy requested")
		return core.ActionBuy, true
	case manual == core.ActionSell && b.pos.OpenPosition():
		b.log.Info("manual sell requested")
		return core.ActionSell, true
	}
	return action, immediate
}

// executeBuy sizes the entry from the quote balance and settles it. Order
// rejection is logged, not fatal; the bot simply stays flat.
func (b *Bot) executeBuy(ctx context.Context, df *core.Dataframe, price float64) error {
	cfg := b.cfg

	quote, err := b.account.Balance(ctx, cfg.QuoteCurrency)
	if err != nil {
		return core.Transient(fmt.Errorf("quote balance: %w", err))
	}

	size := quote * cfg.BuyPercent / 100
	if cfg.BuyMaxSize != nil {
		size = math.Min(size, *cfg.BuyMaxSize)
	}
	if cfg.BuyMinSize != nil && size < *cfg.BuyMinSize {
		b.log.Warnf("buy size %v below minimum %v, skipping", size, *cfg.BuyMinSize)
		return nil
	}
	if size <= 0 {
		b.log.Warnf("no %s available to buy with", cfg.QuoteCurrency)
		return nil
	}

	order, err := b.account.Buy(ctx, cfg.Market, size, price)
	if err != nil {
		b.log.WithError(err).Errorf("buy of %v %s rejected", size, cfg.QuoteCurrency)
		b.notify(fmt.Sprintf("BUY of %v %s failed: %s", size, cfg.QuoteCurrency, err))
		return nil
	}

	b.pos.TrackBuy(order)
	b.pos.FibLow, b.pos.FibHigh = indicator.FibonacciBand(df.Close, order.Price)
	b.lastBuyAt = order.CreatedAt

	b.log.Infof("BUY %s: size %v filled %v at %v, fee %v",
		cfg.Market, order.Size, order.Filled, order.Price, order.Fees)
	b.notify(fmt.Sprintf("BUY %s at %v (size %v)", cfg.Market, order.Price, order.Size))

	return b.persistOrder(order, 0, 0)
}

// executeSell disposes the configured share of the base balance, realizes
// the margin and clears the position.
func (b *Bot) executeSell(ctx context.Context, df *core.Dataframe, price float64) error {
	cfg := b.cfg

	base, err := b.account.Balance(ctx, cfg.BaseCurrency)
	if err != nil {
		return core.Transient(fmt.Errorf("base balance: %w", err))
	}

	size := base * cfg.SellPercent / 100
	if size <= 0 {
		b.log.Warnf("no %s available to sell", cfg.BaseCurrency)
		return nil
	}

	order, err := b.account.Sell(ctx, cfg.Market, size, price)
	if err != nil {
		b.log.WithError(err).Errorf("sell of %v %s rejected", size, cfg.BaseCurrency)
		b.notify(fmt.Sprintf("SELL of %v %s failed: %s", size, cfg.BaseCurrency, err))
		return nil
	}

	realized := core.CalculateMargin(
		b.pos.LastBuySize, b.pos.LastBuyFilled, b.pos.LastBuyFee,
		cfg.SellPercent, order.Price, b.exchange.GetTakerFee())

	// The fill reports base quantity; the trade record carries quote sizes
	// on both legs so margins compound.
	proceeds := order.Price*order.Filled - order.Fees

	trade := storage.Trade{
		Market:    cfg.Market,
		BuyTime:   b.lastBuyAt,
		SellTime:  order.CreatedAt,
		BuyPrice:  b.pos.LastBuyPrice,
		SellPrice: order.Price,
		BuySize:   b.pos.LastBuySize,
		SellSize:  proceeds,
		Profit:    realized.Profit,
		Margin:    realized.Margin,
	}

	b.pos.TrackSell(order)
	b.pos.FibLow, b.pos.FibHigh = indicator.FibonacciBand(df.Close, order.Price)

	b.log.Infof("SELL %s: size %v at %v, margin %.2f%%, profit %v",
		cfg.Market, order.Size, order.Price, realized.Margin, core.TruncateFloat(realized.Profit, 2))
	b.notify(fmt.Sprintf("SELL %s at %v, margin %.2f%%, profit %v",
		cfg.Market, order.Price, realized.Margin, core.TruncateFloat(realized.Profit, 2)))

	if b.sim != nil {
		b.sim.recordTrade(trade)
	}
	if b.tracker != nil {
		if err := b.tracker.Record(trade); err != nil {
			b.log.WithError(err).Warn("writing tracker file failed")
		}
	}

	// Drop back to the configured granularity once the finer-grained sell
	// tracking is done.
	if b.sim == nil && bool(cfg.SellSmartSwitch) && b.granularity != cfg.Granularity {
		b.granularity = cfg.Granularity
	}

	return b.persistOrder(order, realized.Margin, realized.Profit)
}

// persistOrder records a fill in the order store, the CSV mirror and the
// aggregate trade log. Only the durable store is allowed to fail the tick.
func (b *Bot) persistOrder(order core.Order, margin, profit float64) error {
	if err := b.storage.CreateOrder(&order); err != nil {
		return fmt.Errorf("persist order: %w", err)
	}
	if b.orders != nil {
		if err := b.orders.Append(order); err != nil {
			b.log.WithError(err).Warn("writing orders file failed")
		}
	}
	if b.sim == nil {
		err := b.control.AppendTrade(notification.TradeLogEntry{
			Market:    order.Market,
			Action:    string(order.Action),
			Price:     order.Price,
			Margin:    margin,
			Profit:    profit,
			Timestamp: order.CreatedAt,
		})
		if err != nil {
			b.log.WithError(err).Warn("writing trade log failed")
		}
	}
	return nil
}

// writeControlSnapshot publishes tick diagnostics for the Telegram bot.
// Failures never reach the trading path.
func (b *Bot) writeControlSnapshot(price float64, margin core.MarginResult, action core.ActionType) {
	snap, err := b.control.Snapshot()
	if err != nil {
		b.log.WithError(err).Warn("reading control file failed")
		return
	}

	snap.Exchange = b.cfg.Exchange
	snap.Market = b.cfg.Market
	snap.Price = price
	snap.Margin = margin.Margin
	snap.Profit = margin.Profit
	snap.Action = action
	snap.LastAction = b.pos.LastAction
	snap.TSLTriggered = b.pos.TSLTriggered
	snap.UpdatedAt = time.Now().UTC()
	if snap.BotControl.Started.IsZero() {
		snap.BotControl.Started = b.startedAt
	}

	if err := b.control.WriteSnapshot(snap); err != nil {
		b.log.WithError(err).Warn("writing control file failed")
	}
}

// scheduleNext requeues the loop: immediately in fast simulation, after a
// beat in slow simulation, on the venue cadence in live mode. A drained
// simulation stops rescheduling so the run can finish.
func (b *Bot) scheduleNext() error {
	if b.sim != nil {
		b.sim.step()
		if b.pos.Iterations >= b.sim.frame.Len() {
			return nil
		}
		delay := time.Duration(0)
		if b.simSlow() {
			delay = scheduler.SimSlowTickDelay
		}
		b.sched.Schedule("tick", delay, b.tick)
		return nil
	}

	b.sched.Schedule("tick", scheduler.LiveTickDelay, b.tick)
	return nil
}

// frameThrough is a window over the first n rows of df, sharing the
// underlying column storage. The simulation replays history through it.
func frameThrough(df *core.Dataframe, n int) *core.Dataframe {
	if n >= df.Len() {
		return df
	}

	window := &core.Dataframe{
		Market:      df.Market,
		Granularity: df.Granularity,
		Open:        df.Open[:n],
		High:        df.High[:n],
		Low:         df.Low[:n],
		Close:       df.Close[:n],
		Volume:      df.Volume[:n],
		Time:        df.Time[:n],
		Metadata:    make(map[string]core.Series[float64], len(df.Metadata)),
		Flags:       make(map[string][]bool, len(df.Flags)),
	}
	for key, col := range df.Metadata {
		window.Metadata[key] = col[:n]
	}
	for key, col := range df.Flags {
		window.Flags[key] = col[:n]
	}
	return window
}
