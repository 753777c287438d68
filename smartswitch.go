package candlebot

import (
	"context"
	"fmt"
	"time"

	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/indicator"
)

// smartSwitch arbitrates the working granularity between hourly and
// fifteen-minute candles. Both the hourly and six-hourly trend bullish
// tightens the grain to catch the move; neither bullish loosens it again.
func (b *Bot) smartSwitch(ctx context.Context, df *core.Dataframe) (bool, error) {
	if b.granularity != core.OneHour && b.granularity != core.FifteenMinutes {
		return false, nil
	}

	bull1h, err := b.trendBull(ctx, core.OneHour, df)
	if err != nil {
		return false, core.Transient(err)
	}
	bull6h, err := b.trendBull(ctx, core.SixHours, df)
	if err != nil {
		return false, core.Transient(err)
	}

	switch {
	case b.granularity == core.OneHour && bull1h && bull6h:
		b.log.Infof("smart switch %s -> %s: 1h and 6h trending up", b.granularity, core.FifteenMinutes)
		b.notify(fmt.Sprintf("Smart switch to %s candles on %s.", core.FifteenMinutes, b.cfg.Market))
		b.granularity = core.FifteenMinutes
		return true, nil

	case b.granularity == core.FifteenMinutes && !bull1h && !bull6h:
		b.log.Infof("smart switch %s -> %s: trend faded", b.granularity, core.OneHour)
		b.notify(fmt.Sprintf("Smart switch back to %s candles on %s.", core.OneHour, b.cfg.Market))
		b.granularity = core.OneHour
		return true, nil
	}

	return false, nil
}

// trendBull reports whether EMA12 is above EMA26 on the newest candle of
// granularity g. The tick's own frame is reused when it already carries
// that view, saving one venue round trip.
func (b *Bot) trendBull(ctx context.Context, g core.Granularity, df *core.Dataframe) (bool, error) {
	if df != nil && df.Granularity == g && df.Len() > 0 {
		return df.Metric("ema12") > df.Metric("ema26"), nil
	}

	candles, err := b.exchange.GetHistoricalData(ctx, b.cfg.Market, g, time.Time{}, time.Time{})
	if err != nil {
		return false, fmt.Errorf("fetch %s candles: %w", g, err)
	}

	frame := core.NewDataframe(b.cfg.Market, g, candles)
	if err := indicator.AddEMA(frame, 12); err != nil {
		return false, err
	}
	if err := indicator.AddEMA(frame, 26); err != nil {
		return false, err
	}
	return frame.Metric("ema12") > frame.Metric("ema26"), nil
}
