// Package candlebot assembles the trading daemon: one market, one
// exchange, a periodic control loop that samples candles, decorates them
// with indicators, asks the strategy for an action and settles the result
// against the configured account.
package candlebot

import (
	"context"
	"fmt"
	"time"

	"github.com/candlebot/candlebot/pkg/account"
	"github.com/candlebot/candlebot/pkg/config"
	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/exchange"
	"github.com/candlebot/candlebot/pkg/logger"
	"github.com/candlebot/candlebot/pkg/logger/zerolog"
	"github.com/candlebot/candlebot/pkg/notification"
	"github.com/candlebot/candlebot/pkg/scheduler"
	"github.com/candlebot/candlebot/pkg/storage"
	"github.com/candlebot/candlebot/pkg/strategy"
)

const (
	defaultDatabase   = "candlebot.db"
	defaultOrdersFile = "orders.csv"
	controlDir        = "telegram_data"
	timeLayout        = "2006-01-02 15:04:05"
)

// Bot is one configured trading process. All mutable trading state lives
// in pos and is only touched from scheduler jobs, which never overlap.
type Bot struct {
	cfg      *config.Config
	log      logger.Logger
	exchange core.Exchange
	account  account.Account
	strategy *strategy.Strategy
	sched    *scheduler.Scheduler
	notifier core.Notifier
	telegram core.NotifierWithStart
	storage  core.OrderStorage
	orders   *storage.OrderWriter
	tracker  *storage.Tracker
	control  *notification.ControlStore
	feed     *exchange.Feed

	pos         core.Position
	granularity core.Granularity
	startedAt   time.Time
	lastBuyAt   time.Time

	// Set when the default paper account is in use, so simulation ticks can
	// pin order timestamps to candle time.
	paper *account.Simulated
	sim   *simState
}

type Option func(*Bot)

// WithExchange overrides the venue adapter, mainly for tests.
func WithExchange(exch core.Exchange) Option {
	return func(b *Bot) { b.exchange = exch }
}

// WithAccount overrides the settlement account.
func WithAccount(acc account.Account) Option {
	return func(b *Bot) { b.account = acc }
}

// WithLogger overrides the logger built from config.
func WithLogger(log logger.Logger) Option {
	return func(b *Bot) { b.log = log }
}

// WithStorage overrides the order store. Default is a local BuntDB file.
func WithStorage(store core.OrderStorage) Option {
	return func(b *Bot) { b.storage = store }
}

// WithNotifier overrides the notifier. Default is Telegram when configured,
// otherwise a null sink.
func WithNotifier(notifier core.Notifier) Option {
	return func(b *Bot) { b.notifier = notifier }
}

// New validates cfg and wires the bot. Options replace any default
// component; nothing is connected to the network until Run.
func New(cfg *config.Config, options ...Option) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Bot{
		cfg:         cfg,
		granularity: cfg.Granularity,
		startedAt:   time.Now().UTC(),
	}

	for _, option := range options {
		option(b)
	}

	if b.log == nil {
		log, err := zerolog.New(cfg.LogLevel, timeLayout, !bool(cfg.NoColor), bool(cfg.LogJSON))
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		b.log = log
	}

	if b.exchange == nil {
		exch, err := exchange.New(cfg, b.log)
		if err != nil {
			return nil, err
		}
		b.exchange = exch
	}

	if b.account == nil {
		if cfg.Live {
			b.account = account.NewLive(b.exchange)
		} else {
			b.paper = account.NewSimulated(cfg.Exchange, b.log,
				account.WithSimAsset(cfg.QuoteCurrency, simOpeningBalance),
				account.WithSimFee(b.exchange.GetTakerFee()))
			b.account = b.paper
		}
	}

	if b.storage == nil {
		store, err := storage.FromFile(defaultDatabase)
		if err != nil {
			return nil, err
		}
		b.storage = store
	}

	control, err := notification.NewControlStore(controlDir, cfg.Market)
	if err != nil {
		return nil, err
	}
	b.control = control

	if b.notifier == nil {
		telegram, err := notification.New(cfg, control)
		if err != nil {
			return nil, err
		}
		b.telegram = telegram
		b.notifier = telegram
	}

	if cfg.Live {
		if b.orders, err = storage.NewOrderWriter(defaultOrdersFile); err != nil {
			return nil, err
		}
		if b.tracker, err = storage.NewTracker(cfg.TrackerFile); err != nil {
			return nil, err
		}
	}

	b.strategy = strategy.New(cfg, b.log)
	b.feed = exchange.NewFeed(b.log)
	b.sched = scheduler.New(b.log, scheduler.WithAutoRestart(bool(cfg.AutoRestart)))

	return b, nil
}

// Feed exposes the candle fan-out so callers can subscribe trackers or
// plots before Run.
func (b *Bot) Feed() *exchange.Feed { return b.feed }

// candleStreamer is implemented by venue adapters with a websocket candle
// stream.
type candleStreamer interface {
	StreamCandles(market string, granularity core.Granularity, out func(core.Candle)) (func(), error)
}

// startCandleStream pipes websocket candles into the feed when the venue
// supports it. The control loop keeps polling either way; the stream only
// feeds subscribers.
func (b *Bot) startCandleStream() func() {
	streamer, ok := b.exchange.(candleStreamer)
	if !ok {
		b.log.Warnf("websocket not supported on %s, candles are polled only", b.cfg.Exchange)
		return nil
	}

	stop, err := streamer.StreamCandles(b.cfg.Market, b.granularity, b.feed.Publish)
	if err != nil {
		b.log.WithError(err).Warn("candle stream unavailable, candles are polled only")
		return nil
	}
	b.log.Infof("streaming %s %s candles over websocket", b.cfg.Market, b.granularity)
	return stop
}

// Position returns a copy of the current trading state.
func (b *Bot) Position() core.Position { return b.pos }

// Run blocks until the run completes: a drained simulation, a canceled
// context, or a fatal error.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Infof("candlebot starting: %s %s on %s", b.cfg.Market, b.granularity, b.cfg.Exchange)

	if err := b.recoverPosition(ctx); err != nil {
		return err
	}

	if b.telegram != nil {
		b.telegram.Start()
	}

	if b.cfg.Sim.Enabled() {
		if err := b.prepareSimulation(ctx); err != nil {
			return err
		}
	}

	if bool(b.cfg.Live) && bool(b.cfg.WebSocket) {
		if stop := b.startCandleStream(); stop != nil {
			defer stop()
		}
	}

	b.sched.Schedule("tick", 0, b.tick)
	if err := b.sched.Run(ctx); err != nil {
		return err
	}

	if b.sim != nil {
		b.printSimSummary()
	}
	return nil
}

// recoverPosition restores the open position from the newest filled order,
// so a restart does not forget it is long. Live mode trusts the venue's own
// fill history first; paper runs and an unreachable venue fall back to the
// local store.
func (b *Bot) recoverPosition(ctx context.Context) error {
	orders, err := b.doneOrders(ctx)
	if err != nil {
		return fmt.Errorf("recover position: %w", err)
	}
	if len(orders) == 0 {
		return nil
	}

	last := orders[len(orders)-1]
	if last.Action != core.ActionBuy {
		b.pos.LastAction = last.Action
		return nil
	}

	b.pos.TrackBuy(*last)
	b.log.Infof("recovered open position: %s of %v at %v", last.Action, last.Size, last.Price)
	return nil
}

func (b *Bot) doneOrders(ctx context.Context) ([]*core.Order, error) {
	if b.cfg.Live {
		orders, err := b.exchange.GetOrders(ctx, b.cfg.Market, core.ActionNone, core.OrderStatusDone)
		if err != nil {
			b.log.WithError(err).Warn("venue order history unavailable, falling back to local storage")
		} else if len(orders) > 0 {
			out := make([]*core.Order, len(orders))
			for i := range orders {
				out[i] = &orders[i]
			}
			return out, nil
		}
	}

	return b.storage.Orders(
		core.WithMarket(b.cfg.Market),
		core.WithStatus(core.OrderStatusDone),
	)
}

// notify sends a message without ever letting delivery failures reach the
// trading path.
func (b *Bot) notify(message string) {
	if b.notifier != nil {
		b.notifier.Notify(message)
	}
}
