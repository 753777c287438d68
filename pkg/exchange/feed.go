package exchange

import (
	"fmt"
	"sync"

	"github.com/StudioSol/set"

	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/logger"
)

// CandleConsumer receives every candle published on a feed.
type CandleConsumer func(core.Candle)

type subscription struct {
	onCandleClose bool
	consumer      CandleConsumer
}

// Feed fans candles out to subscribers keyed by market and granularity. The
// bot publishes from its control loop; trackers, notifiers and plots
// subscribe without touching the trading path.
type Feed struct {
	log           logger.Logger
	keys          *set.LinkedHashSetString
	subscriptions map[string][]subscription
	mu            sync.RWMutex
}

func NewFeed(log logger.Logger) *Feed {
	return &Feed{
		log:           log,
		keys:          set.NewLinkedHashSetString(),
		subscriptions: make(map[string][]subscription),
	}
}

func feedKey(market string, granularity core.Granularity) string {
	return fmt.Sprintf("%s--%s", market, granularity)
}

// Subscribe registers a consumer. With onCandleClose set, the consumer only
// sees complete candles.
func (f *Feed) Subscribe(market string, granularity core.Granularity, consumer CandleConsumer, onCandleClose bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := feedKey(market, granularity)
	f.keys.Add(key)
	f.subscriptions[key] = append(f.subscriptions[key], subscription{
		onCandleClose: onCandleClose,
		consumer:      consumer,
	})
}

// Preload replays historical candles to the subscribers, complete candles
// only.
func (f *Feed) Preload(market string, granularity core.Granularity, candles []core.Candle) {
	f.mu.RLock()
	subs := f.subscriptions[feedKey(market, granularity)]
	f.mu.RUnlock()

	if len(subs) == 0 {
		return
	}
	f.log.Debugf("preloading %d candles for %s %s", len(candles), market, granularity)

	for _, candle := range candles {
		if !candle.Complete {
			continue
		}
		for _, sub := range subs {
			sub.consumer(candle)
		}
	}
}

// Publish delivers one candle to the subscribers, in subscription order.
func (f *Feed) Publish(candle core.Candle) {
	f.mu.RLock()
	subs := f.subscriptions[feedKey(candle.Market, candle.Granularity)]
	f.mu.RUnlock()

	for _, sub := range subs {
		if sub.onCandleClose && !candle.Complete {
			continue
		}
		sub.consumer(candle)
	}
}

// Markets lists the subscribed feed keys in subscription order.
func (f *Feed) Markets() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, f.keys.Length())
	for key := range f.keys.Iter() {
		out = append(out, key)
	}
	return out
}
