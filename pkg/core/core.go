package core

import (
	"context"
	"time"
)

// ExchangeName identifies a supported venue.
type ExchangeName string

const (
	CoinbasePro ExchangeName = "coinbasepro"
	Binance     ExchangeName = "binance"
	Kucoin      ExchangeName = "kucoin"
	Dummy       ExchangeName = "dummy"
)

// DefaultTakerFee is the fee assumed in simulation when the venue cannot be
// asked for the real one.
func DefaultTakerFee(name ExchangeName) float64 {
	switch name {
	case Binance:
		return 0.001
	case Kucoin:
		return 0.0015
	default:
		return 0.005
	}
}

// Exchange is the venue surface the bot consumes. Historical candles are
// returned oldest first; start/end may be zero to request the newest
// window the venue allows.
type Exchange interface {
	Name() ExchangeName

	GetHistoricalData(ctx context.Context, market string, granularity Granularity, start, end time.Time) ([]Candle, error)
	GetTicker(ctx context.Context, market string) (float64, error)
	GetTime(ctx context.Context) (time.Time, error)
	GetBalance(ctx context.Context, currency string) (float64, error)
	GetOrders(ctx context.Context, market string, action ActionType, status OrderStatus) ([]Order, error)

	GetTakerFee() float64
	GetMakerFee() float64

	MarketBuy(ctx context.Context, market string, quoteQuantity float64) (Order, error)
	MarketSell(ctx context.Context, market string, baseQuantity float64) (Order, error)
}

// Notifier delivers one-way event text to an external channel. Failures
// must never propagate into the trading path.
type Notifier interface {
	Notify(message string)
}

type NotifierWithStart interface {
	Notifier
	Start()
}
