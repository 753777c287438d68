// Package account abstracts where trades settle: the real venue account in
// live mode, or an in-memory paper ledger for simulation and dry runs.
package account

import (
	"context"

	"github.com/candlebot/candlebot/pkg/core"
)

// Account is the settlement surface the control loop trades against. Buy
// spends quote currency, Sell disposes base currency. price is the current
// ticker; live accounts ignore it and fill at the venue's market price.
type Account interface {
	Balance(ctx context.Context, currency string) (float64, error)
	Buy(ctx context.Context, market string, quoteQuantity, price float64) (core.Order, error)
	Sell(ctx context.Context, market string, baseQuantity, price float64) (core.Order, error)
}

// Live settles orders on the venue itself.
type Live struct {
	exchange core.Exchange
}

func NewLive(exchange core.Exchange) *Live {
	return &Live{exchange: exchange}
}

func (l *Live) Balance(ctx context.Context, currency string) (float64, error) {
	return l.exchange.GetBalance(ctx, currency)
}

func (l *Live) Buy(ctx context.Context, market string, quoteQuantity, _ float64) (core.Order, error) {
	return l.exchange.MarketBuy(ctx, market, quoteQuantity)
}

func (l *Live) Sell(ctx context.Context, market string, baseQuantity, _ float64) (core.Order, error) {
	return l.exchange.MarketSell(ctx, market, baseQuantity)
}
