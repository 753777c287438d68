package account

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/candlebot/candlebot/pkg/core"
	"github.com/candlebot/candlebot/pkg/exchange"
	"github.com/candlebot/candlebot/pkg/logger"
)

// Simulated is a paper ledger. Fills happen instantly at the price the
// caller supplies, with the configured taker fee, so simulation and live
// share the exact same control-loop path.
type Simulated struct {
	mu sync.RWMutex

	name     core.ExchangeName
	log      logger.Logger
	takerFee float64
	counter  atomic.Int64

	balances map[string]float64
	initial  map[string]float64
	orders   []core.Order

	now time.Time
}

type SimulatedOption func(*Simulated)

// WithSimAsset seeds an opening balance.
func WithSimAsset(currency string, amount float64) SimulatedOption {
	return func(s *Simulated) {
		s.balances[currency] = amount
		s.initial[currency] = amount
	}
}

// WithSimFee overrides the default taker fee for the venue.
func WithSimFee(takerFee float64) SimulatedOption {
	return func(s *Simulated) { s.takerFee = takerFee }
}

func NewSimulated(name core.ExchangeName, log logger.Logger, options ...SimulatedOption) *Simulated {
	s := &Simulated{
		name:     name,
		log:      log,
		takerFee: core.DefaultTakerFee(name),
		balances: make(map[string]float64),
		initial:  make(map[string]float64),
		now:      time.Now().UTC(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// SetTime pins the ledger clock so simulated orders carry candle timestamps
// instead of wall time.
func (s *Simulated) SetTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = t
}

func (s *Simulated) Balance(_ context.Context, currency string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[currency], nil
}

func (s *Simulated) Buy(_ context.Context, market string, quoteQuantity, price float64) (core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quoteQuantity <= 0 {
		return core.Order{}, fmt.Errorf("%w: buy size %v", core.ErrInsufficientFunds, quoteQuantity)
	}
	if price <= 0 {
		return core.Order{}, fmt.Errorf("%w: price %v", core.ErrUnsuitablePrice, price)
	}

	m, err := exchange.ParseMarket(s.name, market)
	if err != nil {
		return core.Order{}, err
	}
	if have := s.balances[m.Quote]; have < quoteQuantity {
		return core.Order{}, fmt.Errorf("%w: %v %s available, %v requested", core.ErrInsufficientFunds, have, m.Quote, quoteQuantity)
	}

	fees := quoteQuantity * s.takerFee
	filled := (quoteQuantity - fees) / price
	s.balances[m.Quote] -= quoteQuantity
	s.balances[m.Base] += filled

	order := s.record(market, core.ActionBuy, price, quoteQuantity, filled, fees)
	s.log.Debugf("paper buy %s: %v %s -> %v %s at %v", market, quoteQuantity, m.Quote, filled, m.Base, price)
	return order, nil
}

func (s *Simulated) Sell(_ context.Context, market string, baseQuantity, price float64) (core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if baseQuantity <= 0 {
		return core.Order{}, fmt.Errorf("%w: sell size %v", core.ErrInsufficientFunds, baseQuantity)
	}
	if price <= 0 {
		return core.Order{}, fmt.Errorf("%w: price %v", core.ErrUnsuitablePrice, price)
	}

	m, err := exchange.ParseMarket(s.name, market)
	if err != nil {
		return core.Order{}, err
	}
	if have := s.balances[m.Base]; have < baseQuantity {
		return core.Order{}, fmt.Errorf("%w: %v %s available, %v requested", core.ErrInsufficientFunds, have, m.Base, baseQuantity)
	}

	proceeds := baseQuantity * price
	fees := proceeds * s.takerFee
	s.balances[m.Base] -= baseQuantity
	s.balances[m.Quote] += proceeds - fees

	order := s.record(market, core.ActionSell, price, baseQuantity, baseQuantity, fees)
	s.log.Debugf("paper sell %s: %v %s -> %v %s at %v", market, baseQuantity, m.Base, proceeds-fees, m.Quote, price)
	return order, nil
}

func (s *Simulated) record(market string, action core.ActionType, price, size, filled, fees float64) core.Order {
	order := core.Order{
		ID:        s.counter.Add(1),
		Market:    market,
		Action:    action,
		Status:    core.OrderStatusDone,
		Price:     price,
		Size:      size,
		Filled:    filled,
		Fees:      fees,
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}
	s.orders = append(s.orders, order)
	return order
}

// Orders returns the fill history, oldest first.
func (s *Simulated) Orders() []core.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

// Equity values the whole ledger in quote currency at the given base price.
func (s *Simulated) Equity(base, quote string, price float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[quote] + s.balances[base]*price
}

// InitialBalance reports the seeded amount for a currency.
func (s *Simulated) InitialBalance(currency string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initial[currency]
}
