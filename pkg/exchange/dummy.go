package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/candlebot/candlebot/pkg/core"
)

// DummyExchange is an in-memory venue for tests and dry runs. Candles and
// prices are scripted by the caller; market orders fill instantly at the
// current price with the taker fee applied.
type DummyExchange struct {
	mu       sync.Mutex
	market   string
	candles  []core.Candle
	price    float64
	now      time.Time
	balances map[string]float64
	orders   []core.Order
	nextID   int64
	takerFee float64
}

func NewDummy(market string) *DummyExchange {
	return &DummyExchange{
		market:   market,
		now:      time.Now().UTC(),
		balances: map[string]float64{},
		nextID:   1,
		takerFee: core.DefaultTakerFee(core.Dummy),
	}
}

func (d *DummyExchange) Name() core.ExchangeName { return core.Dummy }

func (d *DummyExchange) GetTakerFee() float64 { return d.takerFee }
func (d *DummyExchange) GetMakerFee() float64 { return d.takerFee }

// SetCandles replaces the scripted history.
func (d *DummyExchange) SetCandles(candles []core.Candle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.candles = append(d.candles[:0], candles...)
	if len(candles) > 0 {
		last := candles[len(candles)-1]
		d.price = last.Close
		d.now = last.Time
	}
}

// SetPrice scripts the next ticker value.
func (d *DummyExchange) SetPrice(price float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.price = price
}

// SetBalance scripts an account balance.
func (d *DummyExchange) SetBalance(currency string, amount float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.balances[currency] = amount
}

func (d *DummyExchange) GetHistoricalData(_ context.Context, market string, granularity core.Granularity, start, end time.Time) ([]core.Candle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]core.Candle, 0, len(d.candles))
	for _, c := range d.candles {
		if !start.IsZero() && c.Time.Before(start) {
			continue
		}
		if !end.IsZero() && c.Time.After(end) {
			continue
		}
		c.Market = market
		c.Granularity = granularity
		out = append(out, c)
	}
	return out, nil
}

func (d *DummyExchange) GetTicker(_ context.Context, _ string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.price, nil
}

func (d *DummyExchange) GetTime(_ context.Context) (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now, nil
}

func (d *DummyExchange) GetBalance(_ context.Context, currency string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.balances[currency], nil
}

func (d *DummyExchange) GetOrders(_ context.Context, market string, action core.ActionType, status core.OrderStatus) ([]core.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]core.Order, 0, len(d.orders))
	for _, o := range d.orders {
		if o.Market != market {
			continue
		}
		if action != core.ActionNone && o.Action != action {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (d *DummyExchange) MarketBuy(_ context.Context, market string, quoteQuantity float64) (core.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if quoteQuantity <= 0 {
		return core.Order{}, fmt.Errorf("%w: buy size %v", core.ErrInsufficientFunds, quoteQuantity)
	}
	if d.price <= 0 {
		return core.Order{}, fmt.Errorf("%w: no scripted price", core.ErrInvalidMarket)
	}

	m, err := ParseMarket(core.Dummy, market)
	if err != nil {
		return core.Order{}, err
	}
	if have := d.balances[m.Quote]; have < quoteQuantity {
		return core.Order{}, fmt.Errorf("%w: %v %s available, %v requested", core.ErrInsufficientFunds, have, m.Quote, quoteQuantity)
	}

	fees := quoteQuantity * d.takerFee
	filled := (quoteQuantity - fees) / d.price
	d.balances[m.Quote] -= quoteQuantity
	d.balances[m.Base] += filled

	order := d.record(market, core.ActionBuy, d.price, quoteQuantity, filled, fees)
	return order, nil
}

func (d *DummyExchange) MarketSell(_ context.Context, market string, baseQuantity float64) (core.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if baseQuantity <= 0 {
		return core.Order{}, fmt.Errorf("%w: sell size %v", core.ErrInsufficientFunds, baseQuantity)
	}
	if d.price <= 0 {
		return core.Order{}, fmt.Errorf("%w: no scripted price", core.ErrInvalidMarket)
	}

	m, err := ParseMarket(core.Dummy, market)
	if err != nil {
		return core.Order{}, err
	}
	if have := d.balances[m.Base]; have < baseQuantity {
		return core.Order{}, fmt.Errorf("%w: %v %s available, %v requested", core.ErrInsufficientFunds, have, m.Base, baseQuantity)
	}

	proceeds := baseQuantity * d.price
	fees := proceeds * d.takerFee
	d.balances[m.Base] -= baseQuantity
	d.balances[m.Quote] += proceeds - fees

	order := d.record(market, core.ActionSell, d.price, baseQuantity, baseQuantity, fees)
	return order, nil
}

func (d *DummyExchange) record(market string, action core.ActionType, price, size, filled, fees float64) core.Order {
	order := core.Order{
		ID:        d.nextID,
		Market:    market,
		Action:    action,
		Status:    core.OrderStatusDone,
		Price:     price,
		Size:      size,
		Filled:    filled,
		Fees:      fees,
		CreatedAt: d.now,
		UpdatedAt: d.now,
	}
	d.nextID++
	d.orders = append(d.orders, order)
	return order
}
