package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlebot/candlebot/pkg/core"
)

func testOrder(action core.ActionType, price float64, at time.Time) core.Order {
	return core.Order{
		Market:    "BTC-USD",
		Action:    action,
		Status:    core.OrderStatusDone,
		Price:     price,
		Size:      100,
		Filled:    100 / price,
		Fees:      0.5,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestBuntStorageCreateAndFilter(t *testing.T) {
	s, err := FromMemory()
	require.NoError(t, err)
	defer s.Close()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	buy := testOrder(core.ActionBuy, 100, base)
	sell := testOrder(core.ActionSell, 110, base.Add(time.Hour))

	require.NoError(t, s.CreateOrder(&buy))
	require.NoError(t, s.CreateOrder(&sell))
	assert.Equal(t, int64(1), buy.ID)
	assert.Equal(t, int64(2), sell.ID)

	all, err := s.Orders()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, core.ActionBuy, all[0].Action)

	buys, err := s.Orders(core.WithAction(core.ActionBuy), core.WithMarket("BTC-USD"))
	require.NoError(t, err)
	require.Len(t, buys, 1)
	assert.Equal(t, 100.0, buys[0].Price)

	none, err := s.Orders(core.WithStatus(core.OrderStatusOpen))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBuntStorageUpdate(t *testing.T) {
	s, err := FromMemory()
	require.NoError(t, err)
	defer s.Close()

	order := testOrder(core.ActionBuy, 100, time.Now().UTC())
	order.Status = core.OrderStatusOpen
	require.NoError(t, s.CreateOrder(&order))

	order.Status = core.OrderStatusDone
	require.NoError(t, s.UpdateOrder(&order))

	done, err := s.Orders(core.WithStatus(core.OrderStatusDone))
	require.NoError(t, err)
	require.Len(t, done, 1)

	missing := testOrder(core.ActionSell, 110, time.Now().UTC())
	missing.ID = 99
	require.Error(t, s.UpdateOrder(&missing))
}

func TestBuntStorageRestoresIDsFromFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "orders.db")

	s, err := FromFile(file)
	require.NoError(t, err)
	order := testOrder(core.ActionBuy, 100, time.Now().UTC())
	require.NoError(t, s.CreateOrder(&order))
	require.NoError(t, s.Close())

	s, err = FromFile(file)
	require.NoError(t, err)
	defer s.Close()

	next := testOrder(core.ActionSell, 110, time.Now().UTC())
	require.NoError(t, s.CreateOrder(&next))
	assert.Equal(t, int64(2), next.ID)
}

func TestOrderWriterRoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), "orders.csv")

	w, err := NewOrderWriter(file)
	require.NoError(t, err)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, w.Append(testOrder(core.ActionBuy, 100, base)))
	require.NoError(t, w.Append(testOrder(core.ActionSell, 110, base.Add(time.Hour))))

	reopened, err := NewOrderWriter(file)
	require.NoError(t, err)

	orders := reopened.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, core.ActionBuy, orders[0].Action)
	assert.Equal(t, 100.0, orders[0].Price)
	assert.Equal(t, base, orders[0].CreatedAt)
	assert.Equal(t, core.OrderStatusDone, orders[1].Status)
}

func TestTrackerRoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tracker.csv")

	tr, err := NewTracker(file)
	require.NoError(t, err)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, tr.Record(Trade{
		Market:    "BTC-USD",
		BuyTime:   base,
		SellTime:  base.Add(2 * time.Hour),
		BuyPrice:  100,
		SellPrice: 110,
		BuySize:   500,
		SellSize:  546.25,
		Profit:    46.25,
		Margin:    9.25,
	}))

	reopened, err := NewTracker(file)
	require.NoError(t, err)

	trades := reopened.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "BTC-USD", trades[0].Market)
	assert.Equal(t, 9.25, trades[0].Margin)
	assert.Equal(t, base, trades[0].BuyTime)

	require.NoError(t, reopened.Record(Trade{Market: "BTC-USD", BuyTime: base, SellTime: base}))
	assert.Len(t, reopened.Trades(), 2)
}
