// Package storage persists orders and trade history: BuntDB or SQL for the
// order book the bot recovers its position from, CSV writers for the
// orders and tracker files operators feed into spreadsheets.
package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/tidwall/buntdb"

	"github.com/candlebot/candlebot/pkg/core"
)

// BuntStorage keeps orders in a BuntDB file, one JSON value per order,
// indexed by update time.
type BuntStorage struct {
	lastID atomic.Int64
	db     *buntdb.DB
}

// FromMemory opens a throwaway in-memory order store.
func FromMemory() (*BuntStorage, error) {
	return NewBuntStorage(":memory:")
}

// FromFile opens or creates a file-backed order store.
func FromFile(file string) (*BuntStorage, error) {
	return NewBuntStorage(file)
}

func NewBuntStorage(sourceFile string) (*BuntStorage, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("open buntdb: %w", err)
	}

	if err := db.CreateIndex("update_index", "*", buntdb.IndexJSON("updated_at")); err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	s := &BuntStorage{db: db}
	if err := s.restoreLastID(); err != nil {
		return nil, err
	}
	return s, nil
}

// restoreLastID walks existing keys so IDs keep increasing across restarts.
func (b *BuntStorage) restoreLastID() error {
	return b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, _ string) bool {
			if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > b.lastID.Load() {
				b.lastID.Store(id)
			}
			return true
		})
	})
}

func (b *BuntStorage) CreateOrder(order *core.Order) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		order.ID = b.lastID.Add(1)
		content, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("marshal order: %w", err)
		}

		if _, _, err := tx.Set(strconv.FormatInt(order.ID, 10), string(content), nil); err != nil {
			return fmt.Errorf("store order: %w", err)
		}
		return nil
	})
}

func (b *BuntStorage) UpdateOrder(order *core.Order) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		id := strconv.FormatInt(order.ID, 10)
		if _, err := tx.Get(id); err != nil {
			return fmt.Errorf("order %s not found: %w", id, err)
		}

		content, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("marshal order: %w", err)
		}

		if _, _, err := tx.Set(id, string(content), nil); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return nil
	})
}

// Orders returns the stored orders that pass every filter, ordered by
// update time.
func (b *BuntStorage) Orders(filters ...core.OrderFilter) ([]*core.Order, error) {
	orders := make([]*core.Order, 0)

	err := b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("update_index", func(_, value string) bool {
			var order core.Order
			if err := json.Unmarshal([]byte(value), &order); err != nil {
				return true
			}

			for _, filter := range filters {
				if !filter(order) {
					return true
				}
			}
			orders = append(orders, &order)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func (b *BuntStorage) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
