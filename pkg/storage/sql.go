package storage

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/candlebot/candlebot/pkg/core"
)

// SQLStorage keeps orders in a relational database through GORM. The
// dialector is injected so deployments pick sqlite, postgres or mysql
// without this package knowing.
type SQLStorage struct {
	db *gorm.DB
}

func FromSQL(dialect gorm.Dialector, opts ...gorm.Option) (*SQLStorage, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&core.Order{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLStorage{db: db}, nil
}

func (s *SQLStorage) CreateOrder(order *core.Order) error {
	if result := s.db.Create(order); result.Error != nil {
		return fmt.Errorf("create order: %w", result.Error)
	}
	return nil
}

func (s *SQLStorage) UpdateOrder(order *core.Order) error {
	var existing core.Order
	if result := s.db.First(&existing, order.ID); result.Error != nil {
		return fmt.Errorf("order %d not found: %w", order.ID, result.Error)
	}

	if result := s.db.Save(order); result.Error != nil {
		return fmt.Errorf("update order: %w", result.Error)
	}
	return nil
}

// Orders fetches all rows and filters in memory, keeping filter semantics
// identical to the BuntDB store.
func (s *SQLStorage) Orders(filters ...core.OrderFilter) ([]*core.Order, error) {
	var orders []*core.Order
	if result := s.db.Order("updated_at").Find(&orders); result.Error != nil && result.Error != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("fetch orders: %w", result.Error)
	}

	return lo.Filter(orders, func(order *core.Order, _ int) bool {
		for _, filter := range filters {
			if !filter(*order) {
				return false
			}
		}
		return true
	}), nil
}

func (s *SQLStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("database instance: %w", err)
	}
	return sqlDB.Close()
}
