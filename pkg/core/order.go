package core

import (
	"slices"
	"time"
)

// ActionType is the decision produced by the strategy for a candle.
type ActionType string

const (
	ActionBuy      ActionType = "BUY"
	ActionSell     ActionType = "SELL"
	ActionWait     ActionType = "WAIT"
	ActionWaitBuy  ActionType = "WAIT_BUY"
	ActionWaitSell ActionType = "WAIT_SELL"
	ActionNone     ActionType = ""
)

// OrderStatus is the normalized order state. Each exchange adapter maps its
// native vocabulary into this set.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusDone     OrderStatus = "done"
	OrderStatusActive   OrderStatus = "active"
	OrderStatusCanceled OrderStatus = "canceled"
)

// Order is a normalized exchange order. Size is denominated in quote
// currency for buys and base currency for sells, matching how market
// orders are placed.
type Order struct {
	ID        int64       `db:"id" json:"id" gorm:"primaryKey,autoIncrement"`
	Market    string      `db:"market" json:"market"`
	Action    ActionType  `db:"action" json:"action"`
	Status    OrderStatus `db:"status" json:"status"`
	Price     float64     `db:"price" json:"price"`
	Size      float64     `db:"size" json:"size"`
	Filled    float64     `db:"filled" json:"filled"`
	Fees      float64     `db:"fees" json:"fees"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// OrderFilter selects orders from storage.
type OrderFilter func(order Order) bool

// OrderStorage persists orders across restarts so the bot can recover its
// position from the latest filled buy.
type OrderStorage interface {
	CreateOrder(order *Order) error
	UpdateOrder(order *Order) error
	Orders(filters ...OrderFilter) ([]*Order, error)
}

func WithStatus(status OrderStatus) OrderFilter {
	return func(order Order) bool {
		return order.Status == status
	}
}

func WithStatusIn(status ...OrderStatus) OrderFilter {
	return func(order Order) bool {
		return slices.Contains(status, order.Status)
	}
}

func WithMarket(market string) OrderFilter {
	return func(order Order) bool {
		return order.Market == market
	}
}

func WithAction(action ActionType) OrderFilter {
	return func(order Order) bool {
		return order.Action == action
	}
}

func WithUpdateAtBeforeOrEqual(t time.Time) OrderFilter {
	return func(order Order) bool {
		return !order.UpdatedAt.After(t)
	}
}
