package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderAccepted OrderStatus = "accepted"
	OrderRejected OrderStatus = "rejected"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderAccepted, OrderRejected:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == OrderAccepted || s == OrderRejected
}

type Order struct {
	ID           int64       `json:"id"`
	UserID       int64       `json:"user_id"`
	Data         OrderData   `json:"order_data"`
	TotalPrice   float64     `json:"total_price"`
	CurrencyCode string      `json:"currency_code"`
	Status       OrderStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
}

// OrderData is the checkout snapshot stored with an order. It is never
// recomputed from the live catalog.
type OrderData struct {
	Items     []OrderLine `json:"items"`
	UserID    int64       `json:"user_id"`
	Timestamp time.Time   `json:"timestamp"`
}

type OrderLine struct {
	ItemID   int64           `json:"item_id"`
	Name     string          `json:"name"`
	Size     string          `json:"size"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}
