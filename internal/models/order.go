package models

import "time"

type OrderType string
type OrderSide string
type OrderStatus string

const (
	OrderTypeMarket  OrderType = "market"
	OrderTypeTrigger OrderType = "trigger"

	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"

	OrderStatusPlaced   OrderStatus = "placed"
	OrderStatusRejected OrderStatus = "rejected"
)

// SizedOrder is a fully computed order ready for submission. Derived from
// a Signal plus fresh balance/price data, never persisted as-is.
type SizedOrder struct {
	Pair         string    `json:"pair"`
	Side         OrderSide `json:"side"`
	Type         OrderType `json:"type"`
	Size         float64   `json:"size"`
	TriggerPrice float64   `json:"trigger_price,omitempty"`
	ReduceOnly   bool      `json:"reduce_only"`
	ClientOID    string    `json:"client_oid"`
}

// PlacedOrder is the venue's acknowledgment of a submitted order.
type PlacedOrder struct {
	OrderID      string      `json:"order_id" db:"order_id"`
	ClientOID    string      `json:"client_oid" db:"client_oid"`
	Pair         string      `json:"pair" db:"pair"`
	Side         OrderSide   `json:"side" db:"side"`
	Type         OrderType   `json:"type" db:"type"`
	Size         float64     `json:"size" db:"size"`
	TriggerPrice float64     `json:"trigger_price" db:"trigger_price"`
	ReduceOnly   bool        `json:"reduce_only" db:"reduce_only"`
	Status       OrderStatus `json:"status" db:"status"`
	Timestamp    time.Time   `json:"timestamp" db:"timestamp"`
}

// OrderPreview is what a dry-run signal produces instead of a network
// call: the exact request the client would have signed and sent.
type OrderPreview struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// ClosedTrade records a position exit for the journal.
type ClosedTrade struct {
	Pair       string    `json:"pair" db:"pair"`
	Side       OrderSide `json:"side" db:"side"`
	EntryPrice float64   `json:"entry_price" db:"entry_price"`
	ExitPrice  float64   `json:"exit_price" db:"exit_price"`
	Size       float64   `json:"size" db:"size"`
	PnlPct     float64   `json:"pnl_pct" db:"pnl_pct"`
	Reason     string    `json:"reason" db:"reason"`
	ClosedAt   time.Time `json:"closed_at" db:"closed_at"`
}
