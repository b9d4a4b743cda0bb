// Package broker abstracts order routing behind a single adapter
// interface with three implementations: a deterministic paper simulator,
// Tradier and Alpaca. The factory applies the dual-flag safety gate that
// decides which one a process may use.
package broker

import (
	"context"
	"time"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// OrderRequest is a broker-bound order.
type OrderRequest struct {
	OrderID    string // our id, echoed in logs and correlation
	Symbol     string // OCC-encoded option symbol
	Side       types.OrderSide
	Quantity   int
	OrderType  types.OrderType
	LimitPrice float64
	StopPrice  float64
	TIF        types.TimeInForce
}

// OrderResult is the adapter's submission outcome.
type OrderResult struct {
	Success             bool
	BrokerOrderID       string
	Status              types.OrderStatus
	FilledQuantity      int
	AvgFillPrice        float64
	RejectionReason     string
	EstimatedFillTimeMs int64 // polling hint, 0 when filled synchronously
}

// OrderStatusResponse is a point-in-time view of a broker order.
type OrderStatusResponse struct {
	BrokerOrderID  string
	Status         types.OrderStatus
	FilledQuantity int
	AvgFillPrice   float64
	UpdatedAt      time.Time
}

// TradeFill is one execution reported by the broker.
type TradeFill struct {
	BrokerTradeID  string
	ExecutionPrice float64
	Quantity       int
	Commission     float64
	Fees           float64
	ExecutedAt     time.Time
}

// Capabilities describes what an adapter can do, so callers can branch
// without type switches.
type Capabilities struct {
	Name            string
	SupportsOptions bool
	RequiresPolling bool
	Paper           bool
}

// Adapter is the broker capability set the rest of the system depends on.
type Adapter interface {
	SubmitOrder(ctx context.Context, req OrderRequest, marketPrice float64) (*OrderResult, *types.Trade, error)
	CancelOrder(ctx context.Context, orderID, brokerOrderID string) (bool, error)
	GetOrderStatus(ctx context.Context, orderID, brokerOrderID string) (*OrderStatusResponse, error)
	GetOrderFills(ctx context.Context, orderID, brokerOrderID string) ([]TradeFill, error)
	IsConfigured() bool
	Capabilities() Capabilities
}
