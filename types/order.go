package types

import "time"

// OrderMode routes an order to the paper simulator or a live broker.
type OrderMode string

const (
	ModePaper OrderMode = "PAPER"
	ModeLive  OrderMode = "LIVE"
)

// OrderSide is the broker-facing side of an order.
type OrderSide string

const (
	SideBuy        OrderSide = "BUY"
	SideSellToOpen OrderSide = "SELL_TO_OPEN"
	SideClose      OrderSide = "CLOSE"
)

// OrderType is the broker order type.
type OrderType string

const (
	OrderMarket    OrderType = "MARKET"
	OrderLimit     OrderType = "LIMIT"
	OrderStop      OrderType = "STOP"
	OrderStopLimit OrderType = "STOP_LIMIT"
)

// TimeInForce is the broker time-in-force.
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// OrderStatus is the lifecycle status of an Order. Terminal statuses
// (FILLED, REJECTED, CANCELLED, EXPIRED) are never mutated once reached.
type OrderStatus string

const (
	OrderPending     OrderStatus = "PENDING"
	OrderSubmitted   OrderStatus = "SUBMITTED"
	OrderAccepted    OrderStatus = "ACCEPTED"
	OrderPartialFill OrderStatus = "PARTIAL_FILL"
	OrderFilled      OrderStatus = "FILLED"
	OrderCancelled   OrderStatus = "CANCELLED"
	OrderRejected    OrderStatus = "REJECTED"
	OrderExpired     OrderStatus = "EXPIRED"
)

// IsTerminal reports whether status can never transition again.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderFilled, OrderRejected, OrderCancelled, OrderExpired:
		return true
	default:
		return false
	}
}

// Order is a broker order.
type Order struct {
	ID              string
	SignalID        string // optional, empty if not signal-originated
	Mode            OrderMode
	Side            OrderSide
	OrderType       OrderType
	TIF             TimeInForce
	Symbol          string // OCC-encoded
	Quantity        int
	LimitPrice      float64
	StopPrice       float64
	Status          OrderStatus
	BrokerOrderID   string
	FilledQuantity  int
	AvgFillPrice    float64
	RejectionReason string
	SubmittedAt     time.Time
	FilledAt        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CanTransitionTo reports whether the order can move to next: no
// transition may leave a terminal state once reached.
func (o *Order) CanTransitionTo(next OrderStatus) bool {
	return !o.Status.IsTerminal()
}

// Trade is a fill record. A Trade exists iff its Order has at least one
// fill.
type Trade struct {
	ID            string
	OrderID       string
	BrokerTradeID string
	ExecutionPrice float64
	Quantity      int
	Commission    float64
	Fees          float64
	TotalCost     float64
	ExecutedAt    time.Time
}
