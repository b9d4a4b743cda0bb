package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// Paper fill economics, per contract.
const (
	paperCommissionPerContract = 0.65
	paperFeesPerContract       = 0.02
	paperSlippagePct           = 0.1 // max slippage, percent of market price
)

// PaperAdapter simulates fills in process: market orders fill immediately
// with slippage applied in the side-adverse direction, limit buys below
// the market rest as SUBMITTED. Seeding the RNG makes every fill
// deterministic, which the tests rely on.
type PaperAdapter struct {
	mu     sync.Mutex
	rng    *rand.Rand
	orders map[string]*restingOrder // brokerOrderID -> resting state
	fills  map[string][]TradeFill   // brokerOrderID -> fills
}

type restingOrder struct {
	req       OrderRequest
	status    types.OrderStatus
	filledQty int
	avgPrice  float64
	updatedAt time.Time
}

// NewPaperAdapter builds a paper simulator seeded from seed; the same
// seed replays the same slippage sequence.
func NewPaperAdapter(seed int64) *PaperAdapter {
	return &PaperAdapter{
		rng:    rand.New(rand.NewSource(seed)),
		orders: make(map[string]*restingOrder),
		fills:  make(map[string][]TradeFill),
	}
}

func (p *PaperAdapter) IsConfigured() bool { return true }

func (p *PaperAdapter) Capabilities() Capabilities {
	return Capabilities{Name: "paper", SupportsOptions: true, RequiresPolling: false, Paper: true}
}

// SubmitOrder fills market orders (and marketable limits) synchronously.
// marketPrice is the per-contract premium the fill is simulated around.
func (p *PaperAdapter) SubmitOrder(_ context.Context, req OrderRequest, marketPrice float64) (*OrderResult, *types.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.Quantity <= 0 {
		return &OrderResult{
			Success:         false,
			Status:          types.OrderRejected,
			RejectionReason: "quantity must be positive",
		}, nil, nil
	}
	if marketPrice <= 0 {
		return &OrderResult{
			Success:         false,
			Status:          types.OrderRejected,
			RejectionReason: "no market price available for paper fill",
		}, nil, nil
	}

	brokerOrderID := uuid.NewString()
	now := time.Now()

	// Limit buys below the market rest unfilled.
	if req.OrderType == types.OrderLimit && isBuySide(req.Side) && req.LimitPrice < marketPrice {
		p.orders[brokerOrderID] = &restingOrder{req: req, status: types.OrderSubmitted, updatedAt: now}
		return &OrderResult{
			Success:             true,
			BrokerOrderID:       brokerOrderID,
			Status:              types.OrderSubmitted,
			EstimatedFillTimeMs: 5_000,
		}, nil, nil
	}

	fillPrice := p.slip(marketPrice, isBuySide(req.Side))
	if req.OrderType == types.OrderLimit && isBuySide(req.Side) && fillPrice > req.LimitPrice {
		fillPrice = req.LimitPrice
	}

	qty := req.Quantity
	commission := decimal.NewFromFloat(paperCommissionPerContract).Mul(decimal.NewFromInt(int64(qty)))
	fees := decimal.NewFromFloat(paperFeesPerContract).Mul(decimal.NewFromInt(int64(qty)))
	premium := decimal.NewFromFloat(fillPrice).
		Mul(decimal.NewFromInt(int64(qty))).
		Mul(decimal.NewFromInt(100))
	totalCost := premium.Add(commission).Add(fees)

	trade := &types.Trade{
		ID:             uuid.NewString(),
		BrokerTradeID:  fmt.Sprintf("paper-%s", brokerOrderID[:8]),
		ExecutionPrice: fillPrice,
		Quantity:       qty,
		Commission:     commission.InexactFloat64(),
		Fees:           fees.InexactFloat64(),
		TotalCost:      totalCost.InexactFloat64(),
		ExecutedAt:     now,
	}

	p.orders[brokerOrderID] = &restingOrder{
		req:       req,
		status:    types.OrderFilled,
		filledQty: qty,
		avgPrice:  fillPrice,
		updatedAt: now,
	}
	p.fills[brokerOrderID] = []TradeFill{{
		BrokerTradeID:  trade.BrokerTradeID,
		ExecutionPrice: fillPrice,
		Quantity:       qty,
		Commission:     trade.Commission,
		Fees:           trade.Fees,
		ExecutedAt:     now,
	}}

	return &OrderResult{
		Success:        true,
		BrokerOrderID:  brokerOrderID,
		Status:         types.OrderFilled,
		FilledQuantity: qty,
		AvgFillPrice:   fillPrice,
	}, trade, nil
}

// slip applies up to paperSlippagePct of adverse slippage: buys fill at or
// above the market, sells at or below.
func (p *PaperAdapter) slip(marketPrice float64, buy bool) float64 {
	frac := p.rng.Float64() * paperSlippagePct / 100
	if buy {
		return marketPrice * (1 + frac)
	}
	return marketPrice * (1 - frac)
}

func (p *PaperAdapter) CancelOrder(_ context.Context, _, brokerOrderID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[brokerOrderID]
	if !ok {
		return false, fmt.Errorf("paper: unknown order %s", brokerOrderID)
	}
	if o.status.IsTerminal() {
		return false, nil
	}
	o.status = types.OrderCancelled
	o.updatedAt = time.Now()
	return true, nil
}

func (p *PaperAdapter) GetOrderStatus(_ context.Context, _, brokerOrderID string) (*OrderStatusResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[brokerOrderID]
	if !ok {
		return nil, fmt.Errorf("paper: unknown order %s", brokerOrderID)
	}
	return &OrderStatusResponse{
		BrokerOrderID:  brokerOrderID,
		Status:         o.status,
		FilledQuantity: o.filledQty,
		AvgFillPrice:   o.avgPrice,
		UpdatedAt:      o.updatedAt,
	}, nil
}

func (p *PaperAdapter) GetOrderFills(_ context.Context, _, brokerOrderID string) ([]TradeFill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fills[brokerOrderID], nil
}

// FillResting fills a resting limit order at its limit price, used by the
// paper-trading trigger endpoint to sweep pending orders.
func (p *PaperAdapter) FillResting(brokerOrderID string) (*OrderStatusResponse, *types.Trade, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[brokerOrderID]
	if !ok {
		return nil, nil, fmt.Errorf("paper: unknown order %s", brokerOrderID)
	}
	if o.status != types.OrderSubmitted {
		return nil, nil, fmt.Errorf("paper: order %s is %s, not resting", brokerOrderID, o.status)
	}

	now := time.Now()
	qty := o.req.Quantity
	price := o.req.LimitPrice
	commission := paperCommissionPerContract * float64(qty)
	fees := paperFeesPerContract * float64(qty)

	o.status = types.OrderFilled
	o.filledQty = qty
	o.avgPrice = price
	o.updatedAt = now

	fill := TradeFill{
		BrokerTradeID:  fmt.Sprintf("paper-%s", brokerOrderID[:8]),
		ExecutionPrice: price,
		Quantity:       qty,
		Commission:     commission,
		Fees:           fees,
		ExecutedAt:     now,
	}
	p.fills[brokerOrderID] = append(p.fills[brokerOrderID], fill)

	trade := &types.Trade{
		ID:             uuid.NewString(),
		BrokerTradeID:  fill.BrokerTradeID,
		ExecutionPrice: price,
		Quantity:       qty,
		Commission:     commission,
		Fees:           fees,
		TotalCost:      price*float64(qty)*100 + commission + fees,
		ExecutedAt:     now,
	}
	return &OrderStatusResponse{
		BrokerOrderID:  brokerOrderID,
		Status:         types.OrderFilled,
		FilledQuantity: qty,
		AvgFillPrice:   price,
		UpdatedAt:      now,
	}, trade, nil
}

// RestingOrderIDs lists broker order ids still waiting for a fill.
func (p *PaperAdapter) RestingOrderIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []string
	for id, o := range p.orders {
		if o.status == types.OrderSubmitted {
			ids = append(ids, id)
		}
	}
	return ids
}

func isBuySide(side types.OrderSide) bool {
	return side == types.SideBuy
}
