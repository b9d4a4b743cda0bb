package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/broker"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/decision"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/metrics"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// maxStatusFailures is how many consecutive unknown-status polls an order
// survives before it is abandoned as rejected.
const maxStatusFailures = 5

// Poller reconciles outstanding live orders against the broker: it polls
// status, books fills into trades, and applies them to positions.
type Poller struct {
	m        *Manager
	failures map[string]int // orderID -> consecutive status failures
}

// NewPoller builds a poller over the manager's adapter and stores.
func NewPoller(m *Manager) *Poller {
	return &Poller{m: m, failures: make(map[string]int)}
}

// PollOnce walks every outstanding order once. Each order is handled
// independently; one broker hiccup never stalls the rest.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	outstanding, err := p.m.store.Orders().Outstanding()
	if err != nil {
		return 0, fmt.Errorf("trader: load outstanding orders: %w", err)
	}

	updated := 0
	for _, order := range outstanding {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		if p.pollOrder(ctx, order) {
			updated++
		}
	}
	return updated, nil
}

func (p *Poller) pollOrder(ctx context.Context, order *types.Order) bool {
	status, err := p.m.adapter.GetOrderStatus(ctx, order.ID, order.BrokerOrderID)
	if err != nil {
		p.failures[order.ID]++
		logger.Warnf("trader: status poll for %s failed (%d/%d): %v",
			order.ID, p.failures[order.ID], maxStatusFailures, err)
		if p.failures[order.ID] >= maxStatusFailures {
			// Abandon: the order may still exist at the broker, but we stop
			// treating it as in flight.
			if ok, terr := p.m.store.Orders().TransitionStatus(order.ID, order.Status, types.OrderRejected); terr != nil || !ok {
				logger.Errorf("trader: abandon order %s: ok=%v err=%v", order.ID, ok, terr)
			}
			delete(p.failures, order.ID)
			return true
		}
		return false
	}
	delete(p.failures, order.ID)

	if status.Status == order.Status {
		return false
	}

	switch status.Status {
	case types.OrderAccepted:
		ok, err := p.m.store.Orders().TransitionStatus(order.ID, order.Status, types.OrderAccepted)
		if err != nil || !ok {
			logger.Warnf("trader: accept transition for %s: ok=%v err=%v", order.ID, ok, err)
		}
		return ok

	case types.OrderPartialFill, types.OrderFilled:
		return p.applyFills(ctx, order, status)

	case types.OrderCancelled, types.OrderRejected, types.OrderExpired:
		ok, err := p.m.store.Orders().TransitionStatus(order.ID, order.Status, status.Status)
		if err != nil || !ok {
			logger.Warnf("trader: terminal transition for %s: ok=%v err=%v", order.ID, ok, err)
		}
		return ok
	}
	return false
}

// applyFills books new broker fills as trades and applies the aggregate
// to orders and positions. Idempotent per broker trade id.
func (p *Poller) applyFills(ctx context.Context, order *types.Order, status *broker.OrderStatusResponse) bool {
	fills, err := p.m.adapter.GetOrderFills(ctx, order.ID, order.BrokerOrderID)
	if err != nil {
		logger.Warnf("trader: fill fetch for %s failed: %v", order.ID, err)
		return false
	}

	for _, fill := range fills {
		exists, err := p.m.store.Trades().ExistsForBrokerTrade(order.ID, fill.BrokerTradeID)
		if err != nil || exists {
			continue
		}
		trade := &types.Trade{
			ID:             uuid.NewString(),
			OrderID:        order.ID,
			BrokerTradeID:  fill.BrokerTradeID,
			ExecutionPrice: fill.ExecutionPrice,
			Quantity:       fill.Quantity,
			Commission:     fill.Commission,
			Fees:           fill.Fees,
			TotalCost:      fill.ExecutionPrice*float64(fill.Quantity)*100 + fill.Commission + fill.Fees,
			ExecutedAt:     fill.ExecutedAt,
		}
		if err := p.m.store.Trades().Insert(trade); err != nil {
			logger.Warnf("trader: persist polled trade: %v", err)
		}
	}

	if err := p.m.store.Orders().MarkFilled(order.ID, status.Status, status.FilledQuantity, status.AvgFillPrice); err != nil {
		logger.Warnf("trader: record fill for %s: %v", order.ID, err)
		return false
	}
	metrics.RecordOrderFill(string(order.Mode))

	if status.Status != types.OrderFilled {
		return true
	}

	switch order.Side {
	case types.SideBuy:
		if err := p.openFromFilledOrder(order, status); err != nil {
			logger.Errorf("trader: open position from polled fill %s: %v", order.ID, err)
		}
	case types.SideClose:
		if err := p.closeFromFilledOrder(order, status); err != nil {
			logger.Errorf("trader: close position from polled fill %s: %v", order.ID, err)
		}
	}
	return true
}

func (p *Poller) openFromFilledOrder(order *types.Order, status *broker.OrderStatusResponse) error {
	decoded, err := types.DecodeOCC(order.Symbol)
	if err != nil {
		return fmt.Errorf("decode option symbol %q: %w", order.Symbol, err)
	}

	sig := &types.Signal{
		Symbol:     decoded.Underlying,
		Strike:     decoded.Strike,
		Expiration: decoded.Expiration.Format("2006-01-02"),
		OptionType: decoded.OptionType,
	}
	return p.m.openPositionRecord(sig, order.Symbol, status.FilledQuantity, status.AvgFillPrice)
}

func (p *Poller) closeFromFilledOrder(order *types.Order, status *broker.OrderStatusResponse) error {
	open, err := p.m.store.Positions().Open()
	if err != nil {
		return err
	}
	for _, pos := range open {
		if pos.Symbol == order.Symbol {
			return p.m.applyCloseFill(pos, decision.ExitClosePartial, status.FilledQuantity, status.AvgFillPrice)
		}
	}
	return fmt.Errorf("no open position for %s", order.Symbol)
}

// NextInterval adapts the polling cadence to the fastest estimated fill
// among outstanding orders, bounded by [1s, configured interval].
func (p *Poller) NextInterval() time.Duration {
	base := p.m.cfg.FillPollInterval

	p.m.mu.Lock()
	defer p.m.mu.Unlock()

	fastest := base
	for _, hintMs := range p.m.fillHints {
		hint := time.Duration(hintMs) * time.Millisecond
		if hint < fastest {
			fastest = hint
		}
	}
	if fastest < time.Second {
		fastest = time.Second
	}
	return fastest
}
