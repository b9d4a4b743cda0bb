// Package trader runs the execution side of the system: it assembles
// decision inputs for the pipeline, routes orders through the broker
// adapter, and owns the background loops that refresh open positions,
// auto-close them when exit rules fire, and poll live brokers for fills.
package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/broker"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/config"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/decision"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/market"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/metrics"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/regime"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/scoring"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/store"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/validate"
)

// autoCloseSpacing is the minimum gap between consecutive auto-close
// orders, so a burst of exits never hammers the broker.
const autoCloseSpacing = 500 * time.Millisecond

// ExitSignal is one pending or executed auto-close, surfaced on the
// read-only API.
type ExitSignal struct {
	PositionID string    `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"`
	Trigger    string    `json:"trigger"`
	Urgency    string    `json:"urgency"`
	Quantity   int       `json:"quantity"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// Manager owns order execution and the position lifecycle.
type Manager struct {
	cfg      *config.Config
	store    *store.Store
	provider market.Provider
	adapter  broker.Adapter
	safety   broker.SafetyResult
	orch     *decision.Orchestrator
	tracker  *regime.Tracker
	queue    *validate.SignalQueue

	refreshMu sync.Mutex // at most one refresh cycle per process

	mu           sync.Mutex
	exitSignals  []ExitSignal
	fillHints    map[string]int64 // orderID -> estimated_fill_time_ms
	lastActivity time.Time
}

// NewManager wires the manager from process-lifetime resources.
func NewManager(cfg *config.Config, st *store.Store, provider market.Provider,
	adapter broker.Adapter, safety broker.SafetyResult,
	orch *decision.Orchestrator, tracker *regime.Tracker, queue *validate.SignalQueue) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     st,
		provider:  provider,
		adapter:   adapter,
		safety:    safety,
		orch:      orch,
		tracker:   tracker,
		queue:     queue,
		fillHints: make(map[string]int64),
	}
}

// Safety reports the safety-gate outcome the manager was built with.
func (m *Manager) Safety() broker.SafetyResult { return m.safety }

// LastActivity reports when the manager last touched an order or refresh.
func (m *Manager) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

func (m *Manager) touch() {
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

// ExitSignals returns the newest auto-close evaluations, most recent
// first.
func (m *Manager) ExitSignals() []ExitSignal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExitSignal, len(m.exitSignals))
	copy(out, m.exitSignals)
	return out
}

func (m *Manager) recordExitSignal(es ExitSignal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitSignals = append([]ExitSignal{es}, m.exitSignals...)
	if len(m.exitSignals) > 100 {
		m.exitSignals = m.exitSignals[:100]
	}
}

// DecideEntry assembles the market inputs for a validated signal and runs
// the entry orchestration. Advisory data that fails to load is skipped,
// never fatal.
func (m *Manager) DecideEntry(ctx context.Context, sig *types.Signal) (*decision.IntegratedDecision, error) {
	now := time.Now()

	if sig.Action == types.ActionClose {
		return m.closeFromSignal(ctx, sig, now)
	}

	scores, err := m.collectScores(sig)
	if err != nil {
		logger.Warnf("trader: score collection for %s failed, continuing with current signal only: %v", sig.Symbol, err)
	}

	mktCtx := m.buildMarketContext(now)

	var gex *market.GEXBundle
	var regimeObs *types.RegimeObservation
	if g, err := m.provider.GetGEX(sig.Symbol); err == nil {
		gex = g
		r, confidence := classifyRegime(g)
		regimeObs = m.tracker.Observe(sig.Symbol, r, confidence, now)
	} else {
		logger.Warnf("trader: GEX unavailable for %s: %v", sig.Symbol, err)
		regimeObs = m.tracker.Check(sig.Symbol, 0, now)
	}

	var atr *market.ATRContext
	if a, err := m.provider.GetATRContext(sig.Symbol); err == nil {
		atr = a
		if mktCtx != nil {
			mktCtx.ATRPercentile = a.ATRPercentile
		}
	}

	optionPrice := sig.LimitPrice
	if optionPrice <= 0 {
		if occ, err := types.EncodeOCC(sig.Symbol, mustParseDate(sig.Expiration), sig.OptionType, sig.Strike); err == nil {
			if q, err := m.provider.GetQuote(occ); err == nil {
				optionPrice = q.Mid
			}
		}
	}

	return m.orch.OrchestrateEntry(decision.EntryInput{
		Signal:         sig,
		Scores:         scores,
		Context:        mktCtx,
		MTF:            mtfFromPayload(sig),
		Regime:         regimeObs,
		GEX:            gex,
		ATR:            atr,
		OptionPrice:    optionPrice,
		PortfolioValue: m.cfg.PortfolioValue,
		Now:            now,
	}), nil
}

// closeFromSignal handles CLOSE-action webhook signals: run the exit
// engine against the matching open position and close it if anything
// fires, or honor the explicit request outright.
func (m *Manager) closeFromSignal(ctx context.Context, sig *types.Signal, now time.Time) (*decision.IntegratedDecision, error) {
	open, err := m.store.Positions().Open()
	if err != nil {
		return nil, fmt.Errorf("trader: load positions for close signal: %w", err)
	}

	for _, pos := range open {
		if pos.Underlying != sig.Symbol {
			continue
		}
		if sig.OptionType != "" && pos.OptionType != sig.OptionType {
			continue
		}

		absQty := pos.Quantity
		if absQty < 0 {
			absQty = -absQty
		}
		eval := &decision.ExitEvaluation{
			Action:             decision.ExitCloseFull,
			Urgency:            decision.UrgencyImmediate,
			Trigger:            "CLOSE_SIGNAL",
			Quantity:           absQty,
			SuggestedOrderType: types.OrderMarket,
			Reason:             "close requested by " + string(sig.Source),
		}
		if err := m.closePosition(ctx, pos, eval); err != nil {
			return nil, err
		}
		return &decision.IntegratedDecision{
			DecisionID:     uuid.NewString(),
			Symbol:         sig.Symbol,
			Action:         decision.ActionExit,
			Quantity:       absQty,
			RulesTriggered: []string{"CLOSE_SIGNAL: " + eval.Reason},
			DecidedAt:      now,
		}, nil
	}
	return nil, fmt.Errorf("trader: no open position for close signal on %s", sig.Symbol)
}

// collectScores maps recent completed signals for the ticker onto
// weighted directional votes, one per source (most recent wins).
func (m *Manager) collectScores(sig *types.Signal) ([]decision.SignalScore, error) {
	recent, err := m.store.Signals().RecentCompletedSignals(sig.Symbol, 20*time.Minute)
	if err != nil {
		return []decision.SignalScore{{
			Source:    sig.Source,
			Direction: sig.Direction,
			Weight:    scoring.WeightTable[sig.Source],
		}}, err
	}

	bySource := map[types.Source]*types.Signal{sig.Source: sig}
	for _, s := range recent {
		existing, ok := bySource[s.Source]
		if !ok || s.CreatedAt.After(existing.CreatedAt) {
			bySource[s.Source] = s
		}
	}

	scores := make([]decision.SignalScore, 0, len(bySource))
	for source, s := range bySource {
		scores = append(scores, decision.SignalScore{
			Source:    source,
			Direction: s.Direction,
			Weight:    scoring.WeightTable[source],
		})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].Source < scores[j].Source })
	return scores, nil
}

func (m *Manager) buildMarketContext(now time.Time) *decision.MarketContext {
	mktCtx := &decision.MarketContext{}
	anyData := false

	if schedule, err := m.provider.GetSchedule(now); err == nil {
		mktCtx.Schedule = schedule
		anyData = true
	}
	if vix, err := m.provider.GetVIX(); err == nil {
		mktCtx.VIX = vix
		anyData = true
	} else {
		mktCtx.StaleSources = append(mktCtx.StaleSources, "vix")
	}

	if !anyData {
		return nil
	}
	return mktCtx
}

// OpenPosition submits the opening order for an EXECUTE decision and, on
// a synchronous fill, records the trade and opens the position.
func (m *Manager) OpenPosition(ctx context.Context, sig *types.Signal, d *decision.IntegratedDecision, entryPrice float64) error {
	m.touch()

	occ, err := types.EncodeOCC(sig.Symbol, mustParseDate(sig.Expiration), sig.OptionType, sig.Strike)
	if err != nil {
		return fmt.Errorf("trader: encode option symbol: %w", err)
	}

	order := &types.Order{
		ID:          uuid.NewString(),
		SignalID:    sig.ID,
		Mode:        m.safety.Mode,
		Side:        types.SideBuy,
		OrderType:   types.OrderType(sig.OrderType),
		TIF:         types.TimeInForce(sig.TimeInForce),
		Symbol:      occ,
		Quantity:    d.Quantity,
		LimitPrice:  sig.LimitPrice,
		Status:      types.OrderPending,
		SubmittedAt: time.Now(),
	}
	if err := m.store.Orders().Insert(order); err != nil {
		return err
	}

	req := broker.OrderRequest{
		OrderID:    order.ID,
		Symbol:     occ,
		Side:       order.Side,
		Quantity:   order.Quantity,
		OrderType:  order.OrderType,
		LimitPrice: order.LimitPrice,
		TIF:        order.TIF,
	}

	res, trade, err := m.adapter.SubmitOrder(ctx, req, entryPrice)
	m.logAdapterCall("submit_order", order.ID, req, res, err)
	if err != nil {
		_, _ = m.store.Orders().TransitionStatus(order.ID, types.OrderPending, types.OrderRejected)
		return fmt.Errorf("trader: submit order: %w", err)
	}
	if !res.Success {
		_, _ = m.store.Orders().TransitionStatus(order.ID, types.OrderPending, types.OrderRejected)
		return fmt.Errorf("trader: broker rejected order: %s", res.RejectionReason)
	}

	if res.BrokerOrderID != "" {
		if err := m.store.Orders().SetBrokerOrderID(order.ID, res.BrokerOrderID); err != nil {
			logger.Warnf("trader: persist broker order id: %v", err)
		}
	}
	if res.EstimatedFillTimeMs > 0 {
		m.mu.Lock()
		m.fillHints[order.ID] = res.EstimatedFillTimeMs
		m.mu.Unlock()
	}

	if res.Status != types.OrderFilled {
		// Awaiting fill: the poller finishes the job.
		if ok, err := m.store.Orders().TransitionStatus(order.ID, types.OrderPending, res.Status); err != nil || !ok {
			logger.Warnf("trader: record submitted status for %s: ok=%v err=%v", order.ID, ok, err)
		}
		return nil
	}

	if err := m.store.Orders().MarkFilled(order.ID, types.OrderFilled, res.FilledQuantity, res.AvgFillPrice); err != nil {
		return err
	}
	if trade != nil {
		trade.OrderID = order.ID
		if err := m.store.Trades().Insert(trade); err != nil {
			logger.Warnf("trader: persist trade for order %s: %v", order.ID, err)
		}
	}

	return m.openPositionRecord(sig, occ, res.FilledQuantity, res.AvgFillPrice)
}

func (m *Manager) openPositionRecord(sig *types.Signal, occ string, qty int, avgPrice float64) error {
	totalCost := decimal.NewFromFloat(avgPrice).
		Mul(decimal.NewFromInt(int64(qty))).
		Mul(decimal.NewFromInt(100)).
		InexactFloat64()

	entryRegime := types.RegimeUnknown
	if obs := m.tracker.Check(sig.Symbol, 0, time.Now()); obs != nil {
		entryRegime = obs.Regime
	}

	pos := &types.Position{
		ID:                uuid.NewString(),
		Symbol:            occ,
		Underlying:        sig.Symbol,
		Strike:            sig.Strike,
		Expiration:        sig.Expiration,
		OptionType:        sig.OptionType,
		Quantity:          qty,
		AvgOpenPrice:      avgPrice,
		TotalCost:         totalCost,
		CurrentPrice:      avgPrice,
		EntryMarketRegime: entryRegime,
		OpenedAt:          time.Now(),
	}
	if err := m.store.Positions().Insert(pos); err != nil {
		return fmt.Errorf("trader: open position record: %w", err)
	}

	metrics.SetOpenPositions(m.countOpenPositions())
	logger.Infof("trader: opened %d %s @ %.2f (%s)", qty, occ, avgPrice, m.safety.Mode)
	return nil
}

func (m *Manager) countOpenPositions() int {
	open, err := m.store.Positions().Open()
	if err != nil {
		return 0
	}
	return len(open)
}

// pendingClose pairs a position with the exit verdict that wants it
// closed this cycle.
type pendingClose struct {
	position *types.Position
	eval     *decision.ExitEvaluation
}

// RefreshOnce runs one position-lifecycle cycle: refresh quotes and
// Greeks, advance high-water marks, re-evaluate exits, then close
// whatever fired, sequentially, one close per position per cycle.
// Returns (positions refreshed, exit signals raised).
func (m *Manager) RefreshOnce(ctx context.Context) (int, int, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	m.touch()

	open, err := m.store.Positions().Open()
	if err != nil {
		return 0, 0, fmt.Errorf("trader: load open positions: %w", err)
	}
	if len(open) == 0 {
		return 0, 0, nil
	}

	byUnderlying := make(map[string][]*types.Position)
	for _, p := range open {
		byUnderlying[p.Underlying] = append(byUnderlying[p.Underlying], p)
	}

	var mu sync.Mutex
	var closes []pendingClose
	refreshed := 0

	// Parallel across distinct underlyings, strictly sequential within
	// one, so no two orders for the same position can ever race.
	g, gctx := errgroup.WithContext(ctx)
	for underlying, positions := range byUnderlying {
		underlying, positions := underlying, positions
		g.Go(func() error {
			gex, gexErr := m.provider.GetGEX(underlying)
			var currentRegime types.MarketRegime
			if gexErr == nil {
				r, confidence := classifyRegime(gex)
				obs := m.tracker.Observe(underlying, r, confidence, time.Now())
				currentRegime = obs.Regime
			}

			for _, pos := range positions {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				evalInput, ok := m.refreshPosition(pos, gex, currentRegime)
				if !ok {
					continue
				}
				mu.Lock()
				refreshed++
				mu.Unlock()

				_, eval := m.orch.OrchestrateExit(*evalInput)
				if eval.Action == decision.ExitClosePartial || eval.Action == decision.ExitCloseFull {
					mu.Lock()
					closes = append(closes, pendingClose{position: pos, eval: eval})
					mu.Unlock()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return refreshed, len(closes), err
	}

	m.runAutoCloser(ctx, closes)
	return refreshed, len(closes), nil
}

// refreshPosition fetches the latest quote, updates P&L and the
// high-water mark, and returns the exit-engine input.
func (m *Manager) refreshPosition(pos *types.Position, gex *market.GEXBundle, currentRegime types.MarketRegime) (*decision.ExitInput, bool) {
	quote, err := m.provider.GetQuote(pos.Symbol)
	if err != nil {
		logger.Warnf("trader: quote refresh failed for %s: %v", pos.Symbol, err)
		return nil, false
	}

	mid := quote.Mid
	absQty := pos.Quantity
	if absQty < 0 {
		absQty = -absQty
	}

	pnl := decimal.NewFromFloat(mid).
		Sub(decimal.NewFromFloat(pos.AvgOpenPrice)).
		Mul(decimal.NewFromInt(int64(absQty))).
		Mul(decimal.NewFromInt(100))
	if !pos.IsLong() {
		pnl = pnl.Neg()
	}

	pos.CurrentPrice = mid
	pos.MarketValue = mid * float64(absQty) * 100
	pos.UnrealizedPnl = pnl.InexactFloat64()
	if pos.TotalCost > 0 {
		pos.UnrealizedPnlPercent = pos.UnrealizedPnl / pos.TotalCost * 100
	}
	if quote.Greeks != nil {
		pos.Greeks = types.Greeks{
			Delta: quote.Greeks.Delta,
			Gamma: quote.Greeks.Gamma,
			Theta: quote.Greeks.Theta,
			Vega:  quote.Greeks.Vega,
			IV:    quote.Greeks.IV,
		}
	}
	pos.UpdateHighWaterMark()

	if err := m.store.Positions().UpdateRefresh(pos); err != nil {
		logger.Warnf("trader: persist refresh for %s: %v", pos.ID, err)
	}
	metrics.UpdatePositionMetrics(pos.Underlying, pos.Symbol, pos.UnrealizedPnl, pos.UnrealizedPnlPercent)

	gexFlipped := false
	if gex != nil && pos.EntryMarketRegime != "" {
		gexFlipped = dealerFlippedAgainst(pos, gex)
	}

	var greeks *types.Greeks
	if quote.Greeks != nil {
		greeks = &pos.Greeks
	}

	return &decision.ExitInput{
		Position:      pos,
		CurrentPrice:  mid,
		Greeks:        greeks,
		GEXFlipped:    gexFlipped,
		CurrentRegime: currentRegime,
		Now:           time.Now(),
	}, true
}

// runAutoCloser submits one close per position, sequentially, spaced at
// least autoCloseSpacing apart.
func (m *Manager) runAutoCloser(ctx context.Context, closes []pendingClose) {
	for i, pc := range closes {
		if ctx.Err() != nil {
			return
		}
		if i > 0 {
			select {
			case <-time.After(autoCloseSpacing):
			case <-ctx.Done():
				return
			}
		}

		m.recordExitSignal(ExitSignal{
			PositionID: pc.position.ID,
			Symbol:     pc.position.Symbol,
			Action:     string(pc.eval.Action),
			Trigger:    pc.eval.Trigger,
			Urgency:    string(pc.eval.Urgency),
			Quantity:   pc.eval.Quantity,
			Reason:     pc.eval.Reason,
			CreatedAt:  time.Now(),
		})

		if err := m.closePosition(ctx, pc.position, pc.eval); err != nil {
			logger.Errorf("trader: auto-close %s failed: %v", pc.position.Symbol, err)
		}
	}
}

// closePosition submits a closing order for the evaluated quantity and
// applies the fill to the position.
func (m *Manager) closePosition(ctx context.Context, pos *types.Position, eval *decision.ExitEvaluation) error {
	m.touch()

	order := &types.Order{
		ID:          uuid.NewString(),
		Mode:        m.safety.Mode,
		Side:        types.SideClose,
		OrderType:   eval.SuggestedOrderType,
		TIF:         types.TIFDay,
		Symbol:      pos.Symbol,
		Quantity:    eval.Quantity,
		LimitPrice:  pos.CurrentPrice,
		Status:      types.OrderPending,
		SubmittedAt: time.Now(),
	}
	if err := m.store.Orders().Insert(order); err != nil {
		return err
	}

	req := broker.OrderRequest{
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		OrderType:  order.OrderType,
		LimitPrice: order.LimitPrice,
		TIF:        order.TIF,
	}

	res, trade, err := m.adapter.SubmitOrder(ctx, req, pos.CurrentPrice)
	m.logAdapterCall("auto_close", order.ID, req, res, err)
	if err != nil {
		_, _ = m.store.Orders().TransitionStatus(order.ID, types.OrderPending, types.OrderRejected)
		return err
	}
	if !res.Success {
		_, _ = m.store.Orders().TransitionStatus(order.ID, types.OrderPending, types.OrderRejected)
		return fmt.Errorf("broker rejected close: %s", res.RejectionReason)
	}

	if res.Status != types.OrderFilled {
		if ok, terr := m.store.Orders().TransitionStatus(order.ID, types.OrderPending, res.Status); terr != nil || !ok {
			logger.Warnf("trader: record close submission for %s: ok=%v err=%v", order.ID, ok, terr)
		}
		if res.BrokerOrderID != "" {
			_ = m.store.Orders().SetBrokerOrderID(order.ID, res.BrokerOrderID)
		}
		return nil
	}

	if err := m.store.Orders().MarkFilled(order.ID, types.OrderFilled, res.FilledQuantity, res.AvgFillPrice); err != nil {
		return err
	}
	if trade != nil {
		trade.OrderID = order.ID
		if err := m.store.Trades().Insert(trade); err != nil {
			logger.Warnf("trader: persist close trade: %v", err)
		}
	}

	return m.applyCloseFill(pos, eval.Action, res.FilledQuantity, res.AvgFillPrice)
}

// applyCloseFill books realized P&L for the closed contracts and updates
// or closes the position.
func (m *Manager) applyCloseFill(pos *types.Position, action decision.ExitAction, qty int, fillPrice float64) error {
	realized := decimal.NewFromFloat(fillPrice).
		Sub(decimal.NewFromFloat(pos.AvgOpenPrice)).
		Mul(decimal.NewFromInt(int64(qty))).
		Mul(decimal.NewFromInt(100))
	if !pos.IsLong() {
		realized = realized.Neg()
	}
	realizedDelta := realized.InexactFloat64()

	absQty := pos.Quantity
	if absQty < 0 {
		absQty = -absQty
	}

	var err error
	if action == decision.ExitCloseFull || qty >= absQty {
		err = m.store.Positions().Close(pos.ID, realizedDelta, time.Now())
	} else {
		err = m.store.Positions().ApplyPartialExit(pos.ID, qty, realizedDelta)
	}
	if err != nil {
		return err
	}

	if gex, gerr := m.provider.GetGEX(pos.Underlying); gerr == nil {
		if rerr := m.store.Regimes().RecordTradeOutcome(pos.EntryMarketRegime, gex.DealerPosition, realizedDelta); rerr != nil {
			logger.Warnf("trader: record trade outcome: %v", rerr)
		}
	}

	metrics.SetOpenPositions(m.countOpenPositions())
	return nil
}

// ExecutePendingPaper force-fills resting paper limit orders at their
// limit price, the manual trigger behind the paper-trading endpoint.
// Returns how many orders were executed.
func (m *Manager) ExecutePendingPaper(ctx context.Context) (int, error) {
	paper, ok := m.adapter.(*broker.PaperAdapter)
	if !ok {
		return 0, fmt.Errorf("trader: paper execution requested but adapter is %s", m.adapter.Capabilities().Name)
	}

	outstanding, err := m.store.Orders().Outstanding()
	if err != nil {
		return 0, err
	}

	executed := 0
	for _, order := range outstanding {
		if ctx.Err() != nil {
			return executed, ctx.Err()
		}
		if order.Mode != types.ModePaper || order.Status != types.OrderSubmitted {
			continue
		}

		status, trade, err := paper.FillResting(order.BrokerOrderID)
		if err != nil {
			logger.Warnf("trader: paper fill for %s failed: %v", order.ID, err)
			continue
		}
		if err := m.store.Orders().MarkFilled(order.ID, types.OrderFilled, status.FilledQuantity, status.AvgFillPrice); err != nil {
			logger.Warnf("trader: record paper fill for %s: %v", order.ID, err)
			continue
		}
		if trade != nil {
			trade.OrderID = order.ID
			if err := m.store.Trades().Insert(trade); err != nil {
				logger.Warnf("trader: persist paper trade: %v", err)
			}
		}

		switch order.Side {
		case types.SideBuy:
			if decoded, derr := types.DecodeOCC(order.Symbol); derr == nil {
				sig := &types.Signal{
					Symbol:     decoded.Underlying,
					Strike:     decoded.Strike,
					Expiration: decoded.Expiration.Format("2006-01-02"),
					OptionType: decoded.OptionType,
				}
				if perr := m.openPositionRecord(sig, order.Symbol, status.FilledQuantity, status.AvgFillPrice); perr != nil {
					logger.Errorf("trader: open position from paper fill: %v", perr)
				}
			}
		case types.SideClose:
			if pos := m.findOpenBySymbol(order.Symbol); pos != nil {
				if cerr := m.applyCloseFill(pos, decision.ExitClosePartial, status.FilledQuantity, status.AvgFillPrice); cerr != nil {
					logger.Errorf("trader: apply paper close fill: %v", cerr)
				}
			}
		}
		executed++
	}
	m.touch()
	return executed, nil
}

func (m *Manager) findOpenBySymbol(symbol string) *types.Position {
	open, err := m.store.Positions().Open()
	if err != nil {
		return nil
	}
	for _, pos := range open {
		if pos.Symbol == symbol {
			return pos
		}
	}
	return nil
}

// DrainQueue re-enters held pre-market signals once the session opens.
// process is called for each drained signal.
func (m *Manager) DrainQueue(now time.Time, process func(sig *types.Signal)) int {
	schedule, err := m.provider.GetSchedule(now)
	if err != nil {
		return 0
	}
	if schedule.Session != market.SessionOpening && schedule.Session != market.SessionMorning {
		return 0
	}

	drained := m.queue.Drain(now)
	for _, sig := range drained {
		process(sig)
	}
	return len(drained)
}

func (m *Manager) logAdapterCall(operation, orderID string, req broker.OrderRequest, res *broker.OrderResult, callErr error) {
	reqPayload, _ := json.Marshal(req)
	status, resPayload, errMsg := "", "", ""
	if res != nil {
		status = string(res.Status)
		raw, _ := json.Marshal(res)
		resPayload = string(raw)
	}
	if callErr != nil {
		errMsg = callErr.Error()
	}

	if err := m.store.AdapterLogs().Insert(&store.AdapterLog{
		AdapterName:     m.adapter.Capabilities().Name,
		Operation:       operation,
		CorrelationID:   uuid.NewString(),
		OrderID:         orderID,
		Status:          status,
		RequestPayload:  string(reqPayload),
		ResponsePayload: resPayload,
		ErrorMessage:    errMsg,
	}); err != nil {
		logger.Warnf("trader: adapter log write failed: %v", err)
	}
	metrics.RecordAdapterCall(m.adapter.Capabilities().Name, operation, callErr == nil)
}

// classifyRegime maps a dealer-positioning snapshot onto a market regime.
// Long-gamma dealers dampen moves (range-bound). Otherwise the side of the
// zero-gamma level on which max pain sits sets the trend (above: up,
// below: down); a missing zero-gamma level or a tie reads as breakout
// imminent.
func classifyRegime(gex *market.GEXBundle) (types.MarketRegime, float64) {
	if gex == nil {
		return types.RegimeUnknown, 0
	}
	if gex.DealerPosition == "LONG_GAMMA" {
		return types.RegimeRangeBound, 0.8
	}
	switch {
	case gex.ZeroGammaLevel > 0 && gex.MaxPain > gex.ZeroGammaLevel:
		return types.RegimeTrendingUp, 0.75
	case gex.ZeroGammaLevel > 0 && gex.MaxPain < gex.ZeroGammaLevel:
		return types.RegimeTrendingDown, 0.75
	default:
		return types.RegimeBreakoutImminent, 0.6
	}
}

// dealerFlippedAgainst reports whether dealer positioning now amplifies
// moves against the position relative to its entry regime.
func dealerFlippedAgainst(pos *types.Position, gex *market.GEXBundle) bool {
	if gex.DealerPosition != "SHORT_GAMMA" {
		return false
	}
	current, _ := classifyRegime(gex)
	switch {
	case pos.OptionType == types.Call && pos.IsLong():
		return current == types.RegimeTrendingDown
	case pos.OptionType == types.Put && pos.IsLong():
		return current == types.RegimeTrendingUp
	default:
		return false
	}
}

// mtfFromPayload lifts an mtf alignment summary out of the raw payload
// when the vendor supplied one.
func mtfFromPayload(sig *types.Signal) *decision.MTFTrend {
	if sig.RawPayload == nil {
		return nil
	}
	raw, ok := sig.RawPayload["mtf_alignment"]
	if !ok {
		return nil
	}
	score, ok := raw.(float64)
	if !ok {
		return nil
	}

	trend := &decision.MTFTrend{AlignmentScore: score, Bias: sig.Direction}
	if biasRaw, ok := sig.RawPayload["mtf_bias"].(string); ok {
		trend.Bias = types.Direction(biasRaw)
		trend.Conflict = trend.Bias != types.Neutral && trend.Bias != sig.Direction
	}
	return trend
}

func mustParseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
