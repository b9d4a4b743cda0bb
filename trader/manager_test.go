package trader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/broker"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/config"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/decision"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/market"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/regime"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/scoring"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/store"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/validate"
)

// stubProvider serves canned quotes keyed by symbol.
type stubProvider struct {
	quotes map[string]*market.Quote
	vix    float64
	gex    *market.GEXBundle
}

func (s *stubProvider) GetQuote(symbol string) (*market.Quote, error) {
	if q, ok := s.quotes[symbol]; ok {
		return q, nil
	}
	return &market.Quote{Symbol: symbol, Mid: 3.00}, nil
}
func (s *stubProvider) GetUnderlyingQuote(u string) (*market.Quote, error) { return s.GetQuote(u) }
func (s *stubProvider) GetVIX() (float64, error)                          { return s.vix, nil }
func (s *stubProvider) GetATRContext(string) (*market.ATRContext, error) {
	return &market.ATRContext{ATR: 0.4, ATRPercentile: 50}, nil
}
func (s *stubProvider) GetGEX(string) (*market.GEXBundle, error) {
	if s.gex == nil {
		return &market.GEXBundle{DealerPosition: "LONG_GAMMA", NetGamma: 1}, nil
	}
	return s.gex, nil
}
func (s *stubProvider) GetSchedule(time.Time) (*market.Schedule, error) {
	return &market.Schedule{Session: market.SessionMorning, IsOpen: true}, nil
}

func newTestManager(t *testing.T, provider market.Provider) (*Manager, *store.Store) {
	t.Helper()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.InitTables())
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		AppMode:        config.ModePaper,
		PortfolioValue: 100_000,
		RiskPerTrade:   0.02,
		BrokerTimeout:  10 * time.Second,
	}

	adapter := broker.NewPaperAdapter(42)
	safety := broker.SafetyResult{Mode: types.ModePaper, Broker: "paper", Reason: "APP_MODE is not LIVE"}

	orchCfg := decision.DefaultConfig()
	orchCfg.RequireStableRegime = false
	orch := decision.NewOrchestrator(orchCfg,
		scoring.NewEngine(scoring.DefaultConfig(), st.Signals()),
		decision.NewSizer(st.Regimes(), st.Rules()),
		st.Decisions())

	tracker := regime.NewTracker(regime.DefaultConfig(), st.Regimes())
	queue := validate.NewSignalQueue(time.Hour)

	return NewManager(cfg, st, provider, adapter, safety, orch, tracker, queue), st
}

func testSignal() *types.Signal {
	return &types.Signal{
		ID:          "sig-1",
		Source:      types.SourceUltimateOption,
		Symbol:      "SPY",
		Direction:   types.Bullish,
		Action:      types.ActionBuy,
		Strike:      600,
		Expiration:  time.Now().AddDate(0, 1, 0).Format("2006-01-02"),
		OptionType:  types.Call,
		Quantity:    2,
		OrderType:   "MARKET",
		TimeInForce: "DAY",
	}
}

func TestOpenPositionRecordsOrderTradePosition(t *testing.T) {
	m, st := newTestManager(t, &stubProvider{vix: 18})

	d := &decision.IntegratedDecision{DecisionID: "dec-1", Action: decision.ActionExecute, Quantity: 2}
	require.NoError(t, m.OpenPosition(context.Background(), testSignal(), d, 3.00))

	orders, err := st.Orders().List(10)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, types.OrderFilled, orders[0].Status)
	assert.Equal(t, types.ModePaper, orders[0].Mode)

	trades, err := st.Trades().List(10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, orders[0].ID, trades[0].OrderID)

	open, err := st.Positions().Open()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 2, open[0].Quantity)
	assert.Equal(t, "SPY", open[0].Underlying)

	logs, err := st.AdapterLogs().List(10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "submit_order", logs[0].Operation)
}

func TestRefreshAdvancesHighWaterMark(t *testing.T) {
	provider := &stubProvider{vix: 18, quotes: map[string]*market.Quote{}}
	m, st := newTestManager(t, provider)

	d := &decision.IntegratedDecision{Action: decision.ActionExecute, Quantity: 2}
	require.NoError(t, m.OpenPosition(context.Background(), testSignal(), d, 3.00))

	open, err := st.Positions().Open()
	require.NoError(t, err)
	symbol := open[0].Symbol

	// +10%: refresh, no exit rule fires.
	provider.quotes[symbol] = &market.Quote{Symbol: symbol, Mid: open[0].AvgOpenPrice * 1.10}
	refreshed, exits, err := m.RefreshOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 0, exits)

	got, err := st.Positions().Get(open[0].ID)
	require.NoError(t, err)
	assert.Greater(t, got.HighWaterMark, 0.0)
	firstHWM := got.HighWaterMark

	// Price dips: the mark must not retreat.
	provider.quotes[symbol] = &market.Quote{Symbol: symbol, Mid: open[0].AvgOpenPrice * 1.02}
	_, _, err = m.RefreshOnce(context.Background())
	require.NoError(t, err)

	got, err = st.Positions().Get(open[0].ID)
	require.NoError(t, err)
	assert.Equal(t, firstHWM, got.HighWaterMark)
}

func TestRefreshAutoClosesOnStopLoss(t *testing.T) {
	provider := &stubProvider{vix: 18, quotes: map[string]*market.Quote{}}
	m, st := newTestManager(t, provider)

	d := &decision.IntegratedDecision{Action: decision.ActionExecute, Quantity: 2}
	require.NoError(t, m.OpenPosition(context.Background(), testSignal(), d, 3.00))

	open, err := st.Positions().Open()
	require.NoError(t, err)
	pos := open[0]

	// -80% of premium trips the absolute stop.
	provider.quotes[pos.Symbol] = &market.Quote{Symbol: pos.Symbol, Mid: pos.AvgOpenPrice * 0.20}
	_, exits, err := m.RefreshOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, exits)

	got, err := st.Positions().Get(pos.ID)
	require.NoError(t, err)
	assert.True(t, got.IsClosed)
	assert.Less(t, got.RealizedPnl, 0.0)

	signals := m.ExitSignals()
	require.NotEmpty(t, signals)
	assert.Equal(t, "STOP_LOSS", signals[0].Trigger)

	// The auto-close left an audit trail and a closing order.
	orders, err := st.Orders().List(10)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestDecideEntryAssemblesInputs(t *testing.T) {
	m, st := newTestManager(t, &stubProvider{vix: 18})

	// Seed agreeing history so confluence clears the bar.
	now := time.Now().UTC()
	for i, src := range []types.Source{types.SourceUltimateOption, types.SourceMTFTrendDots, types.SourceStratEngineV6} {
		sig := testSignal()
		sig.ID = "hist-" + string(rune('a'+i))
		sig.Source = src
		sig.Fingerprint = sig.ID
		sig.Status = types.SignalCompleted
		sig.CreatedAt = now.Add(-time.Duration(i+1) * time.Minute)
		sig.UpdatedAt = sig.CreatedAt
		require.NoError(t, st.Signals().Insert(sig))
	}

	d, err := m.DecideEntry(context.Background(), testSignal())
	require.NoError(t, err)
	assert.Equal(t, decision.ActionExecute, d.Action, "rules: %v", d.RulesTriggered)
	assert.NotZero(t, d.Quantity)
}
