package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/decision"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/market"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/signal"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/validate"
)

type openProvider struct{}

func (openProvider) GetQuote(string) (*market.Quote, error)           { return nil, nil }
func (openProvider) GetUnderlyingQuote(string) (*market.Quote, error) { return nil, nil }
func (openProvider) GetVIX() (float64, error)                         { return 18, nil }
func (openProvider) GetATRContext(string) (*market.ATRContext, error) { return nil, nil }
func (openProvider) GetGEX(string) (*market.GEXBundle, error)         { return nil, nil }
func (openProvider) GetSchedule(time.Time) (*market.Schedule, error) {
	return &market.Schedule{Session: market.SessionMorning, IsOpen: true}, nil
}

type scriptedDecider struct {
	action decision.DecisionAction
	err    error
	calls  int
}

func (d *scriptedDecider) DecideEntry(context.Context, *types.Signal) (*decision.IntegratedDecision, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return &decision.IntegratedDecision{DecisionID: "dec-1", Action: d.action, Quantity: 1}, nil
}

type capturingExecutor struct {
	entryPrices []float64
	err         error
}

func (e *capturingExecutor) OpenPosition(_ context.Context, _ *types.Signal, _ *decision.IntegratedDecision, entryPrice float64) error {
	if e.err != nil {
		return e.err
	}
	e.entryPrices = append(e.entryPrices, entryPrice)
	return nil
}

func newTestPipeline(decider Decider, executor Executor) *Pipeline {
	v := validate.NewValidator(validate.DefaultConfig(), openProvider{})
	dedup := signal.NewDedupCache(60*time.Second, 5*time.Minute)
	queue := validate.NewSignalQueue(60 * time.Minute)
	return New(v, dedup, queue, decider, executor, nil)
}

func validPayload() map[string]interface{} {
	return map[string]interface{}{
		"ticker":     "SPY",
		"action":     "BUY",
		"type":       "CALL",
		"strike":     600.0,
		"expiration": time.Now().AddDate(0, 1, 0).Format("2006-01-02"),
		"qty":        2.0,
		"price":      3.25,
		"timestamp":  "2025-01-10T14:05:00Z",
	}
}

func TestProcessCompletes(t *testing.T) {
	exec := &capturingExecutor{}
	p := newTestPipeline(&scriptedDecider{action: decision.ActionExecute}, exec)

	res := p.Process(context.Background(), types.SourceTradingView, validPayload())

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, types.SignalCompleted, res.Signal.Status)
	require.Len(t, exec.entryPrices, 1)
	assert.Equal(t, 3.25, exec.entryPrices[0])
}

func TestProcessRejectsInvalidPayload(t *testing.T) {
	p := newTestPipeline(&scriptedDecider{action: decision.ActionExecute}, &capturingExecutor{})

	payload := validPayload()
	delete(payload, "strike")

	res := p.Process(context.Background(), types.SourceTradingView, payload)
	assert.Equal(t, StatusRejected, res.Status)
	require.NotNil(t, res.Failure)
	assert.Equal(t, StageValidation, res.Failure.Stage)
}

func TestProcessDuplicateInsideWindow(t *testing.T) {
	dec := &scriptedDecider{action: decision.ActionExecute}
	p := newTestPipeline(dec, &capturingExecutor{})

	payload := validPayload()
	first := p.Process(context.Background(), types.SourceTradingView, payload)
	require.Equal(t, StatusCompleted, first.Status)

	// Same payload, same vendor timestamp: the fingerprint matches and the
	// resubmission never reaches the decision stage.
	second := p.Process(context.Background(), types.SourceTradingView, payload)
	assert.Equal(t, first.Signal.Fingerprint, second.Signal.Fingerprint)
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Equal(t, first.Signal.ID, second.DuplicateOf)
	assert.Equal(t, 1, dec.calls)
}

func TestProcessDecisionRejectionIsNotAFailure(t *testing.T) {
	p := newTestPipeline(&scriptedDecider{action: decision.ActionReject}, &capturingExecutor{})

	res := p.Process(context.Background(), types.SourceTradingView, validPayload())
	assert.Equal(t, StatusRejected, res.Status)
	assert.Nil(t, res.Failure)
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	exec := &capturingExecutor{}
	p := newTestPipeline(&scriptedDecider{action: decision.ActionExecute}, exec)

	bad := validPayload()
	delete(bad, "action")
	good := validPayload()
	good["ticker"] = "QQQ"

	results := p.ProcessBatch(context.Background(), types.SourceTradingView, []map[string]interface{}{bad, good})

	require.Len(t, results, 2)
	assert.Equal(t, StatusRejected, results[0].Status)
	assert.Equal(t, StatusCompleted, results[1].Status)
}

func TestProcessDeciderErrorIsolated(t *testing.T) {
	p := newTestPipeline(&scriptedDecider{err: errors.New("market data down")}, &capturingExecutor{})

	res := p.Process(context.Background(), types.SourceTradingView, validPayload())
	assert.Equal(t, StatusFailed, res.Status)
	require.NotNil(t, res.Failure)
	assert.Equal(t, StageDecision, res.Failure.Stage)
	assert.Equal(t, types.SignalFailed, res.Signal.Status)
}

func TestResolveEntryPricePriority(t *testing.T) {
	sig := &types.Signal{RawPayload: map[string]interface{}{
		"last":  2.80,
		"close": 2.70,
		"price": 3.10,
	}}
	assert.Equal(t, 3.10, ResolveEntryPrice(sig))

	sig = &types.Signal{RawPayload: map[string]interface{}{"underlying_price": "601.5"}}
	assert.Equal(t, 601.5, ResolveEntryPrice(sig))

	sig = &types.Signal{LimitPrice: 1.25}
	assert.Equal(t, 1.25, ResolveEntryPrice(sig))
}
