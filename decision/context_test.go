package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/market"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

func bullishSignal() *types.Signal {
	return &types.Signal{
		Symbol:     "SPY",
		Direction:  types.Bullish,
		Action:     types.ActionBuy,
		OptionType: types.Call,
	}
}

func openSchedule() *market.Schedule {
	return &market.Schedule{Session: market.SessionMorning, IsOpen: true}
}

func TestContextRejectsWhenMarketClosed(t *testing.T) {
	cfg := DefaultContextConfig()
	adj := EvaluateContext(cfg, bullishSignal(), true, &MarketContext{
		Schedule: &market.Schedule{Session: market.SessionClosed, IsOpen: false},
	})
	assert.True(t, adj.ShouldReject)
	assert.Contains(t, adj.Reason, "closed")
}

func TestContextRejectsHighVIXForOpening(t *testing.T) {
	cfg := DefaultContextConfig()
	adj := EvaluateContext(cfg, bullishSignal(), true, &MarketContext{
		VIX:      40,
		Schedule: openSchedule(),
	})
	assert.True(t, adj.ShouldReject)
	assert.Contains(t, adj.Reason, "VIX")
}

func TestContextHighVolHalvesSize(t *testing.T) {
	cfg := DefaultContextConfig()
	adj := EvaluateContext(cfg, bullishSignal(), true, &MarketContext{
		VIX:      28,
		Schedule: openSchedule(),
	})
	assert.False(t, adj.ShouldReject)
	assert.InDelta(t, 0.5, adj.QuantityMultiplier, 1e-9)
}

func TestContextConfidenceDeltas(t *testing.T) {
	cfg := DefaultContextConfig()
	adj := EvaluateContext(cfg, bullishSignal(), true, &MarketContext{
		VIX:            18,
		Schedule:       openSchedule(),
		ORBreakout:     types.Bullish,
		CandlePattern:  types.Bullish,
		CandleStrength: 0.9,
		NearResistance: true,
	})
	// +0.10 OR breakout, +0.05 candle, +0.03 strong candle, -0.10 near level
	assert.InDelta(t, 0.08, adj.ConfidenceAdjustment, 1e-9)
}

func TestContextMultiplierFloor(t *testing.T) {
	cfg := DefaultContextConfig()
	adj := EvaluateContext(cfg, bullishSignal(), true, &MarketContext{
		VIX:           30,  // x0.5
		ATRPercentile: 90,  // x0.75
		Schedule:      openSchedule(),
	})
	adj.QuantityMultiplier *= 0.5 // stack another cut below the floor
	adj.finalize()
	assert.GreaterOrEqual(t, adj.QuantityMultiplier, 0.25)
}

func TestContextMissingDataIsAdvisory(t *testing.T) {
	adj := EvaluateContext(DefaultContextConfig(), bullishSignal(), true, nil)
	assert.False(t, adj.ShouldReject)
	assert.InDelta(t, -0.10, adj.ConfidenceAdjustment, 1e-9)
}

func TestMTFStrictConflictRejects(t *testing.T) {
	cfg := DefaultContextConfig()
	cfg.MTFMode = MTFStrict
	adj := EvaluateMTF(cfg, bullishSignal(), &MTFTrend{Bias: types.Bearish, Conflict: true})
	assert.True(t, adj.ShouldReject)
}

func TestMTFAdvisoryConflictCutsSize(t *testing.T) {
	adj := EvaluateMTF(DefaultContextConfig(), bullishSignal(), &MTFTrend{Bias: types.Bearish, Conflict: true})
	assert.False(t, adj.ShouldReject)
	assert.InDelta(t, 0.75, adj.QuantityMultiplier, 1e-9)
}

func TestMTFStrongAlignmentBoostsSize(t *testing.T) {
	adj := EvaluateMTF(DefaultContextConfig(), bullishSignal(), &MTFTrend{Bias: types.Bullish, AlignmentScore: 85})
	assert.InDelta(t, 1.25, adj.QuantityMultiplier, 1e-9)
}

func TestApplyConfidenceClamps(t *testing.T) {
	adj := newAdjustment()
	adj.nudge(-0.9, "test")
	assert.InDelta(t, 0.3, adj.ApplyConfidence(0.5), 1e-9)

	adj = newAdjustment()
	adj.nudge(0.9, "test")
	assert.InDelta(t, 1.0, adj.ApplyConfidence(0.5), 1e-9)
}
