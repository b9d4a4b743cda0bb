package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/market"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

func longCall(entry float64, qty int, dte int, now time.Time) *types.Position {
	return &types.Position{
		ID:           "pos-1",
		Symbol:       "SPY   260320C00600000",
		Underlying:   "SPY",
		OptionType:   types.Call,
		Quantity:     qty,
		AvgOpenPrice: entry,
		Expiration:   now.AddDate(0, 0, dte).Format("2006-01-02"),
		OpenedAt:     now.Add(-48 * time.Hour),
	}
}

func TestExitDTELimitWithLoss(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	pos := longCall(2.00, 3, 1, now)

	eval := EvaluateExit(DefaultExitConfig(), ExitInput{
		Position:     pos,
		CurrentPrice: 1.20,
		Now:          now,
	})

	assert.Equal(t, ExitCloseFull, eval.Action)
	assert.Equal(t, UrgencyImmediate, eval.Urgency)
	assert.Equal(t, TriggerDTELimit, eval.Trigger)
	assert.Equal(t, types.OrderMarket, eval.SuggestedOrderType)
}

func TestExitFirstPartialAtTargetOne(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	pos := longCall(2.00, 5, 30, now)
	pos.PartialExitsTaken = 0

	eval := EvaluateExit(DefaultExitConfig(), ExitInput{
		Position:     pos,
		CurrentPrice: 2.65, // +32.5%
		ATR:          &market.ATRContext{ATR: 0.40, ATRPercentile: 50},
		Now:          now,
	})

	assert.Equal(t, ExitClosePartial, eval.Action)
	assert.Equal(t, TriggerProfitT1, eval.Trigger)
	assert.Equal(t, 2, eval.Quantity) // ceil(5 * 0.25)
	assert.Equal(t, 2.00, eval.NewStopLoss)
}

func TestExitSecondPartialAtTargetTwo(t *testing.T) {
	now := time.Now()
	pos := longCall(2.00, 4, 30, now)
	pos.PartialExitsTaken = 1

	eval := EvaluateExit(DefaultExitConfig(), ExitInput{
		Position:     pos,
		CurrentPrice: 3.30, // +65%
		Now:          now,
	})

	assert.Equal(t, ExitClosePartial, eval.Action)
	assert.Equal(t, TriggerProfitT2, eval.Trigger)
	assert.Equal(t, 2, eval.Quantity)
}

func TestExitAbsoluteStopLoss(t *testing.T) {
	now := time.Now()
	pos := longCall(2.00, 2, 30, now)

	eval := EvaluateExit(DefaultExitConfig(), ExitInput{
		Position:     pos,
		CurrentPrice: 0.40, // -80%
		Now:          now,
	})

	assert.Equal(t, ExitCloseFull, eval.Action)
	assert.Equal(t, TriggerStopLoss, eval.Trigger)
	assert.Equal(t, UrgencyImmediate, eval.Urgency)
}

func TestExitATRStop(t *testing.T) {
	now := time.Now()
	pos := longCall(2.00, 2, 30, now)

	// Quiet tape: percentile 10 keeps k near 1.1, stop ~1.56.
	eval := EvaluateExit(DefaultExitConfig(), ExitInput{
		Position:     pos,
		CurrentPrice: 1.50,
		ATR:          &market.ATRContext{ATR: 0.40, ATRPercentile: 10},
		Now:          now,
	})

	assert.Equal(t, ExitCloseFull, eval.Action)
	assert.Equal(t, TriggerATRStop, eval.Trigger)
}

func TestExitDeepITMDelta(t *testing.T) {
	now := time.Now()
	pos := longCall(2.00, 1, 30, now)

	eval := EvaluateExit(DefaultExitConfig(), ExitInput{
		Position:     pos,
		CurrentPrice: 2.10,
		Greeks:       &types.Greeks{Delta: 0.85},
		Now:          now,
	})

	assert.Equal(t, ExitCloseFull, eval.Action)
	assert.Equal(t, TriggerDeepITM, eval.Trigger)
}

func TestExitGEXFlipOverridesHold(t *testing.T) {
	now := time.Now()
	pos := longCall(2.00, 2, 30, now)

	eval := EvaluateExit(DefaultExitConfig(), ExitInput{
		Position:     pos,
		CurrentPrice: 2.30, // +15%, nothing else fires
		GEXFlipped:   true,
		Now:          now,
	})

	assert.Equal(t, ExitCloseFull, eval.Action)
	assert.Equal(t, TriggerGEXFlip, eval.Trigger)
}

func TestExitRegimeChangePartial(t *testing.T) {
	now := time.Now()
	pos := longCall(2.00, 4, 30, now)
	pos.EntryMarketRegime = types.RegimeTrendingUp

	eval := EvaluateExit(DefaultExitConfig(), ExitInput{
		Position:      pos,
		CurrentPrice:  2.10, // +5% profit, below the GEX threshold
		CurrentRegime: types.RegimeTrendingDown,
		Now:           now,
	})

	assert.Equal(t, ExitClosePartial, eval.Action)
	assert.Equal(t, TriggerRegimeChange, eval.Trigger)
	assert.Equal(t, 2, eval.Quantity)
}

func TestExitHoldsWhenNothingFires(t *testing.T) {
	now := time.Now()
	pos := longCall(2.00, 2, 30, now)

	eval := EvaluateExit(DefaultExitConfig(), ExitInput{
		Position:     pos,
		CurrentPrice: 2.10,
		Now:          now,
	})

	assert.Equal(t, ExitHold, eval.Action)
}

func TestEnhancedModeUsesATRScaledTargets(t *testing.T) {
	now := time.Now()
	cfg := DefaultExitConfig()
	cfg.UseEnhanced = true
	pos := longCall(2.00, 4, 30, now)

	// ATR 0.30 puts T1 at +22.5% of entry; +25% runup takes the partial
	// that the fixed +30% target would not.
	eval := EvaluateExit(cfg, ExitInput{
		Position:     pos,
		CurrentPrice: 2.50,
		ATR:          &market.ATRContext{ATR: 0.30, ATRPercentile: 40},
		Now:          now,
	})

	assert.Equal(t, ExitClosePartial, eval.Action)
	assert.Equal(t, TriggerProfitT1, eval.Trigger)
}
