package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

func TestFlipCooldownBlocksThenAllows(t *testing.T) {
	tr := NewTracker(DefaultConfig(), nil)
	t0 := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)

	tr.Observe("SPY", types.RegimeTrendingUp, 0.9, t0.Add(-20*time.Minute))
	tr.Observe("SPY", types.RegimeTrendingUp, 0.9, t0.Add(-10*time.Minute))

	// Flip at t0.
	obs := tr.Observe("SPY", types.RegimeTrendingDown, 0.9, t0)
	assert.Equal(t, 1, obs.ConsecutiveSameRegime)
	assert.Equal(t, t0, obs.LastFlipTimestamp)

	// 600s after the flip: still inside the 900s cooldown.
	check := tr.Check("SPY", 0.9, t0.Add(600*time.Second))
	assert.False(t, check.CanTrade)
	assert.Contains(t, check.BlockReason, "flip cooldown")

	// 901s after the flip with one more confirming observation: allowed.
	tr.Observe("SPY", types.RegimeTrendingDown, 0.9, t0.Add(300*time.Second))
	check = tr.Check("SPY", 0.9, t0.Add(901*time.Second))
	assert.True(t, check.CanTrade, "block reason: %s", check.BlockReason)
}

func TestConsecutiveRequirement(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlipCooldown = 0
	tr := NewTracker(cfg, nil)
	now := time.Now()

	obs := tr.Observe("QQQ", types.RegimeRangeBound, 0.9, now)
	assert.False(t, obs.CanTrade)
	assert.Contains(t, obs.BlockReason, "consecutive")

	obs = tr.Observe("QQQ", types.RegimeRangeBound, 0.9, now.Add(time.Minute))
	assert.True(t, obs.CanTrade)
}

func TestLowConfidenceBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlipCooldown = 0
	tr := NewTracker(cfg, nil)
	now := time.Now()

	tr.Observe("IWM", types.RegimeTrendingUp, 0.5, now)
	obs := tr.Observe("IWM", types.RegimeTrendingUp, 0.5, now.Add(time.Minute))
	assert.False(t, obs.CanTrade)
	assert.Contains(t, obs.BlockReason, "confidence")
}

func TestUnknownTickerCannotTrade(t *testing.T) {
	tr := NewTracker(DefaultConfig(), nil)
	obs := tr.Check("TSLA", 0.9, time.Now())
	assert.False(t, obs.CanTrade)
	assert.Equal(t, types.RegimeUnknown, obs.Regime)
}

func TestStabilityScoreBounds(t *testing.T) {
	// Fresh flip with low confidence stays low; long stable regime with
	// high confidence approaches the top of the range.
	low := stabilityScore(1, 0, 0.1, 0, 900*time.Second)
	high := stabilityScore(5, time.Hour, 1.0, time.Hour, 900*time.Second)
	assert.GreaterOrEqual(t, low, 0.0)
	assert.LessOrEqual(t, high, 100.0)
	assert.Greater(t, high, low)
}
