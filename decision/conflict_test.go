package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

func TestResolveConflictAgreed(t *testing.T) {
	scores := []SignalScore{
		{Source: types.SourceUltimateOption, Direction: types.Bullish, Weight: 1.6},
		{Source: types.SourceMTFTrendDots, Direction: types.Bullish, Weight: 1.5},
		{Source: types.SourceTradingView, Direction: types.Bearish, Weight: 0.7},
	}

	res := ResolveConflict(scores, types.Bullish, false)
	assert.True(t, res.CanTrade)
	assert.Equal(t, ResolutionAgreed, res.Resolution)
	assert.Equal(t, types.Bullish, res.WinningDirection)
	assert.Equal(t, []types.Source{types.SourceTradingView}, res.Dissenters)
	assert.Contains(t, res.DissentImpact, "tradingview")
}

func TestResolveConflictRejected(t *testing.T) {
	scores := []SignalScore{
		{Source: types.SourceUltimateOption, Direction: types.Bearish, Weight: 1.6},
		{Source: types.SourceTradingView, Direction: types.Bullish, Weight: 0.7},
	}

	res := ResolveConflict(scores, types.Bullish, false)
	assert.False(t, res.CanTrade)
	assert.Equal(t, ResolutionConflictRejected, res.Resolution)
	assert.Equal(t, types.Bearish, res.WinningDirection)
}

func TestResolveConflictOverrideAcceptsWithPenalty(t *testing.T) {
	scores := []SignalScore{
		{Source: types.SourceUltimateOption, Direction: types.Bearish, Weight: 1.6},
		{Source: types.SourceTradingView, Direction: types.Bullish, Weight: 0.7},
	}

	res := ResolveConflict(scores, types.Bullish, true)
	assert.True(t, res.CanTrade)
	assert.Equal(t, ResolutionDissentAccepted, res.Resolution)
	assert.Greater(t, res.ConfidencePenalty, 0.0)
}

func TestResolveConflictTie(t *testing.T) {
	scores := []SignalScore{
		{Source: types.SourceORBOrb, Direction: types.Bullish, Weight: 1.0},
		{Source: types.SourceORBOrb, Direction: types.Bearish, Weight: 1.0},
	}

	res := ResolveConflict(scores, types.Bullish, false)
	assert.Equal(t, DirectionTie, res.WinningDirection)
	assert.False(t, res.CanTrade)
}
