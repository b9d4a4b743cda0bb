package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

type fakeKelly struct {
	halfKelly float64
	ok        bool
}

func (f fakeKelly) HalfKelly(types.MarketRegime, string) (float64, bool) { return f.halfKelly, f.ok }

type fakeVIXRules struct {
	mult float64
	ok   bool
}

func (f fakeVIXRules) VIXSizeMultiplier(float64) (float64, int, bool) { return f.mult, 5, f.ok }

func TestSizerStacksFactors(t *testing.T) {
	s := NewSizer(fakeKelly{halfKelly: 0.25, ok: true}, fakeVIXRules{mult: 0.8, ok: true})

	res := s.Size(SizeInput{
		BaseQuantity:    10,
		Regime:          types.RegimeTrendingUp,
		DealerPosition:  "LONG_GAMMA",
		VIX:             20,
		ConfluenceScore: 50, // factor 1.0
	})

	// 10 * 1.0 (kelly at cap) * 0.8 (vix) * 1.0 (regime) * 1.0 (dealer) * 1.0 = 8
	assert.Equal(t, 8, res.AdjustedQuantity)
	assert.False(t, res.WasLimitedByRisk)
}

func TestSizerKellyNormalizedAgainstCap(t *testing.T) {
	s := NewSizer(fakeKelly{halfKelly: 0.125, ok: true}, nil)

	res := s.Size(SizeInput{
		BaseQuantity:    10,
		Regime:          types.RegimeTrendingUp,
		ConfluenceScore: 50,
	})

	// half-Kelly at half the cap halves the base quantity.
	assert.Equal(t, 5, res.AdjustedQuantity)
}

func TestSizerRiskCap(t *testing.T) {
	s := NewSizer(nil, nil)

	res := s.Size(SizeInput{
		BaseQuantity:    20,
		Regime:          types.RegimeTrendingUp,
		ConfluenceScore: 50,
		OptionPrice:     5.00,
		PortfolioValue:  25_000,
		RiskPct:         0.02, // $500 risk budget -> 1 contract at $500 each
	})

	assert.Equal(t, 1, res.AdjustedQuantity)
	assert.True(t, res.WasLimitedByRisk)
}

func TestSizerFloorsAtOneContract(t *testing.T) {
	s := NewSizer(fakeKelly{halfKelly: 0.01, ok: true}, fakeVIXRules{mult: 0.5, ok: true})

	res := s.Size(SizeInput{
		BaseQuantity:    1,
		Regime:          types.RegimeUnknown,
		ConfluenceScore: 0,
	})

	assert.Equal(t, 1, res.AdjustedQuantity)
}

func TestSizerRecordsAdjustments(t *testing.T) {
	s := NewSizer(nil, nil)

	res := s.Size(SizeInput{
		BaseQuantity:    4,
		Regime:          types.RegimeRangeBound,
		DealerPosition:  "SHORT_GAMMA",
		ConfluenceScore: 80,
	})

	// regime 0.75, dealer 0.75, confluence 1.3
	assert.Equal(t, 2, res.AdjustedQuantity) // floor(4*0.75*0.75*1.3) = floor(2.925)
	assert.Len(t, res.Adjustments, 3)
}
