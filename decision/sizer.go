package decision

import (
	"fmt"
	"math"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// KellyProvider looks up the half-Kelly fraction for a regime+dealer
// bucket from historical performance. ok=false means no history yet.
type KellyProvider interface {
	HalfKelly(regime types.MarketRegime, dealerPosition string) (float64, bool)
}

// VIXRuleProvider looks up the size multiplier for the current VIX from
// the bucketed sizing rules table.
type VIXRuleProvider interface {
	VIXSizeMultiplier(vix float64) (mult float64, maxPositions int, ok bool)
}

// regimeSizeFactor shades quantity by how directional the regime is.
var regimeSizeFactor = map[types.MarketRegime]float64{
	types.RegimeTrendingUp:       1.0,
	types.RegimeTrendingDown:     1.0,
	types.RegimeRangeBound:       0.75,
	types.RegimeBreakoutImminent: 0.85,
	types.RegimeReversalUp:       0.9,
	types.RegimeReversalDown:     0.9,
	types.RegimeUnknown:          0.5,
}

// dealerGammaFactor shades quantity by dealer positioning: short-gamma
// dealers amplify moves, so size down.
var dealerGammaFactor = map[string]float64{
	"LONG_GAMMA":  1.0,
	"SHORT_GAMMA": 0.75,
}

// maxKellyFraction caps how much of the half-Kelly suggestion is honored.
const maxKellyFraction = 0.25

// SizeAdjustment records one factor applied during sizing.
type SizeAdjustment struct {
	Factor float64
	Reason string
}

// SizeInput is everything the sizer needs for one entry.
type SizeInput struct {
	BaseQuantity    int
	Regime          types.MarketRegime
	DealerPosition  string
	VIX             float64
	ConfluenceScore float64 // 0-100
	OptionPrice     float64
	PortfolioValue  float64
	RiskPct         float64 // fraction of portfolio risked per trade
}

// SizeResult is the adjusted contract count plus the factor breakdown.
type SizeResult struct {
	AdjustedQuantity int
	WasLimitedByRisk bool
	Adjustments      []SizeAdjustment
}

// Sizer computes position size from the base quantity and the stacked
// multiplier tables.
type Sizer struct {
	kelly KellyProvider
	vix   VIXRuleProvider
}

func NewSizer(kelly KellyProvider, vix VIXRuleProvider) *Sizer {
	return &Sizer{kelly: kelly, vix: vix}
}

// Size applies each factor multiplicatively, then the portfolio risk cap,
// then the one-contract floor.
func (s *Sizer) Size(in SizeInput) SizeResult {
	res := SizeResult{}
	qty := float64(in.BaseQuantity)

	if s.kelly != nil {
		if halfKelly, ok := s.kelly.HalfKelly(in.Regime, in.DealerPosition); ok {
			k := halfKelly
			if k > maxKellyFraction {
				k = maxKellyFraction
			}
			if k < 0 {
				k = 0
			}
			// Normalize against the cap so a full-cap Kelly keeps base size.
			factor := k / maxKellyFraction
			qty *= factor
			res.Adjustments = append(res.Adjustments, SizeAdjustment{
				Factor: factor,
				Reason: fmt.Sprintf("half-Kelly %.3f for %s/%s", halfKelly, in.Regime, in.DealerPosition),
			})
		}
	}

	if s.vix != nil {
		if mult, _, ok := s.vix.VIXSizeMultiplier(in.VIX); ok {
			qty *= mult
			res.Adjustments = append(res.Adjustments, SizeAdjustment{
				Factor: mult,
				Reason: fmt.Sprintf("VIX rule at %.1f", in.VIX),
			})
		}
	}

	if factor, ok := regimeSizeFactor[in.Regime]; ok && factor != 1.0 {
		qty *= factor
		res.Adjustments = append(res.Adjustments, SizeAdjustment{
			Factor: factor,
			Reason: fmt.Sprintf("regime %s", in.Regime),
		})
	}

	if factor, ok := dealerGammaFactor[in.DealerPosition]; ok && factor != 1.0 {
		qty *= factor
		res.Adjustments = append(res.Adjustments, SizeAdjustment{
			Factor: factor,
			Reason: fmt.Sprintf("dealer %s", in.DealerPosition),
		})
	}

	confluenceFactor := 0.5 + in.ConfluenceScore/100
	qty *= confluenceFactor
	res.Adjustments = append(res.Adjustments, SizeAdjustment{
		Factor: confluenceFactor,
		Reason: fmt.Sprintf("confluence score %.0f", in.ConfluenceScore),
	})

	adjusted := int(math.Floor(qty))

	if in.OptionPrice > 0 && in.PortfolioValue > 0 && in.RiskPct > 0 {
		maxByRisk := int(math.Floor(in.PortfolioValue * in.RiskPct / (in.OptionPrice * 100)))
		if adjusted > maxByRisk {
			adjusted = maxByRisk
			res.WasLimitedByRisk = true
			res.Adjustments = append(res.Adjustments, SizeAdjustment{
				Factor: 0,
				Reason: fmt.Sprintf("risk cap: max %d contracts at %.1f%% of portfolio", maxByRisk, in.RiskPct*100),
			})
		}
	}

	if adjusted < 1 {
		adjusted = 1
	}
	res.AdjustedQuantity = adjusted
	return res
}
