package decision

import (
	"fmt"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/market"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// VIXBucket classifies the volatility environment.
type VIXBucket string

const (
	VIXLow     VIXBucket = "LOW_VOL"
	VIXNormal  VIXBucket = "NORMAL_VOL"
	VIXHigh    VIXBucket = "HIGH_VOL"
	VIXExtreme VIXBucket = "EXTREME_VOL"
)

// BucketVIX maps a VIX level to its bucket.
func BucketVIX(vix float64) VIXBucket {
	switch {
	case vix < 15:
		return VIXLow
	case vix < 25:
		return VIXNormal
	case vix < 35:
		return VIXHigh
	default:
		return VIXExtreme
	}
}

// MarketContext is the advisory market snapshot the adjusters score a
// signal against. Any zero-valued field simply contributes nothing.
type MarketContext struct {
	VIX           float64
	Schedule      *market.Schedule
	MarketBias    types.Direction // broad-market direction
	ORBreakout    types.Direction // opening-range breakout direction, NEUTRAL if none
	NearResistance bool
	NearSupport    bool
	BBOverbought   bool
	BBOversold     bool
	CandlePattern  types.Direction // candle pattern direction, NEUTRAL if none
	CandleStrength float64         // 0-1
	ATRPercentile  float64         // 0-100
	StaleSources   []string        // data feeds older than their freshness budget
}

// MTFMode controls how hard a multi-timeframe conflict blocks an entry.
type MTFMode string

const (
	MTFStrict   MTFMode = "STRICT"
	MTFAdvisory MTFMode = "ADVISORY"
)

// MTFTrend is the multi-timeframe alignment summary for an underlying.
type MTFTrend struct {
	Bias           types.Direction
	AlignmentScore float64 // 0-100 agreement across timeframes
	Conflict       bool    // higher timeframes disagree with the signal
}

// ContextConfig holds the adjusters' policy switches.
type ContextConfig struct {
	RequireMarketOpen             bool
	MaxVixForNewPositions         float64
	AllowFirst30Min               bool
	RequireMarketAlignment        bool
	RequireOrBreakoutConfirmation bool
	MTFMode                       MTFMode
}

// DefaultContextConfig is the production adjuster policy.
func DefaultContextConfig() ContextConfig {
	return ContextConfig{
		RequireMarketOpen:     true,
		MaxVixForNewPositions: 35,
		AllowFirst30Min:       true,
		MTFMode:               MTFAdvisory,
	}
}

// Adjustment is the outcome of one adjuster pass: a size multiplier, a
// confidence delta and the reasons behind both.
type Adjustment struct {
	QuantityMultiplier   float64
	ConfidenceAdjustment float64
	Violations           []string
	ShouldReject         bool
	Reason               string
	AdjustmentsApplied   []string
}

func newAdjustment() *Adjustment {
	return &Adjustment{QuantityMultiplier: 1.0}
}

func (a *Adjustment) reject(reason string) {
	a.ShouldReject = true
	a.Violations = append(a.Violations, reason)
	if a.Reason == "" {
		a.Reason = reason
	}
}

func (a *Adjustment) scale(mult float64, why string) {
	a.QuantityMultiplier *= mult
	a.AdjustmentsApplied = append(a.AdjustmentsApplied, fmt.Sprintf("size x%.2f: %s", mult, why))
}

func (a *Adjustment) nudge(delta float64, why string) {
	a.ConfidenceAdjustment += delta
	a.AdjustmentsApplied = append(a.AdjustmentsApplied, fmt.Sprintf("confidence %+.2f: %s", delta, why))
}

// finalize applies the multiplier floor.
func (a *Adjustment) finalize() *Adjustment {
	if a.QuantityMultiplier < 0.25 {
		a.QuantityMultiplier = 0.25
	}
	return a
}

// ApplyConfidence applies the accumulated delta to base and clamps the
// result into the tradable band.
func (a *Adjustment) ApplyConfidence(base float64) float64 {
	c := base + a.ConfidenceAdjustment
	if c < 0.3 {
		c = 0.3
	}
	if c > 1.0 {
		c = 1.0
	}
	return c
}

// EvaluateContext scores a signal against the market snapshot: hard
// rejects first, then size multipliers and confidence deltas.
func EvaluateContext(cfg ContextConfig, sig *types.Signal, opening bool, ctx *MarketContext) *Adjustment {
	adj := newAdjustment()
	if ctx == nil {
		// No market data is advisory, not fatal.
		adj.nudge(-0.10, "market context unavailable")
		return adj.finalize()
	}

	if cfg.RequireMarketOpen && ctx.Schedule != nil && !ctx.Schedule.IsOpen {
		adj.reject("market is closed")
	}
	if opening && cfg.MaxVixForNewPositions > 0 && ctx.VIX > cfg.MaxVixForNewPositions {
		adj.reject(fmt.Sprintf("VIX %.1f above %.1f cap for new positions", ctx.VIX, cfg.MaxVixForNewPositions))
	}
	first30 := ctx.Schedule != nil && ctx.Schedule.IsFirst30Min
	if first30 && !cfg.AllowFirst30Min {
		adj.reject("entries disabled during first 30 minutes")
	}
	if cfg.RequireMarketAlignment && ctx.MarketBias != types.Neutral && ctx.MarketBias != "" && sig.Direction != ctx.MarketBias {
		adj.reject(fmt.Sprintf("signal %s against market bias %s", sig.Direction, ctx.MarketBias))
	}
	if cfg.RequireOrBreakoutConfirmation && ctx.ORBreakout != types.Neutral && ctx.ORBreakout != "" && sig.Direction != ctx.ORBreakout {
		adj.reject(fmt.Sprintf("signal %s against opening-range breakout %s", sig.Direction, ctx.ORBreakout))
	}
	if adj.ShouldReject {
		return adj.finalize()
	}

	if BucketVIX(ctx.VIX) == VIXHigh || BucketVIX(ctx.VIX) == VIXExtreme {
		adj.scale(0.5, fmt.Sprintf("high volatility, VIX %.1f", ctx.VIX))
	}
	if ctx.ATRPercentile > 80 {
		adj.scale(0.75, fmt.Sprintf("ATR percentile %.0f", ctx.ATRPercentile))
	}

	for _, src := range ctx.StaleSources {
		adj.nudge(-0.10, "stale data source: "+src)
	}
	if first30 {
		adj.nudge(-0.10, "first 30 minutes of session")
	}
	if ctx.MarketBias != types.Neutral && ctx.MarketBias != "" && sig.Direction != ctx.MarketBias {
		adj.nudge(-0.15, "market divergence")
	}
	if (sig.Direction == types.Bullish && ctx.NearResistance) || (sig.Direction == types.Bearish && ctx.NearSupport) {
		adj.nudge(-0.10, "near key level")
	}
	if ctx.ORBreakout == sig.Direction && sig.Direction != types.Neutral {
		adj.nudge(0.10, "opening-range breakout confirmation")
	}
	if ctx.CandlePattern == sig.Direction && sig.Direction != types.Neutral {
		adj.nudge(0.05, "candle pattern alignment")
		if ctx.CandleStrength >= 0.8 {
			adj.nudge(0.03, "strong candle")
		}
	}
	if (sig.Direction == types.Bullish && ctx.BBOverbought) || (sig.Direction == types.Bearish && ctx.BBOversold) {
		adj.nudge(-0.10, "bollinger band extreme")
	}

	return adj.finalize()
}

// EvaluateMTF scores a signal against the multi-timeframe trend summary.
func EvaluateMTF(cfg ContextConfig, sig *types.Signal, trend *MTFTrend) *Adjustment {
	adj := newAdjustment()
	if trend == nil {
		adj.nudge(-0.10, "multi-timeframe data unavailable")
		return adj.finalize()
	}

	conflicting := trend.Conflict ||
		(trend.Bias != types.Neutral && trend.Bias != "" && sig.Direction != types.Neutral && trend.Bias != sig.Direction)

	if conflicting && cfg.MTFMode == MTFStrict {
		adj.reject(fmt.Sprintf("multi-timeframe bias %s conflicts with signal %s", trend.Bias, sig.Direction))
		return adj.finalize()
	}

	if conflicting {
		adj.scale(0.75, "multi-timeframe conflict")
	} else if trend.AlignmentScore >= 80 {
		adj.scale(1.25, fmt.Sprintf("strong multi-timeframe alignment %.0f", trend.AlignmentScore))
	}

	return adj.finalize()
}
