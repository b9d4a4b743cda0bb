// Package scoring implements the confluence engine: a
// per-source weight table, cross-source agreement scoring, and the tiered
// confidence boost applied once multiple sources agree.
package scoring

import (
	"time"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// SignalHistory is the read-only history lookup the confluence engine
// needs; implemented by the store package so this package stays free of a
// persistence dependency.
type SignalHistory interface {
	RecentCompletedSignals(symbol string, lookback time.Duration) ([]*types.Signal, error)
}

// WeightTable gives each signal source its relative influence on the
// confluence score.
var WeightTable = map[types.Source]float64{
	types.SourceUltimateOption:      1.6,
	types.SourceMTFTrendDots:        1.5,
	types.SourceStratEngineV6:       1.4,
	types.SourceORBStretch:          1.3,
	types.SourceORBOrb:              1.0,
	types.SourceSatyPhase:           0.8,
	types.SourceTradingView:         0.7,
	types.SourceORBEma:              0.5,
	types.SourceORBBhch:             0.4,
	types.SourceTwelveDataTechnical: 1.4,
}

// Config tunes the approval rule and confidence boost.
type Config struct {
	LookbackMinutes int
	MinAgree        int
	MinWeighted     float64
	RequirePrimary  bool
	PrimarySources  map[types.Source]bool
	ADXStrong       bool // caller-supplied technical-indicator flag
}

// DefaultConfig holds the baseline approval thresholds.
func DefaultConfig() Config {
	return Config{
		LookbackMinutes: 20,
		MinAgree:        2,
		MinWeighted:     1.8,
		RequirePrimary:  false,
		PrimarySources: map[types.Source]bool{
			types.SourceUltimateOption: true,
			types.SourceMTFTrendDots:   true,
		},
	}
}

// Result is the confluence engine's verdict for one ticker+direction.
type Result struct {
	Approved       bool
	WeightedScore  float64
	Agreeing       []types.Source
	Conflicting    []types.Source
	Neutral        []types.Source
	ConfidenceBoost float64
	Warning        string // non-empty on fail-open
}

// Engine is the Scoring & Confluence Engine.
type Engine struct {
	cfg     Config
	history SignalHistory
}

func NewEngine(cfg Config, history SignalHistory) *Engine {
	return &Engine{cfg: cfg, history: history}
}

// Evaluate scores the cross-source confluence for symbol around the
// candidate direction. source is the signal currently being decided; it
// only matters on the fail-open path.
func (e *Engine) Evaluate(source types.Source, symbol string, direction types.Direction) Result {
	lookback := time.Duration(e.cfg.LookbackMinutes) * time.Minute

	signals, err := e.history.RecentCompletedSignals(symbol, lookback)
	if err != nil {
		// Fail-open: on data store error, approve with just the current
		// source counted and a warning flag.
		return Result{
			Approved:      true,
			Agreeing:      []types.Source{source},
			WeightedScore: WeightTable[source],
			Warning:       "scoring: data store error, fail-open with single-source approval: " + err.Error(),
		}
	}

	// Deduplicate by source, most recent wins.
	bySource := make(map[types.Source]*types.Signal)
	for _, s := range signals {
		existing, ok := bySource[s.Source]
		if !ok || s.CreatedAt.After(existing.CreatedAt) {
			bySource[s.Source] = s
		}
	}

	var agreeing, conflicting, neutral []types.Source
	var weightedScore float64
	for source, sig := range bySource {
		weight := WeightTable[source]
		switch {
		case sig.Direction == direction && direction != types.Neutral:
			agreeing = append(agreeing, source)
			weightedScore += weight
		case sig.Direction != types.Neutral && sig.Direction != direction:
			conflicting = append(conflicting, source)
		default:
			neutral = append(neutral, source)
		}
	}

	hasPrimary := false
	for _, s := range agreeing {
		if e.cfg.PrimarySources[s] {
			hasPrimary = true
			break
		}
	}

	approved := len(agreeing) >= e.cfg.MinAgree &&
		weightedScore >= e.cfg.MinWeighted &&
		len(conflicting) < len(agreeing) &&
		(!e.cfg.RequirePrimary || hasPrimary)

	boost := confidenceBoost(len(agreeing), hasPrimary, weightedScore, len(conflicting), e.cfg.ADXStrong)

	return Result{
		Approved:        approved,
		WeightedScore:   weightedScore,
		Agreeing:        agreeing,
		Conflicting:     conflicting,
		Neutral:         neutral,
		ConfidenceBoost: boost,
	}
}

// confidenceBoost applies a tiered boost: 2 agreeing sources +0.15, 3
// +0.30, 4+ +0.50; primary agreement +0.10; weighted score >=4.0 +0.15
// (>=3.0 +0.08); technical ADX STRONG +0.10; conflicting sources apply a
// penalty of max(0.3, 1-0.25*conflicts); final value capped at 1.0.
func confidenceBoost(agreeingCount int, hasPrimary bool, weightedScore float64, conflictCount int, adxStrong bool) float64 {
	var boost float64
	switch {
	case agreeingCount >= 4:
		boost = 0.50
	case agreeingCount == 3:
		boost = 0.30
	case agreeingCount == 2:
		boost = 0.15
	}

	if hasPrimary {
		boost += 0.10
	}
	switch {
	case weightedScore >= 4.0:
		boost += 0.15
	case weightedScore >= 3.0:
		boost += 0.08
	}
	if adxStrong {
		boost += 0.10
	}

	if conflictCount > 0 {
		penalty := 1 - 0.25*float64(conflictCount)
		if penalty < 0.3 {
			penalty = 0.3
		}
		boost *= penalty
	}

	if boost > 1.0 {
		boost = 1.0
	}
	return boost
}
