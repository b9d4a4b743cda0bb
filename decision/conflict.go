package decision

import (
	"fmt"
	"strings"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// DirectionTie is the conflict resolver's verdict when bullish and bearish
// weight are equal.
const DirectionTie types.Direction = "TIE"

// Resolution classifies how a directional conflict was settled.
type Resolution string

const (
	ResolutionAgreed           Resolution = "AGREED"
	ResolutionConflictRejected Resolution = "CONFLICT_REJECTED"
	ResolutionDissentAccepted  Resolution = "DISSENT_ACCEPTED"
)

// SignalScore is one source's weighted directional vote, the unit the
// conflict resolver and orchestrator work over.
type SignalScore struct {
	Source     types.Source
	Direction  types.Direction
	Weight     float64
	Confidence float64
	Stale      bool
}

// ConflictResult is the weighted bullish-vs-bearish vote outcome.
type ConflictResult struct {
	CanTrade          bool
	WinningDirection  types.Direction
	Resolution        Resolution
	BullishScore      float64
	BearishScore      float64
	Dissenters        []types.Source
	DissentImpact     string
	ConfidencePenalty float64
}

// ResolveConflict sums weighted scores for bullish vs bearish sources and
// decides whether the proposed direction may proceed. With allowOverride,
// a losing or tied proposal still trades but carries a confidence penalty.
func ResolveConflict(scores []SignalScore, proposed types.Direction, allowOverride bool) ConflictResult {
	var bullish, bearish float64
	for _, s := range scores {
		switch s.Direction {
		case types.Bullish:
			bullish += s.Weight
		case types.Bearish:
			bearish += s.Weight
		}
	}

	winning := DirectionTie
	if bullish > bearish {
		winning = types.Bullish
	} else if bearish > bullish {
		winning = types.Bearish
	}

	var dissenters []types.Source
	for _, s := range scores {
		if s.Direction != types.Neutral && s.Direction != winning && winning != DirectionTie {
			dissenters = append(dissenters, s.Source)
		}
	}

	res := ConflictResult{
		WinningDirection: winning,
		BullishScore:     bullish,
		BearishScore:     bearish,
		Dissenters:       dissenters,
	}
	if len(dissenters) > 0 {
		names := make([]string, len(dissenters))
		for i, d := range dissenters {
			names[i] = string(d)
		}
		res.DissentImpact = fmt.Sprintf("%d dissenting source(s): %s", len(dissenters), strings.Join(names, ", "))
	}

	switch {
	case winning == proposed:
		res.CanTrade = true
		res.Resolution = ResolutionAgreed
	case allowOverride:
		res.CanTrade = true
		res.Resolution = ResolutionDissentAccepted
		res.ConfidencePenalty = 0.15
	default:
		res.CanTrade = false
		res.Resolution = ResolutionConflictRejected
	}
	return res
}
