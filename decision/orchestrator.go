// Package decision fuses signals from many sources into entry/hold/exit
// verdicts: confluence scoring feeds a conflict vote, regime stability
// gates the trade, sizing and exit planning shape it, and a confidence
// breakdown decides whether it executes.
package decision

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/market"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/metrics"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/scoring"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// DecisionAction is the orchestrator's verdict.
type DecisionAction string

const (
	ActionExecute     DecisionAction = "EXECUTE"
	ActionReject      DecisionAction = "REJECT"
	ActionHold        DecisionAction = "HOLD"
	ActionPartialExit DecisionAction = "PARTIAL_EXIT"
	ActionTightenStop DecisionAction = "TIGHTEN_STOP"
	ActionExit        DecisionAction = "EXIT"
)

// Reject reasons surfaced on IntegratedDecision.RejectReason.
const (
	RejectRegimeUnstable     = "REGIME_UNSTABLE"
	RejectUnresolvedConflict = "UNRESOLVED_CONFLICT"
	RejectLowConfidence      = "LOW_CONFIDENCE"
	RejectContext            = "CONTEXT_REJECTED"
)

// ConfidenceBreakdown itemizes how the final 0-100 confidence was built.
type ConfidenceBreakdown struct {
	Base              float64
	ConfluenceImpact  float64
	RegimeImpact      float64
	ConflictImpact    float64
	GEXAlignment      float64
	RegimeAlignment   float64
	PositioningImpact float64
	ContextImpact     float64
	MTFImpact         float64
	Final             float64
}

// ExitPlan is the planned stop and profit targets for a new position.
type ExitPlan struct {
	StopLoss float64
	Target1  float64
	Target2  float64
	ATRBased bool
}

// IntegratedDecision is the orchestrator's structured output.
type IntegratedDecision struct {
	DecisionID     string
	Symbol         string
	Action         DecisionAction
	RejectReason   string
	Quantity       int
	SizeResult     SizeResult
	ExitPlan       *ExitPlan
	Confidence     float64
	Breakdown      ConfidenceBreakdown
	RulesTriggered []string
	Warnings       []string
	DecidedAt      time.Time
}

// Observer persists decisions for audit; implemented by the store package.
type Observer interface {
	RecordDecision(d *IntegratedDecision) error
}

// Config tunes the orchestrator's gates.
type Config struct {
	RequireStableRegime    bool
	AllowConflictOverride  bool
	MinConfidenceToExecute float64 // 0-100
	RiskPct                float64
	Context                ContextConfig
	Exit                   ExitConfig
}

// DefaultConfig is the production orchestration policy.
func DefaultConfig() Config {
	return Config{
		RequireStableRegime:    true,
		AllowConflictOverride:  false,
		MinConfidenceToExecute: 60,
		RiskPct:                0.02,
		Context:                DefaultContextConfig(),
		Exit:                   DefaultExitConfig(),
	}
}

// Orchestrator glues the scoring, regime, conflict, sizing and exit
// stages together.
type Orchestrator struct {
	cfg      Config
	scoring  *scoring.Engine
	sizer    *Sizer
	observer Observer
}

// NewOrchestrator builds an orchestrator. observer may be nil.
func NewOrchestrator(cfg Config, scoringEngine *scoring.Engine, sizer *Sizer, observer Observer) *Orchestrator {
	return &Orchestrator{cfg: cfg, scoring: scoringEngine, sizer: sizer, observer: observer}
}

// EntryInput is everything an entry decision considers.
type EntryInput struct {
	Signal         *types.Signal
	Scores         []SignalScore
	Context        *MarketContext
	MTF            *MTFTrend
	Regime         *types.RegimeObservation
	GEX            *market.GEXBundle
	ATR            *market.ATRContext
	OptionPrice    float64
	PortfolioValue float64
	Now            time.Time
}

// OrchestrateEntry runs the full entry sequence for a signal.
func (o *Orchestrator) OrchestrateEntry(in EntryInput) *IntegratedDecision {
	d := &IntegratedDecision{
		DecisionID: uuid.NewString(),
		Symbol:     in.Signal.Symbol,
		DecidedAt:  in.Now,
	}
	bd := ConfidenceBreakdown{Base: 50}

	// Confluence across recent completed signals for the ticker.
	confluence := o.scoring.Evaluate(in.Signal.Source, in.Signal.Symbol, in.Signal.Direction)
	if confluence.Warning != "" {
		d.Warnings = append(d.Warnings, confluence.Warning)
	}
	bd.ConfluenceImpact = confluence.ConfidenceBoost * 30
	d.RulesTriggered = append(d.RulesTriggered,
		fmt.Sprintf("confluence: %d agreeing, weighted %.2f", len(confluence.Agreeing), confluence.WeightedScore))

	// Regime stability gate.
	if in.Regime != nil {
		bd.RegimeImpact = (in.Regime.StabilityScore - 50) * 0.2
		if o.cfg.RequireStableRegime && !in.Regime.CanTrade {
			d.RulesTriggered = append(d.RulesTriggered, "regime gate: "+in.Regime.BlockReason)
			return o.finish(d, bd, ActionReject, RejectRegimeUnstable, in.Regime.BlockReason)
		}
	} else if o.cfg.RequireStableRegime {
		// Fail-closed: no observation means no stability evidence.
		return o.finish(d, bd, ActionReject, RejectRegimeUnstable, "no regime observation for ticker")
	}

	// Conflict resolution over the weighted directional votes.
	conflict := ResolveConflict(in.Scores, in.Signal.Direction, o.cfg.AllowConflictOverride)
	if conflict.DissentImpact != "" {
		d.RulesTriggered = append(d.RulesTriggered, "dissent: "+conflict.DissentImpact)
	}
	if !conflict.CanTrade {
		d.RulesTriggered = append(d.RulesTriggered, "conflict rejected: "+string(conflict.WinningDirection)+" wins the vote")
		return o.finish(d, bd, ActionReject, RejectUnresolvedConflict,
			fmt.Sprintf("weighted vote %s %.2f vs %.2f against proposal", conflict.WinningDirection, conflict.BullishScore, conflict.BearishScore))
	}
	switch conflict.Resolution {
	case ResolutionAgreed:
		bd.ConflictImpact = 5
	case ResolutionDissentAccepted:
		bd.ConflictImpact = -conflict.ConfidencePenalty * 100
		d.RulesTriggered = append(d.RulesTriggered, "conflict override accepted with reduced confidence")
	}

	// Context and MTF adjusters.
	ctxAdj := EvaluateContext(o.cfg.Context, in.Signal, true, in.Context)
	mtfAdj := EvaluateMTF(o.cfg.Context, in.Signal, in.MTF)
	if ctxAdj.ShouldReject {
		d.RulesTriggered = append(d.RulesTriggered, ctxAdj.Violations...)
		return o.finish(d, bd, ActionReject, RejectContext, ctxAdj.Reason)
	}
	if mtfAdj.ShouldReject {
		d.RulesTriggered = append(d.RulesTriggered, mtfAdj.Violations...)
		return o.finish(d, bd, ActionReject, RejectContext, mtfAdj.Reason)
	}
	d.RulesTriggered = append(d.RulesTriggered, ctxAdj.AdjustmentsApplied...)
	d.RulesTriggered = append(d.RulesTriggered, mtfAdj.AdjustmentsApplied...)
	bd.ContextImpact = ctxAdj.ConfidenceAdjustment * 100
	bd.MTFImpact = mtfAdj.ConfidenceAdjustment * 100
	if in.MTF != nil && !in.MTF.Conflict && in.MTF.AlignmentScore >= 80 {
		bd.MTFImpact += 5
	}

	// Alignment bonuses from positioning.
	bd.GEXAlignment = gexAlignment(in.GEX, in.Signal.Direction)
	bd.RegimeAlignment = regimeAlignment(in.Regime, in.Signal.Direction)
	if in.GEX != nil && in.GEX.DealerPosition == "SHORT_GAMMA" {
		// Short-gamma dealers amplify moves both ways.
		bd.PositioningImpact = -3
	}

	// Position sizing.
	confluenceScore := confluence.WeightedScore * 20 // weighted score ~0-5 mapped onto 0-100
	if confluenceScore > 100 {
		confluenceScore = 100
	}
	sizeIn := SizeInput{
		BaseQuantity:    in.Signal.Quantity,
		VIX:             vixOf(in.Context),
		ConfluenceScore: confluenceScore,
		OptionPrice:     in.OptionPrice,
		PortfolioValue:  in.PortfolioValue,
		RiskPct:         o.cfg.RiskPct,
	}
	if in.Regime != nil {
		sizeIn.Regime = in.Regime.Regime
	}
	if in.GEX != nil {
		sizeIn.DealerPosition = in.GEX.DealerPosition
	}
	size := o.sizer.Size(sizeIn)
	qty := int(float64(size.AdjustedQuantity)*ctxAdj.QuantityMultiplier*mtfAdj.QuantityMultiplier + 0.5)
	if qty < 1 {
		qty = 1
	}
	d.SizeResult = size
	d.Quantity = qty
	if size.WasLimitedByRisk {
		d.RulesTriggered = append(d.RulesTriggered, "size limited by portfolio risk cap")
	}

	// Exit planning: ATR-scaled when the context has ATR, fixed otherwise.
	d.ExitPlan = planExit(o.cfg.Exit, in.OptionPrice, in.ATR)

	// Confidence roll-up.
	final := bd.Base + bd.ConfluenceImpact + bd.RegimeImpact + bd.ConflictImpact +
		bd.GEXAlignment + bd.RegimeAlignment + bd.PositioningImpact + bd.ContextImpact + bd.MTFImpact
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}
	bd.Final = final

	if final < o.cfg.MinConfidenceToExecute {
		return o.finish(d, bd, ActionReject, RejectLowConfidence,
			fmt.Sprintf("confidence %.1f below %.1f", final, o.cfg.MinConfidenceToExecute))
	}
	return o.finish(d, bd, ActionExecute, "", "")
}

// HoldInput is a held position plus its current observations.
type HoldInput struct {
	Position      *types.Position
	CurrentPrice  float64
	CurrentRegime types.MarketRegime
	Now           time.Time
}

// OrchestrateHold re-evaluates an open position between exits: HOLD by
// default, bank half on an unfavorable regime change with profit, move
// the stop to breakeven once up 25%, and bail outright at 1 DTE with a
// loss.
func (o *Orchestrator) OrchestrateHold(in HoldInput) *IntegratedDecision {
	d := &IntegratedDecision{
		DecisionID: uuid.NewString(),
		Symbol:     in.Position.Symbol,
		Action:     ActionHold,
		DecidedAt:  in.Now,
	}

	entry := in.Position.AvgOpenPrice
	pnlPct := 0.0
	if entry > 0 && in.CurrentPrice > 0 {
		pnlPct = (in.CurrentPrice - entry) / entry
		if !in.Position.IsLong() {
			pnlPct = -pnlPct
		}
	}

	switch {
	case in.Position.DTE(in.Now) <= 1 && pnlPct < 0:
		d.Action = ActionExit
		d.RulesTriggered = append(d.RulesTriggered, "1 DTE with loss")
	case in.CurrentRegime != "" && in.Position.EntryMarketRegime != "" &&
		in.CurrentRegime != in.Position.EntryMarketRegime &&
		regimeOpposes(in.CurrentRegime, positionDirection(in.Position)) && pnlPct > 0:
		d.Action = ActionPartialExit
		d.Quantity = partialQty(absInt(in.Position.Quantity), 0.5)
		d.RulesTriggered = append(d.RulesTriggered, fmt.Sprintf("regime moved to %s against position", in.CurrentRegime))
	case pnlPct >= 0.25:
		d.Action = ActionTightenStop
		d.ExitPlan = &ExitPlan{StopLoss: entry}
		d.RulesTriggered = append(d.RulesTriggered, fmt.Sprintf("up %.1f%%, stop to breakeven", pnlPct*100))
	}

	o.record(d)
	return d
}

// OrchestrateExit delegates to the exit engine.
func (o *Orchestrator) OrchestrateExit(in ExitInput) (*IntegratedDecision, *ExitEvaluation) {
	eval := EvaluateExit(o.cfg.Exit, in)

	d := &IntegratedDecision{
		DecisionID: uuid.NewString(),
		Symbol:     in.Position.Symbol,
		DecidedAt:  in.Now,
	}
	switch eval.Action {
	case ExitCloseFull:
		d.Action = ActionExit
		d.Quantity = eval.Quantity
	case ExitClosePartial:
		d.Action = ActionPartialExit
		d.Quantity = eval.Quantity
	case ExitTightenStop:
		d.Action = ActionTightenStop
		d.ExitPlan = &ExitPlan{StopLoss: eval.NewStopLoss}
	default:
		d.Action = ActionHold
	}
	if eval.Trigger != "" {
		d.RulesTriggered = append(d.RulesTriggered, eval.Trigger+": "+eval.Reason)
	}

	o.record(d)
	return d, eval
}

func (o *Orchestrator) finish(d *IntegratedDecision, bd ConfidenceBreakdown, action DecisionAction, rejectReason, detail string) *IntegratedDecision {
	if bd.Final == 0 && action == ActionReject {
		final := bd.Base + bd.ConfluenceImpact + bd.RegimeImpact + bd.ConflictImpact +
			bd.GEXAlignment + bd.RegimeAlignment + bd.PositioningImpact + bd.ContextImpact + bd.MTFImpact
		if final < 0 {
			final = 0
		}
		if final > 100 {
			final = 100
		}
		bd.Final = final
	}
	d.Action = action
	d.RejectReason = rejectReason
	d.Confidence = bd.Final
	d.Breakdown = bd
	if detail != "" && rejectReason != "" {
		d.RulesTriggered = append(d.RulesTriggered, rejectReason+": "+detail)
	}
	o.record(d)
	return d
}

func (o *Orchestrator) record(d *IntegratedDecision) {
	metrics.RecordDecision(string(d.Action), d.RejectReason)
	if o.observer == nil {
		return
	}
	if err := o.observer.RecordDecision(d); err != nil {
		logger.Warnf("decision: record %s failed: %v", d.DecisionID, err)
	}
}

// planExit derives the stop and targets for a new entry.
func planExit(cfg ExitConfig, entryPrice float64, atr *market.ATRContext) *ExitPlan {
	if entryPrice <= 0 {
		return nil
	}
	if atr != nil && atr.ATR > 0 {
		k := 1.0 + atr.ATRPercentile/100
		return &ExitPlan{
			StopLoss: entryPrice - k*atr.ATR,
			Target1:  entryPrice + 1.5*atr.ATR,
			Target2:  entryPrice + 3.0*atr.ATR,
			ATRBased: true,
		}
	}
	return &ExitPlan{
		StopLoss: entryPrice * (1 - cfg.StopLossPercent),
		Target1:  entryPrice * (1 + cfg.ProfitTarget1),
		Target2:  entryPrice * (1 + cfg.ProfitTarget2),
	}
}

func gexAlignment(gex *market.GEXBundle, dir types.Direction) float64 {
	if gex == nil || dir == types.Neutral {
		return 0
	}
	// Positive net gamma dampens moves toward the zero-gamma pivot; treat
	// long-gamma dealers as mildly supportive, short-gamma as mildly
	// against whichever way the trade leans.
	if gex.DealerPosition == "LONG_GAMMA" {
		return 5
	}
	return -5
}

func regimeAlignment(obs *types.RegimeObservation, dir types.Direction) float64 {
	if obs == nil {
		return 0
	}
	switch {
	case dir == types.Bullish && (obs.Regime == types.RegimeTrendingUp || obs.Regime == types.RegimeReversalUp):
		return 8
	case dir == types.Bearish && (obs.Regime == types.RegimeTrendingDown || obs.Regime == types.RegimeReversalDown):
		return 8
	case regimeOpposes(obs.Regime, dir):
		return -8
	default:
		return 0
	}
}

func vixOf(ctx *MarketContext) float64 {
	if ctx == nil {
		return 0
	}
	return ctx.VIX
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
