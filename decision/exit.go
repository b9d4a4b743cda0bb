package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/market"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// ExitAction is what to do with the position.
type ExitAction string

const (
	ExitHold         ExitAction = "HOLD"
	ExitClosePartial ExitAction = "CLOSE_PARTIAL"
	ExitCloseFull    ExitAction = "CLOSE_FULL"
	ExitTightenStop  ExitAction = "TIGHTEN_STOP"
)

// ExitUrgency is how fast the action must happen.
type ExitUrgency string

const (
	UrgencyImmediate ExitUrgency = "IMMEDIATE"
	UrgencySoon      ExitUrgency = "SOON"
	UrgencyOptional  ExitUrgency = "OPTIONAL"
)

// Exit rule triggers.
const (
	TriggerATRStop      = "ATR_STOP"
	TriggerProfitT1     = "PROFIT_TARGET_1"
	TriggerProfitT2     = "PROFIT_TARGET_2"
	TriggerStopLoss     = "STOP_LOSS"
	TriggerTrailingStop = "TRAILING_STOP"
	TriggerDTELimit     = "DTE_LIMIT"
	TriggerMaxDays      = "MAX_DAYS_IN_TRADE"
	TriggerDeepITM      = "DEEP_ITM"
	TriggerThetaDecay   = "THETA_DECAY"
	TriggerIVCrush      = "IV_CRUSH"
	TriggerGEXFlip      = "GEX_FLIP"
	TriggerRegimeChange = "REGIME_CHANGE"
)

// ExitEvaluation is the per-position verdict.
type ExitEvaluation struct {
	Action             ExitAction
	Urgency            ExitUrgency
	Trigger            string
	Quantity           int
	NewStopLoss        float64
	SuggestedOrderType types.OrderType
	Reason             string
}

// ExitConfig holds the exit rule thresholds. Percentages are fractions of
// entry premium unless noted.
type ExitConfig struct {
	ProfitTarget1    float64 // runup that takes the first partial
	PartialT1        float64 // fraction of contracts to close at T1
	ProfitTarget2    float64
	PartialT2        float64
	TrailPercent     float64 // drawdown from high-water mark
	TrailArmRunup    float64 // runup that arms the trailing stop
	StopLossPercent  float64 // loss of entry premium that force-closes
	DTESoon          int
	MaxDaysInTrade   int
	DeltaDeepITM     float64
	ThetaDecayPerDay float64 // daily theta as a fraction of current price
	IVCrushDrop      float64 // relative IV drop vs entry
	UseEnhanced      bool    // ATR-scaled targets instead of fixed runups
}

// DefaultExitConfig is the production exit policy.
func DefaultExitConfig() ExitConfig {
	return ExitConfig{
		ProfitTarget1:    0.30,
		PartialT1:        0.25,
		ProfitTarget2:    0.60,
		PartialT2:        0.50,
		TrailPercent:     0.20,
		TrailArmRunup:    0.25,
		StopLossPercent:  0.75,
		DTESoon:          5,
		MaxDaysInTrade:   14,
		DeltaDeepITM:     0.82,
		ThetaDecayPerDay: 0.04,
		IVCrushDrop:      0.20,
	}
}

// ExitInput is a position plus the latest market observations.
type ExitInput struct {
	Position      *types.Position
	CurrentPrice  float64
	Greeks        *types.Greeks
	ATR           *market.ATRContext
	EntryIV       float64 // 0 when unknown
	GEXFlipped    bool    // dealer positioning flipped against the position
	CurrentRegime types.MarketRegime
	Now           time.Time
}

// EvaluateExit walks the exit rules in priority order and returns the
// first that fires, or HOLD. The GEX-flip rule runs after the threshold
// and Greeks rules (only the regime-change partial comes after it) and
// overrides a HOLD even when every threshold rule passed.
func EvaluateExit(cfg ExitConfig, in ExitInput) *ExitEvaluation {
	pos := in.Position
	entry := pos.AvgOpenPrice
	if entry <= 0 || in.CurrentPrice <= 0 {
		return hold("no usable prices")
	}

	pnlPct := (in.CurrentPrice - entry) / entry
	if !pos.IsLong() {
		pnlPct = -pnlPct
	}
	absQty := pos.Quantity
	if absQty < 0 {
		absQty = -absQty
	}
	dte := pos.DTE(in.Now)

	t1, t2 := cfg.ProfitTarget1, cfg.ProfitTarget2
	if cfg.UseEnhanced && in.ATR != nil && in.ATR.ATR > 0 {
		// ATR-scaled targets supersede the fixed runups.
		t1 = 1.5 * in.ATR.ATR / entry
		t2 = 3.0 * in.ATR.ATR / entry
	}

	// 1. ATR stop. k widens with the ATR percentile so a quiet tape keeps
	// the stop tight.
	if in.ATR != nil && in.ATR.ATR > 0 {
		k := 1.0 + in.ATR.ATRPercentile/100
		stop := entry - k*in.ATR.ATR
		if pos.IsLong() && in.CurrentPrice <= stop {
			return &ExitEvaluation{
				Action:             ExitCloseFull,
				Urgency:            UrgencyImmediate,
				Trigger:            TriggerATRStop,
				Quantity:           absQty,
				SuggestedOrderType: types.OrderMarket,
				Reason:             fmt.Sprintf("price %.2f through ATR stop %.2f (k=%.2f)", in.CurrentPrice, stop, k),
			}
		}
	}

	// 2. Profit targets, then trailing on the remainder.
	if pnlPct >= t2 && pos.PartialExitsTaken == 1 {
		return &ExitEvaluation{
			Action:             ExitClosePartial,
			Urgency:            UrgencySoon,
			Trigger:            TriggerProfitT2,
			Quantity:           partialQty(absQty, cfg.PartialT2),
			NewStopLoss:        entry * (1 + t1),
			SuggestedOrderType: types.OrderLimit,
			Reason:             fmt.Sprintf("up %.1f%%, second partial", pnlPct*100),
		}
	}
	if pnlPct >= t1 && pos.PartialExitsTaken == 0 {
		return &ExitEvaluation{
			Action:             ExitClosePartial,
			Urgency:            UrgencySoon,
			Trigger:            TriggerProfitT1,
			Quantity:           partialQty(absQty, cfg.PartialT1),
			NewStopLoss:        entry, // breakeven
			SuggestedOrderType: types.OrderLimit,
			Reason:             fmt.Sprintf("up %.1f%%, first partial, stop to breakeven", pnlPct*100),
		}
	}
	if pos.PartialExitsTaken >= 2 && pos.HighWaterMark > 0 {
		drawdown := trailDrawdown(pos, in.CurrentPrice, entry)
		if drawdown >= cfg.TrailPercent {
			return &ExitEvaluation{
				Action:             ExitCloseFull,
				Urgency:            UrgencySoon,
				Trigger:            TriggerTrailingStop,
				Quantity:           absQty,
				SuggestedOrderType: types.OrderLimit,
				Reason:             fmt.Sprintf("gave back %.1f%% from high after partials", drawdown*100),
			}
		}
	}

	// 3. Absolute stop loss on the premium.
	if pnlPct <= -cfg.StopLossPercent {
		return &ExitEvaluation{
			Action:             ExitCloseFull,
			Urgency:            UrgencyImmediate,
			Trigger:            TriggerStopLoss,
			Quantity:           absQty,
			SuggestedOrderType: types.OrderMarket,
			Reason:             fmt.Sprintf("down %.1f%% of entry premium", -pnlPct*100),
		}
	}

	// 4. Trailing stop once the runup armed it.
	if pos.HighWaterMark > 0 {
		hwmRunup := pos.HighWaterMark / (entry * float64(absQty) * 100)
		if hwmRunup >= cfg.TrailArmRunup {
			drawdown := trailDrawdown(pos, in.CurrentPrice, entry)
			if drawdown >= cfg.TrailPercent {
				return &ExitEvaluation{
					Action:             ExitCloseFull,
					Urgency:            UrgencySoon,
					Trigger:            TriggerTrailingStop,
					Quantity:           absQty,
					SuggestedOrderType: types.OrderLimit,
					Reason:             fmt.Sprintf("gave back %.1f%% from high-water mark", drawdown*100),
				}
			}
		}
	}

	// 5. Expiration pressure.
	if dte <= 1 && pnlPct < 0 {
		return &ExitEvaluation{
			Action:             ExitCloseFull,
			Urgency:            UrgencyImmediate,
			Trigger:            TriggerDTELimit,
			Quantity:           absQty,
			SuggestedOrderType: types.OrderMarket,
			Reason:             fmt.Sprintf("%d DTE with %.1f%% loss", dte, -pnlPct*100),
		}
	}
	if dte <= cfg.DTESoon {
		return &ExitEvaluation{
			Action:             ExitCloseFull,
			Urgency:            UrgencySoon,
			Trigger:            TriggerDTELimit,
			Quantity:           absQty,
			SuggestedOrderType: types.OrderLimit,
			Reason:             fmt.Sprintf("%d DTE, close by end of day", dte),
		}
	}

	// 6. Stale trade.
	if cfg.MaxDaysInTrade > 0 && !pos.OpenedAt.IsZero() {
		days := int(in.Now.Sub(pos.OpenedAt).Hours() / 24)
		if days >= cfg.MaxDaysInTrade {
			return &ExitEvaluation{
				Action:             ExitCloseFull,
				Urgency:            UrgencySoon,
				Trigger:            TriggerMaxDays,
				Quantity:           absQty,
				SuggestedOrderType: types.OrderLimit,
				Reason:             fmt.Sprintf("%d days in trade", days),
			}
		}
	}

	// 7-9. Greeks-driven exits.
	if in.Greeks != nil {
		if math.Abs(in.Greeks.Delta) >= cfg.DeltaDeepITM {
			return &ExitEvaluation{
				Action:             ExitCloseFull,
				Urgency:            UrgencySoon,
				Trigger:            TriggerDeepITM,
				Quantity:           absQty,
				SuggestedOrderType: types.OrderLimit,
				Reason:             fmt.Sprintf("delta %.2f, deep in the money", in.Greeks.Delta),
			}
		}
		if in.CurrentPrice > 0 && math.Abs(in.Greeks.Theta)/in.CurrentPrice >= cfg.ThetaDecayPerDay {
			return &ExitEvaluation{
				Action:             ExitCloseFull,
				Urgency:            UrgencySoon,
				Trigger:            TriggerThetaDecay,
				Quantity:           absQty,
				SuggestedOrderType: types.OrderLimit,
				Reason:             fmt.Sprintf("theta burn %.1f%%/day", math.Abs(in.Greeks.Theta)/in.CurrentPrice*100),
			}
		}
		if in.EntryIV > 0 && in.Greeks.IV > 0 {
			drop := (in.EntryIV - in.Greeks.IV) / in.EntryIV
			if drop >= cfg.IVCrushDrop {
				return &ExitEvaluation{
					Action:             ExitCloseFull,
					Urgency:            UrgencyOptional,
					Trigger:            TriggerIVCrush,
					Quantity:           absQty,
					SuggestedOrderType: types.OrderLimit,
					Reason:             fmt.Sprintf("IV dropped %.0f%% since entry, close next session", drop*100),
				}
			}
		}
	}

	// 10. GEX flip against the position with profit banked overrides HOLD.
	if in.GEXFlipped && pnlPct >= 0.10 {
		return &ExitEvaluation{
			Action:             ExitCloseFull,
			Urgency:            UrgencySoon,
			Trigger:            TriggerGEXFlip,
			Quantity:           absQty,
			SuggestedOrderType: types.OrderLimit,
			Reason:             fmt.Sprintf("dealer gamma flipped against position with %.1f%% profit", pnlPct*100),
		}
	}

	// 11. Regime turned against the position while profitable.
	if in.CurrentRegime != "" && pos.EntryMarketRegime != "" &&
		in.CurrentRegime != pos.EntryMarketRegime &&
		regimeOpposes(in.CurrentRegime, positionDirection(pos)) && pnlPct > 0 {
		return &ExitEvaluation{
			Action:             ExitClosePartial,
			Urgency:            UrgencyOptional,
			Trigger:            TriggerRegimeChange,
			Quantity:           partialQty(absQty, 0.5),
			SuggestedOrderType: types.OrderLimit,
			Reason:             fmt.Sprintf("regime moved to %s against position, banking half", in.CurrentRegime),
		}
	}

	return hold("no exit rule fired")
}

func hold(reason string) *ExitEvaluation {
	return &ExitEvaluation{Action: ExitHold, Urgency: UrgencyOptional, Reason: reason}
}

func partialQty(qty int, fraction float64) int {
	n := int(math.Ceil(float64(qty) * fraction))
	if n < 1 {
		n = 1
	}
	if n > qty {
		n = qty
	}
	return n
}

// trailDrawdown measures the giveback from the high-water mark as a
// fraction of the peak per-contract price.
func trailDrawdown(pos *types.Position, current, entry float64) float64 {
	absQty := pos.Quantity
	if absQty < 0 {
		absQty = -absQty
	}
	if absQty == 0 {
		return 0
	}
	peakPrice := entry + pos.HighWaterMark/(float64(absQty)*100)
	if peakPrice <= 0 {
		return 0
	}
	dd := (peakPrice - current) / peakPrice
	if dd < 0 {
		return 0
	}
	return dd
}

// positionDirection maps a position's option type and sign to a market
// bias.
func positionDirection(pos *types.Position) types.Direction {
	long := pos.IsLong()
	switch {
	case pos.OptionType == types.Call && long, pos.OptionType == types.Put && !long:
		return types.Bullish
	case pos.OptionType == types.Put && long, pos.OptionType == types.Call && !long:
		return types.Bearish
	default:
		return types.Neutral
	}
}

// regimeOpposes reports whether regime runs against a directional bias.
func regimeOpposes(regime types.MarketRegime, dir types.Direction) bool {
	switch dir {
	case types.Bullish:
		return regime == types.RegimeTrendingDown || regime == types.RegimeReversalDown
	case types.Bearish:
		return regime == types.RegimeTrendingUp || regime == types.RegimeReversalUp
	default:
		return false
	}
}
