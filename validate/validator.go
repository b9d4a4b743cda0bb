// Package validate applies hard field rejects, the pre-market queue
// escalation path, and the structured rejection reasons the webhook
// layer surfaces to callers.
package validate

import (
	"time"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/market"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// Outcome is what the Validator decided to do with a signal.
type Outcome string

const (
	OutcomeValidated Outcome = "VALIDATED"
	OutcomeQueued    Outcome = "QUEUED"
	OutcomeRejected  Outcome = "REJECTED"
)

// Result is the Validator's verdict plus its reasoning.
type Result struct {
	Outcome Outcome
	Reason  string
}

// Config is the validator's tunable policy.
type Config struct {
	// SessionAllowList is the set of sources permitted to queue during
	// PRE_MARKET/AFTER_HOURS instead of being rejected outright.
	SessionAllowList map[types.Source]bool
	QueueThreshold   float64 // minimum confidence to queue instead of reject
}

// DefaultConfig holds the production allow-list and queue threshold.
func DefaultConfig() Config {
	return Config{
		SessionAllowList: map[types.Source]bool{
			types.SourceUltimateOption: true,
			types.SourceMTFTrendDots:   true,
			types.SourceStratEngineV6:  true,
		},
		QueueThreshold: 70,
	}
}

// Validator applies the hard rejects and the session rule.
type Validator struct {
	cfg      Config
	provider market.Provider
}

func NewValidator(cfg Config, provider market.Provider) *Validator {
	return &Validator{cfg: cfg, provider: provider}
}

// Validate applies the hard rejects first (missing fields were already
// caught by the normalizer's field errors, passed in here as fieldErrors),
// then the session escalation rule.
func (v *Validator) Validate(sig *types.Signal, fieldErrors []types.FieldError, now time.Time) Result {
	if len(fieldErrors) > 0 {
		return Result{Outcome: OutcomeRejected, Reason: "VALIDATION: " + fieldErrors[0].Error()}
	}

	if exp, err := time.Parse("2006-01-02", sig.Expiration); err != nil || exp.Before(now.Truncate(24*time.Hour)) {
		return Result{Outcome: OutcomeRejected, Reason: "VALIDATION: expiration is in the past"}
	}
	if sig.Action != types.ActionBuy && sig.Action != types.ActionSell && sig.Action != types.ActionClose {
		return Result{Outcome: OutcomeRejected, Reason: "VALIDATION: invalid action"}
	}
	if sig.OptionType != types.Call && sig.OptionType != types.Put {
		return Result{Outcome: OutcomeRejected, Reason: "VALIDATION: invalid option type"}
	}
	if sig.Strike <= 0 {
		return Result{Outcome: OutcomeRejected, Reason: "VALIDATION: strike must be positive"}
	}
	if sig.Quantity <= 0 {
		return Result{Outcome: OutcomeRejected, Reason: "VALIDATION: quantity must be positive"}
	}

	schedule, err := v.provider.GetSchedule(now)
	inSession := err == nil && schedule.IsOpen
	outOfSessionEligible := err == nil &&
		(schedule.Session == market.SessionPreMarket || schedule.Session == market.SessionAfterHours)

	if !inSession && outOfSessionEligible {
		if v.cfg.SessionAllowList[sig.Source] && sig.Confidence >= v.cfg.QueueThreshold {
			return Result{Outcome: OutcomeQueued, Reason: "queued: out of session, eligible source/confidence"}
		}
		return Result{Outcome: OutcomeRejected, Reason: "OUT_OF_SESSION"}
	}
	if !inSession && !outOfSessionEligible {
		// Market fully closed (weekend/overnight outside pre/after windows).
		return Result{Outcome: OutcomeRejected, Reason: "OUT_OF_SESSION"}
	}

	return Result{Outcome: OutcomeValidated, Reason: ""}
}
