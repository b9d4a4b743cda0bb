// Package regime tracks per-ticker market regime stability: every GEX
// refresh feeds an observation in, and the tracker decides whether the
// regime has been stable long enough since its last flip to allow new
// entries for that ticker.
package regime

import (
	"fmt"
	"sync"
	"time"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// History is the append-only persistence seam for regime observations.
// Implemented by the store package.
type History interface {
	AppendRegimeObservation(obs *types.RegimeObservation) error
}

// Config tunes the stability gate.
type Config struct {
	FlipCooldown   time.Duration // minimum time since last regime flip
	MinConsecutive int           // minimum consecutive same-regime observations
	MinConfidence  float64       // minimum regime confidence
}

// DefaultConfig holds the production gate thresholds.
func DefaultConfig() Config {
	return Config{
		FlipCooldown:   900 * time.Second,
		MinConsecutive: 2,
		MinConfidence:  0.75,
	}
}

// tickerState is the per-ticker accumulator between observations.
type tickerState struct {
	regime        types.MarketRegime
	consecutive   int
	regimeSince   time.Time
	lastFlip      time.Time
	lastObserved  time.Time
	timeInRegime  time.Duration
	hasObservation bool
}

// Tracker is the regime stability state machine. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	cfg     Config
	tickers map[string]*tickerState
	history History
}

// NewTracker builds a Tracker. history may be nil in tests; observations
// are then kept in memory only.
func NewTracker(cfg Config, history History) *Tracker {
	return &Tracker{
		cfg:     cfg,
		tickers: make(map[string]*tickerState),
		history: history,
	}
}

// Observe records a regime observation for ticker at now and returns the
// resulting stability verdict. A regime different from the previous
// observation counts as a flip: consecutive resets to 1 and the cooldown
// clock restarts.
func (t *Tracker) Observe(ticker string, regime types.MarketRegime, confidence float64, now time.Time) *types.RegimeObservation {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.tickers[ticker]
	if !ok {
		st = &tickerState{}
		t.tickers[ticker] = st
	}

	if !st.hasObservation || st.regime != regime {
		st.regime = regime
		st.consecutive = 1
		st.regimeSince = now
		st.timeInRegime = 0
		if st.hasObservation {
			st.lastFlip = now
		} else {
			// First ever observation: no flip has happened, treat the
			// cooldown as already elapsed.
			st.lastFlip = now.Add(-t.cfg.FlipCooldown)
		}
		st.hasObservation = true
	} else {
		st.consecutive++
		st.timeInRegime += now.Sub(st.lastObserved)
	}
	st.lastObserved = now

	obs := t.buildObservation(ticker, st, confidence, now)
	if t.history != nil {
		// History is advisory; a failed append never blocks the verdict.
		if err := t.history.AppendRegimeObservation(obs); err != nil {
			logger.Warnf("regime: append observation for %s failed: %v", ticker, err)
		}
	}
	return obs
}

// Check returns the current stability verdict for ticker without recording
// a new observation. An unseen ticker cannot trade.
func (t *Tracker) Check(ticker string, confidence float64, now time.Time) *types.RegimeObservation {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.tickers[ticker]
	if !ok || !st.hasObservation {
		return &types.RegimeObservation{
			Ticker:      ticker,
			Regime:      types.RegimeUnknown,
			CanTrade:    false,
			BlockReason: "no regime observations for ticker",
			CheckedAt:   now,
		}
	}
	return t.buildObservation(ticker, st, confidence, now)
}

func (t *Tracker) buildObservation(ticker string, st *tickerState, confidence float64, now time.Time) *types.RegimeObservation {
	sinceFlip := now.Sub(st.lastFlip)

	score := stabilityScore(st.consecutive, st.timeInRegime, confidence, sinceFlip, t.cfg.FlipCooldown)

	canTrade := true
	blockReason := ""
	switch {
	case sinceFlip < t.cfg.FlipCooldown:
		canTrade = false
		blockReason = fmt.Sprintf("flip cooldown: %.0fs since regime flip, need %.0fs",
			sinceFlip.Seconds(), t.cfg.FlipCooldown.Seconds())
	case st.consecutive < t.cfg.MinConsecutive:
		canTrade = false
		blockReason = fmt.Sprintf("only %d consecutive same-regime observations, need %d",
			st.consecutive, t.cfg.MinConsecutive)
	case confidence < t.cfg.MinConfidence:
		canTrade = false
		blockReason = fmt.Sprintf("regime confidence %.2f below %.2f", confidence, t.cfg.MinConfidence)
	}

	return &types.RegimeObservation{
		Ticker:                ticker,
		Regime:                st.regime,
		RegimeConfidence:      confidence,
		ConsecutiveSameRegime: st.consecutive,
		TimeInRegimeSeconds:   int64(st.timeInRegime.Seconds()),
		LastFlipTimestamp:     st.lastFlip,
		StabilityScore:        score,
		IsStable:              score >= 60,
		CanTrade:              canTrade,
		BlockReason:           blockReason,
		CheckedAt:             now,
	}
}

// stabilityScore blends observation count, time in regime, confidence and
// flip recency into a 0-100 score:
//
//	min(30, consecutive*10) + min(30, timeInRegime/600*30)
//	+ confidence*40 - max(0, (1 - sinceFlip/cooldown)*30)
func stabilityScore(consecutive int, timeInRegime time.Duration, confidence float64, sinceFlip, cooldown time.Duration) float64 {
	score := 0.0

	c := float64(consecutive) * 10
	if c > 30 {
		c = 30
	}
	score += c

	tr := timeInRegime.Seconds() / 600 * 30
	if tr > 30 {
		tr = 30
	}
	score += tr

	score += confidence * 40

	if cooldown > 0 {
		penalty := (1 - sinceFlip.Seconds()/cooldown.Seconds()) * 30
		if penalty > 0 {
			score -= penalty
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
