// Package market provides option and underlying quotes, VIX, dealer
// positioning (GEX) and the market session schedule, all behind a
// TTL+coalescing cache so concurrent callers never stampede the upstream
// vendor for the same key.
package market

import "time"

// Quote is a single option or underlying quote.
type Quote struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	Mid       float64
	Volume    int64
	Greeks    *GreeksQuote
	Timestamp time.Time
}

// GreeksQuote mirrors types.Greeks but lives in the vendor-payload boundary
// so market.Quote stays independent of the domain package.
type GreeksQuote struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	IV    float64
}

// ATRContext is the volatility context the exit engine needs to scale
// stops and targets.
type ATRContext struct {
	ATR           float64
	ATRPercentile float64 // 0-100, percentile rank of current ATR in recent history
}

// GEXBundle is the dealer gamma-exposure snapshot for an underlying
// (GLOSSARY: GEX, zero-gamma level, max pain).
type GEXBundle struct {
	Underlying     string
	NetGamma       float64
	ZeroGammaLevel float64
	MaxPain        float64
	DealerPosition string // "LONG_GAMMA" | "SHORT_GAMMA"
	Timestamp      time.Time
}

// Session is the current market session.
type Session string

const (
	SessionPreMarket   Session = "PRE_MARKET"
	SessionOpening     Session = "OPENING" // first 30 minutes
	SessionMorning     Session = "MORNING"
	SessionMidday      Session = "MIDDAY"
	SessionAfternoon   Session = "AFTERNOON"
	SessionAfterHours  Session = "AFTER_HOURS"
	SessionClosed      Session = "CLOSED"
)

// Schedule is the resolved market-session state at a point in time.
type Schedule struct {
	Session        Session
	IsOpen         bool
	IsFirst30Min   bool
	MinutesToClose int
}

// Provider is the market-data capability the decision and position
// layers consume. All methods are safe for concurrent use.
type Provider interface {
	GetQuote(symbol string) (*Quote, error)
	GetUnderlyingQuote(underlying string) (*Quote, error)
	GetVIX() (float64, error)
	GetATRContext(underlying string) (*ATRContext, error)
	GetGEX(underlying string) (*GEXBundle, error)
	GetSchedule(now time.Time) (*Schedule, error)
}
