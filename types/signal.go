// Package types holds the domain model shared by every component: signals,
// orders, trades, positions, their enums, and the OCC option-symbol codec.
// The database is the owner of record; these are transient in-memory
// copies components pass between stages.
package types

import "time"

// SignalStatus is the lifecycle status of a Signal.
type SignalStatus string

const (
	SignalPending    SignalStatus = "PENDING"
	SignalValidated  SignalStatus = "VALIDATED"
	SignalProcessing SignalStatus = "PROCESSING"
	SignalCompleted  SignalStatus = "COMPLETED"
	SignalRejected   SignalStatus = "REJECTED"
	SignalFailed     SignalStatus = "FAILED"
)

// Direction is the market bias implied by a signal.
type Direction string

const (
	Bullish Direction = "BULLISH"
	Bearish Direction = "BEARISH"
	Neutral Direction = "NEUTRAL"
)

// OptionDirection distinguishes CALL/PUT/NEUTRAL on the Signal itself,
// separate from Direction (the derived trading bias).
type OptionDirection string

const (
	DirCall    OptionDirection = "CALL"
	DirPut     OptionDirection = "PUT"
	DirNeutral OptionDirection = "NEUTRAL"
)

// Action is the normalized order action.
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionClose Action = "CLOSE"
)

// OptionType is CALL or PUT.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// Source enumerates the vendor tags the scoring engine's weight table
// knows about. Unknown sources are accepted but scored with zero weight.
type Source string

const (
	SourceUltimateOption     Source = "ultimate-option"
	SourceMTFTrendDots       Source = "mtf-trend-dots"
	SourceStratEngineV6      Source = "strat_engine_v6"
	SourceORBStretch         Source = "orb_bhch_stretch"
	SourceORBOrb             Source = "orb_bhch_orb"
	SourceSatyPhase          Source = "saty-phase"
	SourceTradingView        Source = "tradingview"
	SourceORBEma             Source = "orb_bhch_ema"
	SourceORBBhch            Source = "orb_bhch_bhch"
	SourceTwelveDataTechnical Source = "twelvedata-technical"
)

// Signal is a canonical, normalized trading signal.
type Signal struct {
	ID                string
	Source            Source
	Fingerprint       string
	Symbol            string
	Direction         Direction
	OptionDirection   OptionDirection
	Action            Action
	Strike            float64
	Expiration        string // YYYY-MM-DD
	OptionType        OptionType
	Timeframe         string
	Quantity          int
	OrderType         string // MARKET | LIMIT | STOP | STOP_LIMIT
	TimeInForce       string // DAY | GTC | IOC | FOK
	LimitPrice        float64
	Confidence        float64
	Strategy          string
	RawPayload        map[string]interface{}
	Timestamp         time.Time // vendor signal time; anchors the dedup fingerprint
	SignatureVerified bool
	Status            SignalStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FieldError is a single field-level normalization/validation error.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Reason }
