package types

import "time"

// MarketRegime is the per-ticker regime classification.
type MarketRegime string

const (
	RegimeTrendingUp       MarketRegime = "TRENDING_UP"
	RegimeTrendingDown     MarketRegime = "TRENDING_DOWN"
	RegimeRangeBound       MarketRegime = "RANGE_BOUND"
	RegimeBreakoutImminent MarketRegime = "BREAKOUT_IMMINENT"
	RegimeReversalUp       MarketRegime = "REVERSAL_UP"
	RegimeReversalDown     MarketRegime = "REVERSAL_DOWN"
	RegimeUnknown          MarketRegime = "UNKNOWN"
)

// Greeks holds an option's risk sensitivities.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	IV    float64
}

// Position is an open or closed option position. Quantity is signed:
// positive for long, negative for short.
type Position struct {
	ID                   string
	Symbol               string // OCC-encoded
	Underlying           string
	Strike               float64
	Expiration           string
	OptionType           OptionType
	Quantity             int
	AvgOpenPrice         float64
	TotalCost            float64
	CurrentPrice         float64
	MarketValue          float64
	UnrealizedPnl        float64
	UnrealizedPnlPercent float64
	RealizedPnl          float64
	Greeks               Greeks
	HighWaterMark        float64
	PartialExitsTaken    int
	EntryMarketRegime    MarketRegime
	IsClosed             bool
	OpenedAt             time.Time
	ClosedAt             time.Time
	UpdatedAt            time.Time
}

// IsLong reports whether the position is a long position.
func (p *Position) IsLong() bool { return p.Quantity > 0 }

// UpdateHighWaterMark keeps HighWaterMark monotone non-decreasing while
// the position stays open; it freezes once the position closes.
func (p *Position) UpdateHighWaterMark() {
	if !p.IsClosed && p.UnrealizedPnl > p.HighWaterMark {
		p.HighWaterMark = p.UnrealizedPnl
	}
}

// DTE returns days-to-expiration as of t, rounded down.
func (p *Position) DTE(t time.Time) int {
	exp, err := time.Parse("2006-01-02", p.Expiration)
	if err != nil {
		return 0
	}
	d := exp.Sub(t.Truncate(24 * time.Hour))
	days := int(d.Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// RegimeObservation is a single observation for the regime stability
// tracker.
type RegimeObservation struct {
	Ticker                string
	Regime                MarketRegime
	RegimeConfidence      float64
	ConsecutiveSameRegime int
	TimeInRegimeSeconds   int64
	LastFlipTimestamp     time.Time
	StabilityScore        float64
	IsStable              bool
	CanTrade              bool
	BlockReason           string
	CheckedAt             time.Time
}
