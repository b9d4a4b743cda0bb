package market

import (
	"encoding/json"
	"fmt"
	"time"
)

// vendorQuoteEnvelope is a lowest-common-denominator JSON shape across the
// supported vendors' quote endpoints: once a payload reaches this boundary
// it gets a strongly-typed struct with unknown fields dropped, not an
// opaque map.
type vendorQuoteEnvelope struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
	Volume int64   `json:"volume"`
	Greeks *struct {
		Delta float64 `json:"delta"`
		Gamma float64 `json:"gamma"`
		Theta float64 `json:"theta"`
		Vega  float64 `json:"vega"`
		IV    float64 `json:"iv"`
	} `json:"greeks,omitempty"`
}

func parseQuoteEnvelope(provider, symbol string, body []byte) (*Quote, error) {
	var env vendorQuoteEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("market: parse %s quote envelope: %w", provider, err)
	}
	if env.Symbol == "" {
		env.Symbol = symbol
	}

	q := &Quote{
		Symbol:    env.Symbol,
		Bid:       env.Bid,
		Ask:       env.Ask,
		Last:      env.Last,
		Volume:    env.Volume,
		Timestamp: time.Now(),
	}
	if env.Bid > 0 && env.Ask > 0 {
		q.Mid = (env.Bid + env.Ask) / 2
	} else {
		q.Mid = env.Last
	}
	if env.Greeks != nil {
		q.Greeks = &GreeksQuote{
			Delta: env.Greeks.Delta,
			Gamma: env.Greeks.Gamma,
			Theta: env.Greeks.Theta,
			Vega:  env.Greeks.Vega,
			IV:    env.Greeks.IV,
		}
	}
	return q, nil
}

type vendorATREnvelope struct {
	ATR           float64 `json:"atr"`
	ATRPercentile float64 `json:"atr_percentile"`
}

func parseATREnvelope(body []byte) (*ATRContext, error) {
	var env vendorATREnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("market: parse ATR envelope: %w", err)
	}
	return &ATRContext{ATR: env.ATR, ATRPercentile: env.ATRPercentile}, nil
}

type vendorGEXEnvelope struct {
	NetGamma       float64 `json:"net_gamma"`
	ZeroGammaLevel float64 `json:"zero_gamma_level"`
	MaxPain        float64 `json:"max_pain"`
}

func parseGEXEnvelope(underlying string, body []byte) (*GEXBundle, error) {
	var env vendorGEXEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("market: parse GEX envelope: %w", err)
	}
	dealerPosition := "LONG_GAMMA"
	if env.NetGamma < 0 {
		dealerPosition = "SHORT_GAMMA"
	}
	return &GEXBundle{
		Underlying:     underlying,
		NetGamma:       env.NetGamma,
		ZeroGammaLevel: env.ZeroGammaLevel,
		MaxPain:        env.MaxPain,
		DealerPosition: dealerPosition,
		Timestamp:      time.Now(),
	}, nil
}

// computeSchedule derives the market session from a US/Eastern wall clock.
// Regular session: 09:30-16:00 ET, pre-market 04:00-09:30, after-hours
// 16:00-20:00 ET; everything else is closed. Opening window is the first
// 30 minutes of the regular session.
func computeSchedule(now time.Time) *Schedule {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)

	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return &Schedule{Session: SessionClosed, IsOpen: false}
	}

	minutes := local.Hour()*60 + local.Minute()
	open := 9*60 + 30
	close_ := 16 * 60
	preOpen := 4 * 60
	afterClose := 20 * 60

	switch {
	case minutes >= preOpen && minutes < open:
		return &Schedule{Session: SessionPreMarket, IsOpen: false}
	case minutes >= open && minutes < open+30:
		return &Schedule{Session: SessionOpening, IsOpen: true, IsFirst30Min: true, MinutesToClose: close_ - minutes}
	case minutes >= open+30 && minutes < 12*60:
		return &Schedule{Session: SessionMorning, IsOpen: true, MinutesToClose: close_ - minutes}
	case minutes >= 12*60 && minutes < 14*60:
		return &Schedule{Session: SessionMidday, IsOpen: true, MinutesToClose: close_ - minutes}
	case minutes >= 14*60 && minutes < close_:
		return &Schedule{Session: SessionAfternoon, IsOpen: true, MinutesToClose: close_ - minutes}
	case minutes >= close_ && minutes < afterClose:
		return &Schedule{Session: SessionAfterHours, IsOpen: false}
	default:
		return &Schedule{Session: SessionClosed, IsOpen: false}
	}
}
