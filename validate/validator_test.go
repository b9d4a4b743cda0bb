package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/market"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

type fakeProvider struct {
	schedule *market.Schedule
	err      error
}

func (f *fakeProvider) GetQuote(string) (*market.Quote, error)            { return nil, nil }
func (f *fakeProvider) GetUnderlyingQuote(string) (*market.Quote, error)  { return nil, nil }
func (f *fakeProvider) GetVIX() (float64, error)                         { return 0, nil }
func (f *fakeProvider) GetATRContext(string) (*market.ATRContext, error) { return nil, nil }
func (f *fakeProvider) GetGEX(string) (*market.GEXBundle, error)         { return nil, nil }
func (f *fakeProvider) GetSchedule(time.Time) (*market.Schedule, error)  { return f.schedule, f.err }

func validSignal() *types.Signal {
	return &types.Signal{
		Source:     types.SourceTradingView,
		Symbol:     "SPY",
		Action:     types.ActionBuy,
		OptionType: types.Call,
		Expiration: time.Now().AddDate(0, 1, 0).Format("2006-01-02"),
		Strike:     450,
		Quantity:   1,
	}
}

func TestValidateAcceptsDuringOpenSession(t *testing.T) {
	v := NewValidator(DefaultConfig(), &fakeProvider{schedule: &market.Schedule{Session: market.SessionMorning, IsOpen: true}})
	res := v.Validate(validSignal(), nil, time.Now())
	assert.Equal(t, OutcomeValidated, res.Outcome)
}

func TestValidateRejectsPastExpiration(t *testing.T) {
	v := NewValidator(DefaultConfig(), &fakeProvider{schedule: &market.Schedule{IsOpen: true}})
	sig := validSignal()
	sig.Expiration = "2000-01-01"
	res := v.Validate(sig, nil, time.Now())
	assert.Equal(t, OutcomeRejected, res.Outcome)
}

func TestValidateRejectsNonPositiveStrike(t *testing.T) {
	v := NewValidator(DefaultConfig(), &fakeProvider{schedule: &market.Schedule{IsOpen: true}})
	sig := validSignal()
	sig.Strike = 0
	res := v.Validate(sig, nil, time.Now())
	assert.Equal(t, OutcomeRejected, res.Outcome)
}

func TestValidateQueuesEligibleOutOfSessionSignal(t *testing.T) {
	v := NewValidator(DefaultConfig(), &fakeProvider{schedule: &market.Schedule{Session: market.SessionPreMarket, IsOpen: false}})
	sig := validSignal()
	sig.Source = types.SourceUltimateOption
	sig.Confidence = 80
	res := v.Validate(sig, nil, time.Now())
	assert.Equal(t, OutcomeQueued, res.Outcome)
}

func TestValidateRejectsIneligibleOutOfSessionSignal(t *testing.T) {
	v := NewValidator(DefaultConfig(), &fakeProvider{schedule: &market.Schedule{Session: market.SessionPreMarket, IsOpen: false}})
	sig := validSignal()
	sig.Source = types.SourceTradingView // not in the allow-list
	sig.Confidence = 90
	res := v.Validate(sig, nil, time.Now())
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, "OUT_OF_SESSION", res.Reason)
}

func TestValidateRejectsLowConfidenceOutOfSessionSignal(t *testing.T) {
	v := NewValidator(DefaultConfig(), &fakeProvider{schedule: &market.Schedule{Session: market.SessionPreMarket, IsOpen: false}})
	sig := validSignal()
	sig.Source = types.SourceUltimateOption
	sig.Confidence = 50 // below queue threshold of 70
	res := v.Validate(sig, nil, time.Now())
	assert.Equal(t, OutcomeRejected, res.Outcome)
}

func TestValidateRejectsFieldErrorsFirst(t *testing.T) {
	v := NewValidator(DefaultConfig(), &fakeProvider{schedule: &market.Schedule{IsOpen: true}})
	res := v.Validate(validSignal(), []types.FieldError{{Field: "symbol", Reason: "missing"}}, time.Now())
	assert.Equal(t, OutcomeRejected, res.Outcome)
}

func TestSignalQueueKeepsHighestConfidencePerKey(t *testing.T) {
	q := NewSignalQueue(4 * time.Hour)
	now := time.Now()

	low := &types.Signal{Symbol: "SPY", Direction: types.Bullish, Confidence: 60}
	high := &types.Signal{Symbol: "SPY", Direction: types.Bullish, Confidence: 90}

	q.Enqueue(low, now)
	q.Enqueue(high, now)

	drained := q.Drain(now)
	assert.Len(t, drained, 1)
	assert.Equal(t, 90.0, drained[0].Confidence)
}

func TestSignalQueueDrainExpires(t *testing.T) {
	q := NewSignalQueue(time.Minute)
	now := time.Now()
	q.Enqueue(&types.Signal{Symbol: "SPY", Direction: types.Bullish, Confidence: 80}, now)

	drained := q.Drain(now.Add(6 * time.Hour))
	assert.Empty(t, drained)
}
