package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeOCC(t *testing.T) {
	exp := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	sym, err := EncodeOCC("AAPL", exp, Call, 200.0)
	require.NoError(t, err)
	assert.Equal(t, "AAPL  260320C00200000", sym)
}

func TestDecodeOCC(t *testing.T) {
	decoded, err := DecodeOCC("AAPL  260320C00200000")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", decoded.Underlying)
	assert.Equal(t, Call, decoded.OptionType)
	assert.Equal(t, 200.0, decoded.Strike)
	assert.Equal(t, 2026, decoded.Expiration.Year())
	assert.Equal(t, time.March, decoded.Expiration.Month())
	assert.Equal(t, 20, decoded.Expiration.Day())
}

// TestOCCRoundTrip checks that encode then decode round-trips any
// (underlying, expiration, CALL/PUT, strike) tuple within rounding of
// strike to 1/1000 of a dollar.
func TestOCCRoundTrip(t *testing.T) {
	cases := []struct {
		underlying string
		optType    OptionType
		strike     float64
	}{
		{"SPY", Call, 450.5},
		{"SPY", Put, 450.555},
		{"TSLA", Call, 999.999},
		{"A", Put, 0.5},
		{"QQQ", Call, 1234.001},
	}

	exp := time.Date(2026, 12, 18, 0, 0, 0, 0, time.UTC)
	for _, c := range cases {
		sym, err := EncodeOCC(c.underlying, exp, c.optType, c.strike)
		require.NoError(t, err)

		decoded, err := DecodeOCC(sym)
		require.NoError(t, err)

		assert.Equal(t, c.underlying, decoded.Underlying)
		assert.Equal(t, c.optType, decoded.OptionType)
		assert.InDelta(t, c.strike, decoded.Strike, 0.001)
		assert.True(t, exp.Equal(decoded.Expiration))
	}
}

func TestEncodeOCCRejectsInvalidInput(t *testing.T) {
	exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := EncodeOCC("TOOLONGTICKER", exp, Call, 100)
	assert.Error(t, err)

	_, err = EncodeOCC("SPY", exp, Call, 0)
	assert.Error(t, err)

	_, err = EncodeOCC("SPY", exp, Call, -5)
	assert.Error(t, err)
}

func TestDecodeOCCRejectsBadLength(t *testing.T) {
	_, err := DecodeOCC("BAD")
	assert.Error(t, err)
}
