package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

func TestNormalizeCanonicalPayload(t *testing.T) {
	raw := map[string]interface{}{
		"ticker":     "NASDAQ:SPY",
		"action":     "LONG",
		"type":       "C",
		"expiration": "2026-09-18",
		"qty":        float64(3),
		"strike":     float64(450),
		"price":      float64(3.5),
		"timeframe":  "15m",
	}

	sig, errs := Normalize(types.SourceTradingView, raw)
	require.Empty(t, errs)
	assert.Equal(t, "SPY", sig.Symbol)
	assert.Equal(t, types.ActionBuy, sig.Action)
	assert.Equal(t, types.DirCall, sig.OptionDirection)
	assert.Equal(t, types.Bullish, sig.Direction)
	assert.Equal(t, "2026-09-18", sig.Expiration)
	assert.Equal(t, 3, sig.Quantity)
	assert.Equal(t, "MARKET", sig.OrderType)
	assert.Equal(t, "DAY", sig.TimeInForce)
}

func TestNormalizeAliasFields(t *testing.T) {
	raw := map[string]interface{}{
		"symbol":        "SPY.US",
		"side":          "SHORT",
		"option_type":   "PUT",
		"expiry":        "09/18/2026",
		"contracts":     float64(1),
		"strike":        float64(440),
		"order_type":    "limit",
		"time_in_force": "gtc",
	}

	sig, errs := Normalize(types.SourceMTFTrendDots, raw)
	require.Empty(t, errs)
	assert.Equal(t, "SPY", sig.Symbol)
	assert.Equal(t, types.ActionSell, sig.Action)
	assert.Equal(t, types.DirPut, sig.OptionDirection)
	assert.Equal(t, types.Bullish, sig.Direction) // SELL+PUT -> BULLISH
	assert.Equal(t, "2026-09-18", sig.Expiration)
	assert.Equal(t, "LIMIT", sig.OrderType)
	assert.Equal(t, "GTC", sig.TimeInForce)
}

func TestNormalizeYYMMDDExpiration(t *testing.T) {
	raw := map[string]interface{}{
		"ticker": "AAPL", "action": "BUY", "type": "CALL",
		"exp": "260320", "qty": float64(1), "strike": float64(200),
	}
	sig, errs := Normalize(types.SourceTwelveDataTechnical, raw)
	require.Empty(t, errs)
	assert.Equal(t, "2026-03-20", sig.Expiration)

	rawOld := map[string]interface{}{
		"ticker": "AAPL", "action": "BUY", "type": "CALL",
		"exp": "991231", "qty": float64(1), "strike": float64(200),
	}
	sigOld, errsOld := Normalize(types.SourceTwelveDataTechnical, rawOld)
	require.Empty(t, errsOld)
	assert.Equal(t, "1999-12-31", sigOld.Expiration)
}

func TestNormalizeMissingFieldsProducesFieldErrors(t *testing.T) {
	_, errs := Normalize(types.SourceTradingView, map[string]interface{}{})
	assert.NotEmpty(t, errs)

	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	assert.True(t, fields["symbol"])
	assert.True(t, fields["action"])
	assert.True(t, fields["option_type"])
	assert.True(t, fields["expiration"])
	assert.True(t, fields["quantity"])
	assert.True(t, fields["strike"])
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := map[string]interface{}{
		"ticker": "TSLA", "action": "LONG", "type": "C",
		"expiration": "2026-10-16", "qty": float64(2), "strike": float64(300),
		"timestamp": "2025-01-10T14:05:00Z",
	}

	sig1, _ := Normalize(types.SourceStratEngineV6, raw)
	sig2, _ := Normalize(types.SourceStratEngineV6, raw)

	sig1.ID, sig2.ID = "", ""
	sig1.CreatedAt, sig2.CreatedAt = time.Time{}, time.Time{}
	sig1.UpdatedAt, sig2.UpdatedAt = time.Time{}, time.Time{}
	assert.Equal(t, sig1, sig2)
	assert.NotEmpty(t, sig1.Fingerprint)
}

func TestNormalizeTimestampAnchorsFingerprint(t *testing.T) {
	raw := map[string]interface{}{
		"ticker": "SPY", "action": "BUY", "type": "CALL",
		"expiration": "2026-03-20", "qty": float64(1), "strike": float64(600),
		"timestamp": "2025-01-10T14:05:00Z",
	}

	// A vendor re-sending the same alert keeps its timestamp, so the
	// fingerprint matches regardless of when the server receives it.
	sig1, errs1 := Normalize(types.SourceTradingView, raw)
	require.Empty(t, errs1)
	sig2, errs2 := Normalize(types.SourceTradingView, raw)
	require.Empty(t, errs2)
	assert.Equal(t, sig1.Fingerprint, sig2.Fingerprint)
	assert.Equal(t, time.Date(2025, 1, 10, 14, 5, 0, 0, time.UTC), sig1.Timestamp)

	c := NewDedupCache(60*time.Second, 5*time.Minute)
	dup, _ := c.CheckAndSet(sig1.Fingerprint, sig1.ID)
	assert.False(t, dup)
	dup, originalID := c.CheckAndSet(sig2.Fingerprint, sig2.ID)
	assert.True(t, dup, "resubmission inside the window must be a duplicate")
	assert.Equal(t, sig1.ID, originalID)
}

func TestNormalizeTimestampFormats(t *testing.T) {
	base := map[string]interface{}{
		"ticker": "SPY", "action": "BUY", "type": "CALL",
		"expiration": "2026-03-20", "qty": float64(1), "strike": float64(600),
	}
	want := time.Date(2025, 1, 10, 14, 5, 0, 0, time.UTC)

	cases := map[string]interface{}{
		"rfc3339":      "2025-01-10T14:05:00Z",
		"datetime":     "2025-01-10 14:05:00",
		"epoch_secs":   float64(1736517900),
		"epoch_millis": float64(1736517900000),
		"epoch_string": "1736517900",
	}

	for name, ts := range cases {
		raw := map[string]interface{}{"time": ts}
		for k, v := range base {
			raw[k] = v
		}
		sig, errs := Normalize(types.SourceTradingView, raw)
		require.Empty(t, errs, name)
		assert.Equal(t, want, sig.Timestamp, name)
	}
}

func TestNormalizeConfidence(t *testing.T) {
	raw := map[string]interface{}{
		"ticker": "SPY", "action": "BUY", "type": "CALL",
		"expiration": "2026-03-20", "qty": float64(1), "strike": float64(600),
		"confidence": float64(85),
	}
	sig, errs := Normalize(types.SourceUltimateOption, raw)
	require.Empty(t, errs)
	assert.Equal(t, 85.0, sig.Confidence)

	// Fractional scale normalizes onto 0-100.
	raw["confidence"] = 0.8
	sig, errs = Normalize(types.SourceUltimateOption, raw)
	require.Empty(t, errs)
	assert.Equal(t, 80.0, sig.Confidence)
}

func TestDedupCacheWindow(t *testing.T) {
	c := NewDedupCache(60*time.Second, 5*time.Minute)

	fp := Fingerprint(types.SourceTradingView, "SPY", time.Date(2025, 1, 10, 14, 5, 0, 0, time.UTC), types.Bullish)

	dup, _ := c.CheckAndSet(fp, "sig-1")
	assert.False(t, dup, "first insert should not be a duplicate")

	dup, originalID := c.CheckAndSet(fp, "sig-2")
	assert.True(t, dup, "second insert inside window should be a duplicate")
	assert.Equal(t, "sig-1", originalID, "duplicate should reference the original signal")

	dup, originalID = c.CheckAndSet(fp, "sig-3")
	assert.True(t, dup, "third insert inside window should be a duplicate")
	assert.Equal(t, "sig-1", originalID)
}

func TestDedupCacheSweepExpires(t *testing.T) {
	c := NewDedupCache(time.Millisecond, time.Millisecond)
	c.CheckAndSet("fp1", "sig-1")
	time.Sleep(5 * time.Millisecond)
	removed := c.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, c.Len())
}

func TestDedupCacheConcurrentInsertOnlyOneWins(t *testing.T) {
	c := NewDedupCache(time.Minute, 5*time.Minute)
	const n = 50
	results := make(chan bool, n)
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		go func() {
			<-start
			dup, _ := c.CheckAndSet("same-fp", "sig")
			results <- dup
		}()
	}
	close(start)

	duplicates := 0
	for i := 0; i < n; i++ {
		if <-results {
			duplicates++
		}
	}
	assert.Equal(t, n-1, duplicates, "exactly one caller should see isDuplicate=false")
}
