package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestHighWaterMarkMonotone checks that the sequence of observed
// highWaterMark values is monotone non-decreasing until closure.
func TestHighWaterMarkMonotone(t *testing.T) {
	p := &Position{UnrealizedPnl: 100, HighWaterMark: 0}

	observations := []float64{100, 250, 180, 400, 50}
	prevHWM := 0.0
	for _, pnl := range observations {
		p.UnrealizedPnl = pnl
		p.UpdateHighWaterMark()
		assert.GreaterOrEqual(t, p.HighWaterMark, prevHWM)
		prevHWM = p.HighWaterMark
	}
	assert.Equal(t, 400.0, p.HighWaterMark)
}

func TestHighWaterMarkFrozenAfterClose(t *testing.T) {
	p := &Position{UnrealizedPnl: 100, HighWaterMark: 100, IsClosed: true}
	p.UnrealizedPnl = 500
	p.UpdateHighWaterMark()
	assert.Equal(t, 100.0, p.HighWaterMark)
}

func TestDTE(t *testing.T) {
	p := &Position{Expiration: "2026-08-05"}
	now := time.Date(2026, 8, 4, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, 1, p.DTE(now))

	now2 := time.Date(2026, 8, 5, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, 0, p.DTE(now2))
}
