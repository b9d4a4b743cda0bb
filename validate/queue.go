package validate

import (
	"sync"
	"time"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// queuedSignal pairs a held signal with the time it was queued, so Drain
// can compute expiration against maxQueueAge plus the pre-market grace.
type queuedSignal struct {
	signal   *types.Signal
	queuedAt time.Time
}

// SignalQueue holds pre-market signals keyed by symbol|direction, keeping
// only the highest-confidence signal per key. Expiration covers the
// full pre-market window: maxQueueAge + 240 minutes past queue time.
type SignalQueue struct {
	mu         sync.Mutex
	entries    map[string]queuedSignal
	maxAge     time.Duration
	extraGrace time.Duration
}

// NewSignalQueue builds a queue with maxQueueAge as named in config; the
// 240-minute grace covers the full pre-market window.
func NewSignalQueue(maxQueueAge time.Duration) *SignalQueue {
	return &SignalQueue{
		entries:    make(map[string]queuedSignal),
		maxAge:     maxQueueAge,
		extraGrace: 240 * time.Minute,
	}
}

func key(symbol string, direction types.Direction) string {
	return string(symbol) + "|" + string(direction)
}

// Enqueue stores sig under symbol|direction, replacing any existing entry
// for that key only if sig has higher confidence: only the
// highest-confidence signal per key is retained.
func (q *SignalQueue) Enqueue(sig *types.Signal, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	k := key(sig.Symbol, sig.Direction)
	existing, ok := q.entries[k]
	if !ok || sig.Confidence > existing.signal.Confidence {
		q.entries[k] = queuedSignal{signal: sig, queuedAt: now}
	}
}

// Drain removes and returns every non-expired queued signal, meant to be
// called when the session transitions to OPENING or MORNING: each
// drained signal re-enters the pipeline at the decision stage.
func (q *SignalQueue) Drain(now time.Time) []*types.Signal {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*types.Signal
	for k, entry := range q.entries {
		if now.Sub(entry.queuedAt) > q.maxAge+q.extraGrace {
			delete(q.entries, k)
			continue
		}
		out = append(out, entry.signal)
		delete(q.entries, k)
	}
	return out
}

// Sweep drops expired entries without draining live ones, for periodic
// background cleanup.
func (q *SignalQueue) Sweep(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for k, entry := range q.entries {
		if now.Sub(entry.queuedAt) > q.maxAge+q.extraGrace {
			delete(q.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of currently queued signals.
func (q *SignalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
