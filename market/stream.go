package market

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
)

// StreamQuote is one quote frame off the vendor websocket.
type StreamQuote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
}

// QuoteStream keeps a websocket feed of quotes warm in the background so
// the poll path usually finds a fresh value. The REST+cache path stays
// authoritative; the stream is opportunistic and reconnects on its own.
type QuoteStream struct {
	url     string
	symbols []string

	mu     sync.RWMutex
	latest map[string]StreamQuote

	cancel context.CancelFunc
	done   chan struct{}
}

// NewQuoteStream builds a stream for the given subscription set.
func NewQuoteStream(url string, symbols []string) *QuoteStream {
	return &QuoteStream{
		url:     url,
		symbols: symbols,
		latest:  make(map[string]StreamQuote),
	}
}

// Start connects and consumes frames until Stop. Reconnects with a fixed
// backoff on any read or dial error.
func (s *QuoteStream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		for ctx.Err() == nil {
			if err := s.consume(ctx); err != nil && ctx.Err() == nil {
				logger.Warnf("market: quote stream dropped, reconnecting in 5s: %v", err)
				select {
				case <-time.After(5 * time.Second):
				case <-ctx.Done():
				}
			}
		}
	}()
}

// Stop tears the stream down and waits for the consumer to exit.
func (s *QuoteStream) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *QuoteStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]interface{}{"action": "subscribe", "symbols": s.symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	// Unblock the blocking read when the context ends.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var q StreamQuote
		if err := json.Unmarshal(frame, &q); err != nil || q.Symbol == "" {
			continue
		}
		s.mu.Lock()
		s.latest[q.Symbol] = q
		s.mu.Unlock()
	}
}

// Latest returns the most recent streamed quote for symbol, if any.
func (s *QuoteStream) Latest(symbol string) (StreamQuote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.latest[symbol]
	return q, ok
}
