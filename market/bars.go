package market

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

const alpacaDataBaseURL = "https://data.alpaca.markets"

// Bar is one OHLCV bar from the Alpaca data API.
type Bar struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

// BarsClient fetches historical bars from Alpaca's data API, used to
// compute ATR locally when the configured vendor has no indicator
// endpoint.
type BarsClient struct {
	apiKey    string
	apiSecret string
	client    *http.Client
}

// NewBarsClient builds a client; an empty key pair leaves it unconfigured
// and every fetch fails fast.
func NewBarsClient(apiKey, apiSecret string, timeout time.Duration) *BarsClient {
	return &BarsClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: timeout},
	}
}

// IsConfigured reports whether credentials are present.
func (b *BarsClient) IsConfigured() bool { return b.apiKey != "" && b.apiSecret != "" }

// DailyBars fetches up to limit daily bars for symbol, oldest first.
func (b *BarsClient) DailyBars(symbol string, limit int) ([]Bar, error) {
	if !b.IsConfigured() {
		return nil, fmt.Errorf("market: bars client not configured")
	}

	url := fmt.Sprintf("%s/v2/stocks/%s/bars?timeframe=1Day&limit=%d", alpacaDataBaseURL, symbol, limit)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("market: build bars request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", b.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", b.apiSecret)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market: bars request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("market: read bars response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("market: bars status %d: %s", resp.StatusCode, string(body))
	}

	var envelope struct {
		Bars []Bar `json:"bars"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("market: parse bars response: %w", err)
	}
	return envelope.Bars, nil
}

// ATRFromBars computes the average true range over the last period bars
// plus the current ATR's percentile rank within the series.
func ATRFromBars(bars []Bar, period int) (*ATRContext, error) {
	if len(bars) < period+1 {
		return nil, fmt.Errorf("market: need %d bars for ATR, have %d", period+1, len(bars))
	}

	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		tr := trueRange(bars[i], bars[i-1])
		trs = append(trs, tr)
	}

	// Rolling simple-average ATR series.
	atrs := make([]float64, 0, len(trs)-period+1)
	for i := period; i <= len(trs); i++ {
		sum := 0.0
		for _, tr := range trs[i-period : i] {
			sum += tr
		}
		atrs = append(atrs, sum/float64(period))
	}

	current := atrs[len(atrs)-1]

	sorted := append([]float64(nil), atrs...)
	sort.Float64s(sorted)
	rank := sort.SearchFloat64s(sorted, current)
	percentile := float64(rank) / float64(len(sorted)) * 100

	return &ATRContext{ATR: current, ATRPercentile: percentile}, nil
}

func trueRange(cur, prev Bar) float64 {
	tr := cur.High - cur.Low
	if d := cur.High - prev.Close; d > tr {
		tr = d
	}
	if d := prev.Close - cur.Low; d > tr {
		tr = d
	}
	return tr
}
