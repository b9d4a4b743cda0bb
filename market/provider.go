package market

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/config"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
)

// VendorProvider implements Provider against whichever vendor is configured
// via MARKET_DATA_PROVIDER: Polygon, Alpha Vantage or TwelveData. The
// vendor-specific envelope decoding lives in vendor.go; this file owns the
// caching, coalescing and HTTP plumbing common to all of them.
type VendorProvider struct {
	client   *http.Client
	provider string
	apiKey   string
	bars     *BarsClient // fallback ATR source when the vendor lacks indicators

	quotes    *ttlCache
	vix       *ttlCache
	atr       *ttlCache
	gex       *ttlCache
	schedules *ttlCache
}

// NewVendorProvider builds a Provider from process configuration.
func NewVendorProvider(cfg *config.Config) *VendorProvider {
	var apiKey string
	switch strings.ToLower(cfg.MarketDataProvider) {
	case "alpha_vantage", "alphavantage":
		apiKey = cfg.AlphaVantageAPIKey
	case "twelvedata":
		apiKey = cfg.TwelveDataAPIKey
	default:
		apiKey = cfg.PolygonAPIKey
	}

	return &VendorProvider{
		client:    &http.Client{Timeout: cfg.BrokerTimeout},
		provider:  strings.ToLower(cfg.MarketDataProvider),
		apiKey:    apiKey,
		bars:      NewBarsClient(cfg.AlpacaAPIKey, cfg.AlpacaSecretKey, cfg.BrokerTimeout),
		quotes:    newTTLCache(cfg.MarketCacheTTL, cfg.StaleCacheGrace),
		vix:       newTTLCache(cfg.MarketCacheTTL, cfg.StaleCacheGrace),
		atr:       newTTLCache(cfg.MarketCacheTTL, cfg.StaleCacheGrace),
		gex:       newTTLCache(cfg.MarketCacheTTL, cfg.StaleCacheGrace),
		schedules: newTTLCache(cfg.ScheduleCacheTTL, cfg.StaleCacheGrace),
	}
}

func (p *VendorProvider) GetQuote(symbol string) (*Quote, error) {
	v, err := p.quotes.GetOrFetch("quote:"+symbol, func() (interface{}, error) {
		return p.fetchQuote(symbol)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Quote), nil
}

func (p *VendorProvider) GetUnderlyingQuote(underlying string) (*Quote, error) {
	v, err := p.quotes.GetOrFetch("underlying:"+underlying, func() (interface{}, error) {
		return p.fetchUnderlyingQuote(underlying)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Quote), nil
}

func (p *VendorProvider) GetVIX() (float64, error) {
	v, err := p.vix.GetOrFetch("vix", func() (interface{}, error) {
		return p.fetchVIX()
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (p *VendorProvider) GetATRContext(underlying string) (*ATRContext, error) {
	v, err := p.atr.GetOrFetch("atr:"+underlying, func() (interface{}, error) {
		return p.fetchATR(underlying)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ATRContext), nil
}

func (p *VendorProvider) GetGEX(underlying string) (*GEXBundle, error) {
	v, err := p.gex.GetOrFetch("gex:"+underlying, func() (interface{}, error) {
		return p.fetchGEX(underlying)
	})
	if err != nil {
		return nil, err
	}
	return v.(*GEXBundle), nil
}

func (p *VendorProvider) GetSchedule(now time.Time) (*Schedule, error) {
	key := now.Format("2006-01-02T15:04")
	v, err := p.schedules.GetOrFetch("schedule:"+key, func() (interface{}, error) {
		return computeSchedule(now), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Schedule), nil
}

// --- vendor HTTP plumbing -------------------------------------------------

func (p *VendorProvider) doGet(url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("market: build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("market: read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("market: vendor status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (p *VendorProvider) fetchQuote(symbol string) (*Quote, error) {
	body, err := p.doGet(p.quoteURL(symbol))
	if err != nil {
		logger.Warnf("market: quote fetch failed for %s: %v", symbol, err)
		return nil, err
	}
	return parseQuoteEnvelope(p.provider, symbol, body)
}

func (p *VendorProvider) fetchUnderlyingQuote(underlying string) (*Quote, error) {
	body, err := p.doGet(p.underlyingURL(underlying))
	if err != nil {
		return nil, err
	}
	return parseQuoteEnvelope(p.provider, underlying, body)
}

func (p *VendorProvider) fetchVIX() (float64, error) {
	body, err := p.doGet(p.underlyingURL("VIX"))
	if err != nil {
		return 0, err
	}
	q, err := parseQuoteEnvelope(p.provider, "VIX", body)
	if err != nil {
		return 0, err
	}
	return q.Last, nil
}

func (p *VendorProvider) fetchATR(underlying string) (*ATRContext, error) {
	body, err := p.doGet(p.atrURL(underlying))
	if err == nil {
		return parseATREnvelope(body)
	}

	// Vendors without an indicator endpoint: compute ATR from daily bars.
	if p.bars.IsConfigured() {
		bars, berr := p.bars.DailyBars(underlying, 60)
		if berr == nil {
			return ATRFromBars(bars, 14)
		}
		logger.Warnf("market: ATR bars fallback failed for %s: %v", underlying, berr)
	}
	return nil, err
}

func (p *VendorProvider) fetchGEX(underlying string) (*GEXBundle, error) {
	body, err := p.doGet(p.gexURL(underlying))
	if err != nil {
		return nil, err
	}
	return parseGEXEnvelope(underlying, body)
}

func (p *VendorProvider) quoteURL(symbol string) string {
	return fmt.Sprintf("https://api.%s.io/v1/options/quote?symbol=%s&apiKey=%s", p.provider, symbol, p.apiKey)
}

func (p *VendorProvider) underlyingURL(symbol string) string {
	return fmt.Sprintf("https://api.%s.io/v1/quote?symbol=%s&apiKey=%s", p.provider, symbol, p.apiKey)
}

func (p *VendorProvider) atrURL(underlying string) string {
	return fmt.Sprintf("https://api.%s.io/v1/indicators/atr?symbol=%s&apiKey=%s", p.provider, underlying, p.apiKey)
}

func (p *VendorProvider) gexURL(underlying string) string {
	return fmt.Sprintf("https://api.%s.io/v1/positioning/gex?symbol=%s&apiKey=%s", p.provider, underlying, p.apiKey)
}

// postJSON is kept for vendors (e.g. batched quote lookups) that require a
// POST body rather than query parameters.
func (p *VendorProvider) postJSON(url string, payload interface{}) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
