package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/broker"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/config"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/decision"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/market"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/pipeline"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/regime"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/scoring"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/signal"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/store"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/trader"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/validate"
)

const testSecret = "test-hmac-secret"

type fakeProvider struct{}

func (fakeProvider) GetQuote(symbol string) (*market.Quote, error) {
	return &market.Quote{Symbol: symbol, Mid: 3.00}, nil
}
func (f fakeProvider) GetUnderlyingQuote(u string) (*market.Quote, error) { return f.GetQuote(u) }
func (fakeProvider) GetVIX() (float64, error)                             { return 18, nil }
func (fakeProvider) GetATRContext(string) (*market.ATRContext, error) {
	return &market.ATRContext{ATR: 0.4, ATRPercentile: 50}, nil
}
func (fakeProvider) GetGEX(string) (*market.GEXBundle, error) {
	return &market.GEXBundle{DealerPosition: "LONG_GAMMA"}, nil
}
func (fakeProvider) GetSchedule(time.Time) (*market.Schedule, error) {
	return &market.Schedule{Session: market.SessionMorning, IsOpen: true}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.InitTables())
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{
		AppMode:        config.ModePaper,
		HMACSecret:     testSecret,
		APIAuthToken:   "api-token",
		PortfolioValue: 100_000,
		RiskPerTrade:   0.02,
	}

	provider := fakeProvider{}
	adapter := broker.NewPaperAdapter(42)
	safety := broker.SafetyResult{Mode: types.ModePaper, Broker: "paper", Reason: "APP_MODE is not LIVE"}

	orchCfg := decision.DefaultConfig()
	orchCfg.RequireStableRegime = false
	orch := decision.NewOrchestrator(orchCfg,
		scoring.NewEngine(scoring.DefaultConfig(), st.Signals()),
		decision.NewSizer(st.Regimes(), st.Rules()),
		st.Decisions())

	tracker := regime.NewTracker(regime.DefaultConfig(), st.Regimes())
	queue := validate.NewSignalQueue(time.Hour)
	manager := trader.NewManager(cfg, st, provider, adapter, safety, orch, tracker, queue)

	validator := validate.NewValidator(validate.DefaultConfig(), provider)
	dedup := signal.NewDedupCache(60*time.Second, 5*time.Minute)
	pipe := pipeline.New(validator, dedup, queue, manager, manager, st.Signals())

	return NewServer(cfg, st, pipe, manager)
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookBody() []byte {
	payload := map[string]interface{}{
		"ticker":     "SPY",
		"action":     "BUY",
		"type":       "CALL",
		"strike":     600.0,
		"expiration": time.Now().AddDate(0, 1, 0).Format("2006-01-02"),
		"qty":        1,
		"price":      3.00,
	}
	body, _ := json.Marshal(payload)
	return body
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	router := newTestServer(t).Router()

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(webhookBody()))
	req.Header.Set("x-webhook-signature", "deadbeef")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookAcceptsSignedPayload(t *testing.T) {
	router := newTestServer(t).Router()

	body := webhookBody()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("x-webhook-signature", "sha256="+sign(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ACCEPTED", resp["status"])
	assert.NotEmpty(t, resp["request_id"])
	assert.NotEmpty(t, resp["signal_id"])
}

func TestWebhookValidationErrors(t *testing.T) {
	router := newTestServer(t).Router()

	payload := map[string]interface{}{"ticker": "SPY", "action": "BUY"}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("x-webhook-signature", sign(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["validation_errors"])
}

func TestReadRoutesRequireAuth(t *testing.T) {
	router := newTestServer(t).Router()

	req := httptest.NewRequest(http.MethodGet, "/positions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/positions", nil)
	req.Header.Set("Authorization", "Bearer api-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthIsPublic(t *testing.T) {
	router := newTestServer(t).Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "PAPER", resp["mode"])
}

func TestVerifyHMACPrefixAndTiming(t *testing.T) {
	body := []byte(`{"a":1}`)
	sig := sign(body)

	assert.True(t, verifyHMAC(testSecret, body, sig))
	assert.True(t, verifyHMAC(testSecret, body, "sha256="+sig))
	assert.False(t, verifyHMAC(testSecret, body, "00"+sig[2:]))
	assert.False(t, verifyHMAC("", body, sig))
	assert.False(t, verifyHMAC(testSecret, body, ""))
}
