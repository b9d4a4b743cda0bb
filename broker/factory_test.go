package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/config"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

func baseConfig() *config.Config {
	return &config.Config{
		AppMode:         config.ModePaper,
		PreferredBroker: "tradier",
		BrokerTimeout:   10 * time.Second,
	}
}

func TestFactoryPaperModeStaysPaper(t *testing.T) {
	cfg := baseConfig()
	cfg.TradierAPIKey = "key"
	cfg.TradierAccountID = "acct"

	adapter, safety := NewFactory(cfg, 42).Adapter()
	assert.Equal(t, types.ModePaper, safety.Mode)
	assert.True(t, adapter.Capabilities().Paper)
	assert.Equal(t, "APP_MODE is not LIVE", safety.Reason)
}

func TestFactoryLiveWithoutAllowFlagStaysPaper(t *testing.T) {
	cfg := baseConfig()
	cfg.AppMode = config.ModeLive
	cfg.AllowLiveExecution = false
	cfg.TradierAPIKey = "key"
	cfg.TradierAccountID = "acct"

	adapter, safety := NewFactory(cfg, 42).Adapter()
	assert.Equal(t, types.ModePaper, safety.Mode)
	assert.True(t, adapter.Capabilities().Paper)
	assert.Equal(t, "ALLOW_LIVE_EXECUTION is not enabled", safety.Reason)
}

func TestFactoryLivePrefersConfiguredBroker(t *testing.T) {
	cfg := baseConfig()
	cfg.AppMode = config.ModeLive
	cfg.AllowLiveExecution = true
	cfg.TradierAPIKey = "key"
	cfg.TradierAccountID = "acct"

	adapter, safety := NewFactory(cfg, 42).Adapter()
	assert.Equal(t, types.ModeLive, safety.Mode)
	assert.Equal(t, "tradier", adapter.Capabilities().Name)
}

func TestFactoryLiveFallsBackToOtherBroker(t *testing.T) {
	cfg := baseConfig()
	cfg.AppMode = config.ModeLive
	cfg.AllowLiveExecution = true
	cfg.AlpacaAPIKey = "key"
	cfg.AlpacaSecretKey = "secret"

	adapter, safety := NewFactory(cfg, 42).Adapter()
	assert.Equal(t, types.ModeLive, safety.Mode)
	assert.Equal(t, "alpaca", adapter.Capabilities().Name)
	assert.NotEmpty(t, safety.Warning)
}

func TestFactoryLiveWithNoBrokerFallsBackToPaper(t *testing.T) {
	cfg := baseConfig()
	cfg.AppMode = config.ModeLive
	cfg.AllowLiveExecution = true

	adapter, safety := NewFactory(cfg, 42).Adapter()
	assert.Equal(t, types.ModePaper, safety.Mode)
	assert.True(t, adapter.Capabilities().Paper)
	assert.NotEmpty(t, safety.Warning)
}
