package broker

import (
	"github.com/HaloHealthAfrica/optionstratv2-sub001/config"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// SafetyResult explains which mode the factory settled on and why. Any
// doubt resolves to paper, never to a half-configured live broker.
type SafetyResult struct {
	Mode    types.OrderMode
	Broker  string
	Reason  string
	Warning string
}

// Factory picks the adapter a process is allowed to use. Live execution
// requires BOTH APP_MODE=LIVE and ALLOW_LIVE_EXECUTION=true.
type Factory struct {
	cfg  *config.Config
	seed int64
}

// NewFactory builds a factory; seed feeds the paper simulator so test
// runs replay identically.
func NewFactory(cfg *config.Config, seed int64) *Factory {
	return &Factory{cfg: cfg, seed: seed}
}

// Adapter resolves the dual-flag safety gate and returns the adapter to
// route orders through.
func (f *Factory) Adapter() (Adapter, SafetyResult) {
	if f.cfg.AppMode != config.ModeLive {
		return NewPaperAdapter(f.seed), SafetyResult{
			Mode:   types.ModePaper,
			Broker: "paper",
			Reason: "APP_MODE is not LIVE",
		}
	}
	if !f.cfg.AllowLiveExecution {
		return NewPaperAdapter(f.seed), SafetyResult{
			Mode:   types.ModePaper,
			Broker: "paper",
			Reason: "ALLOW_LIVE_EXECUTION is not enabled",
		}
	}

	tradier := NewTradierAdapter(f.cfg.TradierAPIKey, f.cfg.TradierAccountID, f.cfg.TradierSandbox, f.cfg.BrokerTimeout)
	alpaca := NewAlpacaAdapter(f.cfg.AlpacaAPIKey, f.cfg.AlpacaSecretKey, f.cfg.AlpacaPaper, f.cfg.BrokerTimeout)

	preferred, fallback := orderPreference(f.cfg.PreferredBroker, tradier, alpaca)
	if preferred.IsConfigured() {
		return preferred, SafetyResult{
			Mode:   types.ModeLive,
			Broker: preferred.Capabilities().Name,
			Reason: "live execution enabled, preferred broker configured",
		}
	}
	if fallback.IsConfigured() {
		logger.Warnf("broker: preferred broker %s not configured, using %s",
			preferred.Capabilities().Name, fallback.Capabilities().Name)
		return fallback, SafetyResult{
			Mode:    types.ModeLive,
			Broker:  fallback.Capabilities().Name,
			Reason:  "live execution enabled, fallback broker configured",
			Warning: "preferred broker " + preferred.Capabilities().Name + " is not configured",
		}
	}

	logger.Warnf("broker: live execution requested but no broker configured, falling back to paper")
	return NewPaperAdapter(f.seed), SafetyResult{
		Mode:    types.ModePaper,
		Broker:  "paper",
		Reason:  "no live broker configured",
		Warning: "live execution requested but neither tradier nor alpaca is configured",
	}
}

func orderPreference(preferred string, tradier, alpaca Adapter) (Adapter, Adapter) {
	if preferred == "tradier" {
		return tradier, alpaca
	}
	return alpaca, tradier
}
