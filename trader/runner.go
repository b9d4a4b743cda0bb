package trader

import (
	"context"
	"time"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/pipeline"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/signal"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// Runner owns the background loops: the position-refresh cycle, the fill
// poller, the pre-market queue drain and the dedup cache sweep.
type Runner struct {
	manager *Manager
	poller  *Poller
	pipe    *pipeline.Pipeline
	dedup   *signal.DedupCache

	stopCh chan struct{}
}

// NewRunner wires the loops together.
func NewRunner(manager *Manager, poller *Poller, pipe *pipeline.Pipeline, dedup *signal.DedupCache) *Runner {
	return &Runner{
		manager: manager,
		poller:  poller,
		pipe:    pipe,
		dedup:   dedup,
		stopCh:  make(chan struct{}),
	}
}

// Run blocks until Stop (or ctx cancellation), driving every loop from
// its own ticker.
func (r *Runner) Run(ctx context.Context) {
	cfg := r.manager.cfg

	logger.Infof("trader: started in %s mode via %s (%s)",
		r.manager.safety.Mode, r.manager.safety.Broker, r.manager.safety.Reason)
	if r.manager.safety.Warning != "" {
		logger.Warnf("trader: %s", r.manager.safety.Warning)
	}

	refreshTicker := time.NewTicker(cfg.PositionRefreshInterval)
	defer refreshTicker.Stop()
	pollTimer := time.NewTimer(cfg.FillPollInterval)
	defer pollTimer.Stop()
	sweepTicker := time.NewTicker(time.Minute)
	defer sweepTicker.Stop()
	drainTicker := time.NewTicker(time.Minute)
	defer drainTicker.Stop()

	for {
		select {
		case <-refreshTicker.C:
			if refreshed, exits, err := r.manager.RefreshOnce(ctx); err != nil {
				logger.Errorf("trader: refresh cycle failed: %v", err)
			} else if refreshed > 0 {
				logger.Infof("trader: refreshed %d positions, %d exit signals", refreshed, exits)
			}

		case <-pollTimer.C:
			if r.manager.adapter.Capabilities().RequiresPolling {
				if updated, err := r.poller.PollOnce(ctx); err != nil {
					logger.Errorf("trader: fill poll failed: %v", err)
				} else if updated > 0 {
					logger.Infof("trader: reconciled %d orders", updated)
				}
			}
			pollTimer.Reset(r.poller.NextInterval())

		case <-sweepTicker.C:
			if removed := r.dedup.Sweep(); removed > 0 {
				logger.Debugf("trader: swept %d dedup entries", removed)
			}
			r.manager.queue.Sweep(time.Now())

		case <-drainTicker.C:
			drained := r.manager.DrainQueue(time.Now(), func(sig *types.Signal) {
				res := r.pipe.ProcessQueued(ctx, sig)
				logger.Infof("trader: drained queued signal %s for %s: %s", sig.ID, sig.Symbol, res.Status)
			})
			if drained > 0 {
				logger.Infof("trader: drained %d queued pre-market signals", drained)
			}

		case <-ctx.Done():
			logger.Infof("trader: context cancelled, stopping loops")
			return
		case <-r.stopCh:
			logger.Infof("trader: stop requested, stopping loops")
			return
		}
	}
}

// Stop ends Run.
func (r *Runner) Stop() {
	close(r.stopCh)
}
