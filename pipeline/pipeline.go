// Package pipeline runs a webhook payload through the six processing
// stages (reception, normalization, validation, deduplication, decision,
// execution), logging every transition under a tracking id and isolating
// each signal's failures from the rest of the batch.
package pipeline

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/decision"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/metrics"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/signal"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/validate"
)

// Stage names, in processing order.
type Stage string

const (
	StageReception     Stage = "RECEPTION"
	StageNormalization Stage = "NORMALIZATION"
	StageValidation    Stage = "VALIDATION"
	StageDeduplication Stage = "DEDUPLICATION"
	StageDecision      Stage = "DECISION"
	StageExecution     Stage = "EXECUTION"
)

// Failure is one signal's isolated processing failure.
type Failure struct {
	TrackingID string
	Signal     *types.Signal
	Stage      Stage
	Reason     string
	Timestamp  time.Time
}

// Status is the pipeline's terminal verdict for one payload.
type Status string

const (
	StatusAccepted  Status = "ACCEPTED"
	StatusCompleted Status = "COMPLETED"
	StatusDuplicate Status = "DUPLICATE"
	StatusRejected  Status = "REJECTED"
	StatusQueued    Status = "QUEUED"
	StatusFailed    Status = "FAILED"
)

// Result is what one payload produced.
type Result struct {
	TrackingID       string
	Status           Status
	Signal           *types.Signal
	ValidationErrors []types.FieldError
	Decision         *decision.IntegratedDecision
	Failure          *Failure
	DuplicateOf      string // original signal id when Status is DUPLICATE
}

// Decider turns a validated signal into an entry decision; implemented by
// the trader package, which assembles the market inputs.
type Decider interface {
	DecideEntry(ctx context.Context, sig *types.Signal) (*decision.IntegratedDecision, error)
}

// Executor opens a position for an EXECUTE decision; implemented by the
// trader package.
type Executor interface {
	OpenPosition(ctx context.Context, sig *types.Signal, d *decision.IntegratedDecision, entryPrice float64) error
}

// SignalRecorder persists signal lifecycle changes; implemented by the
// store package.
type SignalRecorder interface {
	Insert(sig *types.Signal) error
	UpdateStatus(id string, status types.SignalStatus, validationResult string) error
}

// Pipeline wires the six stages together.
type Pipeline struct {
	validator *validate.Validator
	dedup     *signal.DedupCache
	queue     *validate.SignalQueue
	decider   Decider
	executor  Executor
	recorder  SignalRecorder
}

// New builds a pipeline. recorder may be nil in tests.
func New(validator *validate.Validator, dedup *signal.DedupCache, queue *validate.SignalQueue,
	decider Decider, executor Executor, recorder SignalRecorder) *Pipeline {
	return &Pipeline{
		validator: validator,
		dedup:     dedup,
		queue:     queue,
		decider:   decider,
		executor:  executor,
		recorder:  recorder,
	}
}

// Process runs one raw payload through every stage synchronously. Errors
// never escape: the returned Result carries the failure instead.
func (p *Pipeline) Process(ctx context.Context, source types.Source, raw map[string]interface{}) *Result {
	res, cont := p.Ingest(ctx, source, raw)
	if cont != nil {
		return cont()
	}
	return res
}

// Ingest runs reception through deduplication synchronously and returns
// the early result plus, when the signal survived, a continuation that
// finishes decision and execution. The webhook handler acknowledges off
// the early result and runs the continuation in the background.
func (p *Pipeline) Ingest(ctx context.Context, source types.Source, raw map[string]interface{}) (*Result, func() *Result) {
	trackingID := uuid.NewString()
	res := &Result{TrackingID: trackingID}
	started := time.Now()

	logStage(trackingID, StageReception, "received")

	// Normalization.
	sig, fieldErrs := signal.Normalize(source, raw)
	res.Signal = sig
	res.ValidationErrors = fieldErrs
	logStage(trackingID, StageNormalization, "normalized")

	if p.recorder != nil {
		if err := p.recorder.Insert(sig); err != nil {
			// Persistence trouble degrades audit, not processing.
			logger.Warnf("pipeline: persist signal %s failed: %v", sig.ID, err)
		}
	}

	// Validation, including the pre-market queue escalation.
	now := time.Now()
	verdict := p.validator.Validate(sig, fieldErrs, now)
	switch verdict.Outcome {
	case validate.OutcomeRejected:
		p.setStatus(sig, types.SignalRejected, verdict.Reason)
		logStage(trackingID, StageValidation, "rejected")
		return p.fail(res, StageValidation, verdict.Reason, StatusRejected), nil
	case validate.OutcomeQueued:
		p.queue.Enqueue(sig, now)
		p.setStatus(sig, types.SignalValidated, verdict.Reason)
		logStage(trackingID, StageValidation, "queued")
		res.Status = StatusQueued
		return res, nil
	}
	p.setStatus(sig, types.SignalValidated, "")
	logStage(trackingID, StageValidation, "validated")

	// Deduplication: one atomic check-and-set per fingerprint.
	if dup, originalID := p.dedup.CheckAndSet(sig.Fingerprint, sig.ID); dup {
		p.setStatus(sig, types.SignalRejected, "DUPLICATE")
		logStage(trackingID, StageDeduplication, "duplicate")
		res.Status = StatusDuplicate
		res.DuplicateOf = originalID
		return res, nil
	}
	logStage(trackingID, StageDeduplication, "fresh")

	res.Status = StatusAccepted
	return res, func() *Result {
		return p.decideAndExecute(ctx, res, sig, started)
	}
}

// ProcessQueued re-enters a previously queued signal at the decision
// stage, used when the pre-market queue drains at the open.
func (p *Pipeline) ProcessQueued(ctx context.Context, sig *types.Signal) *Result {
	trackingID := uuid.NewString()
	res := &Result{TrackingID: trackingID, Signal: sig}
	logStage(trackingID, StageDecision, "dequeued")
	return p.decideAndExecute(ctx, res, sig, time.Now())
}

// ProcessBatch runs each payload independently; a failure on one never
// stops the next.
func (p *Pipeline) ProcessBatch(ctx context.Context, source types.Source, raws []map[string]interface{}) []*Result {
	results := make([]*Result, 0, len(raws))
	for _, raw := range raws {
		results = append(results, p.Process(ctx, source, raw))
	}
	return results
}

func (p *Pipeline) decideAndExecute(ctx context.Context, res *Result, sig *types.Signal, started time.Time) *Result {
	trackingID := res.TrackingID

	p.setStatus(sig, types.SignalProcessing, "")

	d, err := p.decider.DecideEntry(ctx, sig)
	if err != nil {
		p.setStatus(sig, types.SignalFailed, err.Error())
		logStage(trackingID, StageDecision, "error")
		return p.fail(res, StageDecision, err.Error(), StatusFailed)
	}
	res.Decision = d
	logStage(trackingID, StageDecision, string(d.Action))

	if d.Action == decision.ActionExit {
		// Close-type signal, already acted on by the decider.
		p.setStatus(sig, types.SignalCompleted, "")
		metrics.RecordPipelineResult(string(StatusCompleted))
		res.Status = StatusCompleted
		return res
	}
	if d.Action != decision.ActionExecute {
		p.setStatus(sig, types.SignalRejected, d.RejectReason)
		metrics.RecordPipelineResult(string(StatusRejected))
		res.Status = StatusRejected
		return res
	}

	entryPrice := ResolveEntryPrice(sig)
	if err := p.executor.OpenPosition(ctx, sig, d, entryPrice); err != nil {
		p.setStatus(sig, types.SignalFailed, err.Error())
		logStage(trackingID, StageExecution, "error")
		return p.fail(res, StageExecution, err.Error(), StatusFailed)
	}

	p.setStatus(sig, types.SignalCompleted, "")
	logStage(trackingID, StageExecution, "executed")
	metrics.RecordPipelineResult(string(StatusCompleted))
	metrics.ObservePipelineDuration(time.Since(started))
	res.Status = StatusCompleted
	return res
}

func (p *Pipeline) fail(res *Result, stage Stage, reason string, status Status) *Result {
	res.Status = status
	res.Failure = &Failure{
		TrackingID: res.TrackingID,
		Signal:     res.Signal,
		Stage:      stage,
		Reason:     reason,
		Timestamp:  time.Now(),
	}
	logger.Failure(res.TrackingID, string(stage), reason)
	metrics.RecordPipelineResult(string(status))
	return res
}

func (p *Pipeline) setStatus(sig *types.Signal, status types.SignalStatus, note string) {
	sig.Status = status
	if p.recorder != nil {
		if err := p.recorder.UpdateStatus(sig.ID, status, note); err != nil {
			logger.Warnf("pipeline: update signal %s status failed: %v", sig.ID, err)
		}
	}
}

func logStage(trackingID string, stage Stage, status string) {
	logger.Stage(trackingID, string(stage), status, 0)
}

// entryPriceFields is the resolution order for the execution price.
var entryPriceFields = []string{
	"price", "entryPrice", "limit_price", "last", "close", "current_price", "underlying_price",
}

// ResolveEntryPrice picks the execution price from the payload metadata,
// first present field wins.
func ResolveEntryPrice(sig *types.Signal) float64 {
	if sig.RawPayload == nil {
		return sig.LimitPrice
	}
	for _, field := range entryPriceFields {
		if v, ok := sig.RawPayload[field]; ok {
			switch val := v.(type) {
			case float64:
				if val > 0 {
					return val
				}
			case string:
				if f, err := parseFloat(val); err == nil && f > 0 {
					return f
				}
			}
		}
	}
	return sig.LimitPrice
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
