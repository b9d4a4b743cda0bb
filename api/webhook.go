package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/pipeline"
	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// handleWebhook verifies the signature, runs the fast pipeline stages
// synchronously, acknowledges, and finishes decision/execution in the
// background.
func (s *Server) handleWebhook(c *gin.Context) {
	requestID := uuid.NewString()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read body failed", "request_id": requestID})
		return
	}

	if !verifyHMAC(s.cfg.HMACSecret, body, c.GetHeader("x-webhook-signature")) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature", "request_id": requestID})
		return
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload", "request_id": requestID})
		return
	}

	source := types.SourceTradingView
	if src, ok := raw["source"].(string); ok && src != "" {
		source = types.Source(src)
	}

	// The continuation outlives this request, so it gets a detached
	// context rather than the request's.
	res, cont := s.pipe.Ingest(background(), source, raw)
	if res.Signal != nil {
		res.Signal.SignatureVerified = true
	}

	switch res.Status {
	case pipeline.StatusRejected:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "validation failed",
			"validation_errors": fieldErrorStrings(res.ValidationErrors, res.Failure),
			"request_id":        requestID,
			"signal_id":         res.Signal.ID,
		})
		return
	case pipeline.StatusDuplicate:
		signalID := res.DuplicateOf
		if signalID == "" {
			signalID = res.Signal.ID
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     "DUPLICATE",
			"request_id": requestID,
			"signal_id":  signalID,
		})
		return
	case pipeline.StatusQueued:
		c.JSON(http.StatusOK, gin.H{
			"status":     "ACCEPTED",
			"queued":     true,
			"request_id": requestID,
			"signal_id":  res.Signal.ID,
		})
		return
	}

	// Decision and execution continue after the acknowledgement.
	if cont != nil {
		go func() {
			final := cont()
			logger.Infof("api: webhook %s finished as %s", requestID, final.Status)
		}()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ACCEPTED",
		"request_id": requestID,
		"signal_id":  res.Signal.ID,
	})
}

func fieldErrorStrings(errs []types.FieldError, failure *pipeline.Failure) []string {
	out := make([]string, 0, len(errs)+1)
	for _, e := range errs {
		out = append(out, e.Error())
	}
	if len(out) == 0 && failure != nil {
		out = append(out, failure.Reason)
	}
	return out
}

// background returns a context detached from the request, for the
// asynchronous pipeline continuation.
func background() context.Context { return context.Background() }
