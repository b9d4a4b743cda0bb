// Package logger provides the process-wide structured logger sink used by
// every component: a thin wrapper over zerolog that accepts printf-style
// calls (Infof/Warnf/Errorf/Debugf) plus Stage/Failure helpers that emit
// correlation-id-tagged events for stage-by-stage pipeline logging.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log zerolog.Logger
)

func init() {
	Configure(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT") == "console")
}

// Configure (re)builds the global logger. level is any zerolog level name
// ("debug", "info", "warn", "error"); an empty or unknown value defaults to
// info. console=true renders human-readable output instead of JSON lines.
func Configure(level string, console bool) {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stdout
	if console {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	log = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func L() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &log
}

func Debugf(format string, args ...interface{}) { L().Debug().Msgf(format, args...) }
func Infof(format string, args ...interface{})  { L().Info().Msgf(format, args...) }
func Warnf(format string, args ...interface{})  { L().Warn().Msgf(format, args...) }
func Errorf(format string, args ...interface{}) { L().Error().Msgf(format, args...) }

// Stage logs a single pipeline stage transition: correlation id, stage
// name, outcome status and how long the stage took.
func Stage(correlationID, stage, status string, durationMs int64) {
	L().Info().
		Str("correlation_id", correlationID).
		Str("stage", stage).
		Str("status", status).
		Int64("duration_ms", durationMs).
		Msg("pipeline stage")
}

// Failure logs an isolated pipeline failure; by contract this must never
// propagate beyond the single signal that produced it.
func Failure(correlationID, stage, reason string) {
	L().Warn().
		Str("correlation_id", correlationID).
		Str("stage", stage).
		Str("reason", reason).
		Msg("pipeline failure")
}
