// Package signal turns a vendor webhook payload into a canonical
// types.Signal and guards the fingerprint window against duplicate
// submissions.
package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/types"
)

// field aliases: the webhook layer accepts a union of payload shapes;
// Normalize tries each alias in order and takes the first present.
var (
	symbolFields     = []string{"ticker", "symbol", "underlying"}
	actionFields     = []string{"action", "side", "signal", "order"}
	typeFields       = []string{"type", "option_type"}
	expFields        = []string{"expiration", "expiry", "exp"}
	qtyFields        = []string{"qty", "quantity", "contracts", "size"}
	priceFields      = []string{"price", "limit_price"}
	timestampFields  = []string{"timestamp", "time", "ts"}
	confidenceFields = []string{"confidence", "conf"}
)

// Normalize converts a raw webhook payload into a canonical Signal. It
// never returns a nil error alone on field problems; instead it
// accumulates []types.FieldError and leaves the decision of what to do
// with them to the caller.
func Normalize(source types.Source, raw map[string]interface{}) (*types.Signal, []types.FieldError) {
	var errs []types.FieldError

	symbol, ok := firstString(raw, symbolFields...)
	if !ok || symbol == "" {
		errs = append(errs, types.FieldError{Field: "symbol", Reason: "missing"})
	}
	symbol = cleanSymbol(symbol)

	rawAction, ok := firstString(raw, actionFields...)
	if !ok || rawAction == "" {
		errs = append(errs, types.FieldError{Field: "action", Reason: "missing"})
	}
	action := normalizeAction(rawAction)
	if action == "" {
		errs = append(errs, types.FieldError{Field: "action", Reason: fmt.Sprintf("unrecognized action %q", rawAction)})
	}

	rawType, _ := firstString(raw, typeFields...)
	optType := normalizeOptionType(rawType)
	if optType == "" {
		errs = append(errs, types.FieldError{Field: "option_type", Reason: fmt.Sprintf("unrecognized option type %q", rawType)})
	}

	rawExp, ok := firstString(raw, expFields...)
	var expiration string
	if !ok || rawExp == "" {
		errs = append(errs, types.FieldError{Field: "expiration", Reason: "missing"})
	} else {
		exp, err := normalizeExpiration(rawExp)
		if err != nil {
			errs = append(errs, types.FieldError{Field: "expiration", Reason: err.Error()})
		} else {
			expiration = exp
		}
	}

	quantity := firstNumberAsInt(raw, qtyFields...)
	if quantity <= 0 {
		errs = append(errs, types.FieldError{Field: "quantity", Reason: "must be positive"})
	}

	strike := firstNumber(raw, "strike")
	if strike <= 0 {
		errs = append(errs, types.FieldError{Field: "strike", Reason: "must be positive"})
	}

	limitPrice := firstNumber(raw, priceFields...)

	orderType, _ := firstString(raw, "order_type")
	orderType = strings.ToUpper(strings.TrimSpace(orderType))
	if orderType == "" {
		orderType = "MARKET"
	}

	tif, _ := firstString(raw, "time_in_force", "tif")
	tif = strings.ToUpper(strings.TrimSpace(tif))
	if tif == "" {
		tif = "DAY"
	}

	timeframe, _ := firstString(raw, "timeframe")
	strategy, _ := firstString(raw, "strategy")

	direction := deriveDirection(action, optType)

	now := time.Now().UTC()

	// The logical signal time anchors the dedup fingerprint: a vendor
	// re-sending the same alert keeps the same timestamp, so the
	// fingerprint matches. Server receive time is the fallback only when
	// the payload carries no timestamp at all.
	signalTime, hasTime := parseTimestamp(raw)
	if !hasTime {
		signalTime = now
	}

	confidence := firstNumber(raw, confidenceFields...)
	if confidence > 0 && confidence <= 1 {
		// Fractional vendors report 0-1; the queue threshold is 0-100.
		confidence *= 100
	}
	sig := &types.Signal{
		ID:              uuid.NewString(),
		Source:          source,
		Symbol:          symbol,
		Direction:       direction,
		OptionDirection: optType,
		Action:          action,
		Strike:          strike,
		Expiration:      expiration,
		OptionType:      types.OptionType(optType),
		Timeframe:       timeframe,
		Quantity:        quantity,
		OrderType:       orderType,
		TimeInForce:     tif,
		LimitPrice:      limitPrice,
		Confidence:      confidence,
		Strategy:        strategy,
		RawPayload:      raw,
		Timestamp:       signalTime,
		Status:          types.SignalPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	sig.Fingerprint = Fingerprint(source, symbol, signalTime, direction)

	return sig, errs
}

// parseTimestamp extracts the vendor's signal timestamp: RFC3339 (with or
// without sub-second precision), a bare datetime, or epoch seconds /
// milliseconds as a number or numeric string.
func parseTimestamp(raw map[string]interface{}) (time.Time, bool) {
	for _, k := range timestampFields {
		v, ok := raw[k]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			s := strings.TrimSpace(val)
			if s == "" {
				continue
			}
			for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
				if t, err := time.Parse(layout, s); err == nil {
					return t.UTC(), true
				}
			}
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return epochToTime(n), true
			}
		case float64:
			if val > 0 {
				return epochToTime(int64(val)), true
			}
		}
	}
	return time.Time{}, false
}

// epochToTime treats values above 1e12 as milliseconds, else seconds.
func epochToTime(n int64) time.Time {
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// cleanSymbol uppercases and strips exchange prefixes (NASDAQ:SPY) and
// dotted suffixes (SPY.US).
func cleanSymbol(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if idx := strings.Index(symbol, ":"); idx != -1 {
		symbol = symbol[idx+1:]
	}
	if idx := strings.Index(symbol, "."); idx != -1 {
		symbol = symbol[:idx]
	}
	return symbol
}

func normalizeAction(raw string) types.Action {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "LONG":
		return types.ActionBuy
	case "SELL", "SHORT":
		return types.ActionSell
	case "EXIT", "FLATTEN", "CLOSE":
		return types.ActionClose
	default:
		return ""
	}
}

func normalizeOptionType(raw string) types.OptionDirection {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "C", "CALL":
		return types.DirCall
	case "P", "PUT":
		return types.DirPut
	default:
		return ""
	}
}

// normalizeExpiration accepts YYYY-MM-DD, MM/DD/YYYY, YYMMDD (years <=50
// map to 20xx, >50 to 19xx), else falls back to ISO parse.
func normalizeExpiration(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.Format("2006-01-02"), nil
	}
	if t, err := time.Parse("01/02/2006", raw); err == nil {
		return t.Format("2006-01-02"), nil
	}
	if len(raw) == 6 {
		if _, err := strconv.Atoi(raw); err == nil {
			yy, _ := strconv.Atoi(raw[0:2])
			mm := raw[2:4]
			dd := raw[4:6]
			year := 2000 + yy
			if yy > 50 {
				year = 1900 + yy
			}
			candidate := fmt.Sprintf("%04d-%s-%s", year, mm, dd)
			if t, err := time.Parse("2006-01-02", candidate); err == nil {
				return t.Format("2006-01-02"), nil
			}
		}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.Format("2006-01-02"), nil
	}

	return "", fmt.Errorf("unrecognized expiration format %q", raw)
}

// deriveDirection derives BULLISH/BEARISH/NEUTRAL from action+optionType:
// BUY+CALL or SELL+PUT -> BULLISH; BUY+PUT or SELL+CALL -> BEARISH; else
// NEUTRAL.
func deriveDirection(action types.Action, optType types.OptionDirection) types.Direction {
	switch {
	case action == types.ActionBuy && optType == types.DirCall:
		return types.Bullish
	case action == types.ActionSell && optType == types.DirPut:
		return types.Bullish
	case action == types.ActionBuy && optType == types.DirPut:
		return types.Bearish
	case action == types.ActionSell && optType == types.DirCall:
		return types.Bearish
	default:
		return types.Neutral
	}
}

// Fingerprint computes hash(source|symbol|iso-timestamp|direction), the
// key the dedup cache's check-and-set operates on. ts is the signal's
// logical (vendor) timestamp, so resubmissions of the same alert hash to
// the same key.
func Fingerprint(source types.Source, symbol string, ts time.Time, direction types.Direction) string {
	raw := fmt.Sprintf("%s|%s|%s|%s", source, symbol, ts.UTC().Format(time.RFC3339), direction)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func firstString(raw map[string]interface{}, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			switch val := v.(type) {
			case string:
				if val != "" {
					return val, true
				}
			case float64:
				return strconv.FormatFloat(val, 'f', -1, 64), true
			}
		}
	}
	return "", false
}

func firstNumber(raw map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			switch val := v.(type) {
			case float64:
				return val
			case string:
				if f, err := strconv.ParseFloat(val, 64); err == nil {
					return f
				}
			}
		}
	}
	return 0
}

func firstNumberAsInt(raw map[string]interface{}, keys ...string) int {
	return int(firstNumber(raw, keys...))
}
