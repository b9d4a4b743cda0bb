package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EncodeOCC builds the canonical OCC option symbol: 6-char space-padded
// underlying + YYMMDD expiry + C/P + 8-digit strike in mills (strike ×
// 1000, zero-padded).
func EncodeOCC(underlying string, expiration time.Time, optType OptionType, strike float64) (string, error) {
	underlying = strings.ToUpper(strings.TrimSpace(underlying))
	if underlying == "" {
		return "", fmt.Errorf("occ: empty underlying")
	}
	if len(underlying) > 6 {
		return "", fmt.Errorf("occ: underlying %q longer than 6 chars", underlying)
	}
	if strike <= 0 {
		return "", fmt.Errorf("occ: strike must be positive, got %v", strike)
	}

	padded := fmt.Sprintf("%-6s", underlying)
	ymd := expiration.Format("060102")

	var cp string
	switch optType {
	case Call:
		cp = "C"
	case Put:
		cp = "P"
	default:
		return "", fmt.Errorf("occ: invalid option type %q", optType)
	}

	mills := int64(strike*1000 + 0.5)
	if mills <= 0 || mills > 99_999_999 {
		return "", fmt.Errorf("occ: strike %v out of encodable range", strike)
	}

	return fmt.Sprintf("%s%s%s%08d", padded, ymd, cp, mills), nil
}

// DecodedOCC is the round-tripped tuple from DecodeOCC.
type DecodedOCC struct {
	Underlying string
	Expiration time.Time
	OptionType OptionType
	Strike     float64
}

// DecodeOCC parses a canonical OCC symbol produced by EncodeOCC.
// Encode-then-decode round-trips any (underlying, expiration, C/P, strike)
// tuple within rounding of strike to 1/1000 of a dollar.
func DecodeOCC(symbol string) (DecodedOCC, error) {
	if len(symbol) != 21 {
		return DecodedOCC{}, fmt.Errorf("occ: symbol %q has length %d, want 21", symbol, len(symbol))
	}

	underlying := strings.TrimRight(symbol[0:6], " ")
	ymd := symbol[6:12]
	cp := symbol[12:13]
	strikeDigits := symbol[13:21]

	expiration, err := time.Parse("060102", ymd)
	if err != nil {
		return DecodedOCC{}, fmt.Errorf("occ: invalid expiration %q: %w", ymd, err)
	}

	var optType OptionType
	switch cp {
	case "C":
		optType = Call
	case "P":
		optType = Put
	default:
		return DecodedOCC{}, fmt.Errorf("occ: invalid option type char %q", cp)
	}

	mills, err := strconv.ParseInt(strikeDigits, 10, 64)
	if err != nil {
		return DecodedOCC{}, fmt.Errorf("occ: invalid strike digits %q: %w", strikeDigits, err)
	}

	return DecodedOCC{
		Underlying: underlying,
		Expiration: expiration,
		OptionType: optType,
		Strike:     float64(mills) / 1000.0,
	}, nil
}
