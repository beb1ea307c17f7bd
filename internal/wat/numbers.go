package wat

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/vela-wasm/vela/internal/ieee754"
)

// isNumberLiteral reports whether text looks like it starts a numeric
// literal (as opposed to a keyword), without fully validating its grammar.
// Numbers begin with a digit, "inf" or "nan", optionally preceded by a sign.
func isNumberLiteral(text string) bool {
	i := 0
	if text[i] == '+' || text[i] == '-' {
		i++
	}
	if i >= len(text) {
		return false
	}
	if text[i] >= '0' && text[i] <= '9' {
		return true
	}
	rest := text[i:]
	return strings.HasPrefix(rest, "inf") || strings.HasPrefix(rest, "nan")
}

// classifyNumber decides whether a number-shaped token is unsigned, signed,
// or floating point, based on its sign and the presence of a decimal point,
// exponent, or inf/nan keyword.
func classifyNumber(text string) tokenType {
	signed := text[0] == '+' || text[0] == '-'
	body := text
	if signed {
		body = text[1:]
	}
	if strings.Contains(body, ".") || strings.Contains(body, "inf") || strings.Contains(body, "nan") {
		return tokenFN
	}
	lower := strings.ToLower(body)
	hasExp := !strings.HasPrefix(lower, "0x") && (strings.Contains(lower, "e"))
	hasHexExp := strings.HasPrefix(lower, "0x") && strings.Contains(lower, "p")
	if hasExp || hasHexExp {
		return tokenFN
	}
	if signed {
		return tokenSN
	}
	return tokenUN
}

func stripUnderscores(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// decodeUint32 parses an unsigned integer literal (decimal or 0x-prefixed
// hex, with optional underscore digit separators) into a uint32, erroring
// on overflow.
func decodeUint32(b []byte) (uint32, error) {
	v, err := decodeUint64(b)
	if err != nil {
		return 0, err
	}
	if v > 0xffffffff {
		return 0, errors.Errorf("value %d overflows u32", v)
	}
	return uint32(v), nil
}

// decodeUint64 parses an unsigned integer literal into a uint64, erroring
// on overflow.
func decodeUint64(b []byte) (uint64, error) {
	s := stripUnderscores(string(b))
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid unsigned integer %q", string(b))
	}
	return v, nil
}

// decodeInt32 parses a signed integer literal into an int32, accepting
// values in the full [-2^31, 2^32) range the text format permits for i32
// (negative literals wrap via two's complement; the unsigned form up to
// 2^32-1 is also accepted).
func decodeInt32(b []byte) (int32, error) {
	v, err := decodeInt64Raw(b, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// decodeInt64 parses a signed integer literal into an int64, within
// [-2^63, 2^64).
func decodeInt64(b []byte) (int64, error) {
	return decodeInt64Raw(b, 64)
}

func decodeInt64Raw(b []byte, bits int) (int64, error) {
	s := stripUnderscores(string(b))
	neg := false
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, bits)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid integer %q", string(b))
	}
	// Negative literals are allowed down to -2^(bits-1).
	if neg && v > uint64(1)<<(bits-1) {
		return 0, errors.Errorf("integer %q out of range", string(b))
	}
	if neg {
		return -int64(v), nil
	}
	return int64(v), nil
}

// decodeFloat32 parses a float literal, including hex-float, inf, and
// nan/nan:0xHHH forms, returning an IEEE-754 float32.
func decodeFloat32(b []byte) (float32, error) {
	f64, err := decodeFloat64(b)
	if err != nil {
		return 0, err
	}
	return float32(f64), nil
}

// decodeFloat64 parses a float literal, including hex-float, inf, and
// nan/nan:0xHHH forms.
func decodeFloat64(b []byte) (float64, error) {
	s := stripUnderscores(string(b))
	neg := false
	body := s
	if len(body) > 0 && (body[0] == '+' || body[0] == '-') {
		neg = body[0] == '-'
		body = body[1:]
	}

	lower := strings.ToLower(body)
	switch {
	case lower == "inf":
		if neg {
			return math.Inf(-1), nil
		}
		return math.Inf(1), nil
	case strings.HasPrefix(lower, "nan"):
		rest := lower[3:]
		if rest == "" {
			return float64(ieee754.NaN64WithPayload(neg, 1<<51)), nil
		}
		if !strings.HasPrefix(rest, ":0x") {
			return 0, errors.Errorf("malformed nan literal %q", string(b))
		}
		payload, err := parseHexUint(rest[3:])
		if err != nil {
			return 0, errors.Wrapf(err, "malformed nan payload in %q", string(b))
		}
		return ieee754.NaN64WithPayload(neg, payload), nil
	}

	var mag float64
	var err error
	if strings.HasPrefix(lower, "0x") {
		// WAT permits a hex float with no binary exponent (e.g. "0x1.8"),
		// defaulting it to p0; Go's strconv.ParseFloat requires one.
		parseBody := body
		if !strings.ContainsAny(body, "pP") {
			parseBody = body + "p0"
		}
		mag, err = strconv.ParseFloat(parseBody, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid hex float %q", string(b))
		}
	} else {
		mag, err = strconv.ParseFloat(body, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid float %q", string(b))
		}
	}
	if neg {
		return -mag, nil
	}
	return mag, nil
}
