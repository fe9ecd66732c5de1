package xquery

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number is a numeric query result. It remembers whether the value came
// from an integer or a floating-point item.
type Number struct {
	i       int64
	f       float64
	isFloat bool
}

// Int returns an integer Number.
func Int(n int64) Number { return Number{i: n} }

// Float returns a floating-point Number.
func Float(f float64) Number { return Number{f: f, isFloat: true} }

// IsInteger reports whether n holds an integer.
func (n Number) IsInteger() bool { return !n.isFloat }

// Int64 returns n as an int64, truncating floats.
func (n Number) Int64() int64 {
	if n.isFloat {
		return int64(n.f)
	}
	return n.i
}

// Float64 returns n as a float64.
func (n Number) Float64() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

// String prints integers as digits and floats in plain decimal notation,
// never in exponent form. Integral floats keep a ".0" suffix.
func (n Number) String() string {
	if !n.isFloat {
		return strconv.FormatInt(n.i, 10)
	}
	switch {
	case math.IsNaN(n.f):
		return "NaN"
	case math.IsInf(n.f, 1):
		return "Infinity"
	case math.IsInf(n.f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(n.f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

// MarshalJSON encodes n as a JSON number. NaN and infinities, which JSON
// cannot represent, are encoded as strings.
func (n Number) MarshalJSON() ([]byte, error) {
	if n.isFloat && (math.IsNaN(n.f) || math.IsInf(n.f, 0)) {
		return json.Marshal(n.String())
	}
	return []byte(n.String()), nil
}

// parseNumber parses the text of a string or node item. Text with a '.'
// after the first character is a float, anything else must be an integer.
func parseNumber(s string) (Number, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Number{}, strconv.ErrSyntax
	}
	if strings.IndexByte(s, '.') > 0 {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Number{}, err
		}
		return Float(f), nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Number{}, err
	}
	return Int(i), nil
}
