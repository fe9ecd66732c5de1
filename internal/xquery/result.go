package xquery

import (
	"fmt"
	"strings"
)

// ResultType selects the mapper used by ExecuteAs.
type ResultType int

const (
	ResultString ResultType = iota
	ResultBoolean
	ResultNumber
	ResultNode
)

var resultTypeNames = [...]string{"string", "boolean", "number", "node"}

func (r ResultType) String() string {
	if r < 0 || int(r) >= len(resultTypeNames) {
		return fmt.Sprintf("ResultType(%d)", int(r))
	}
	return resultTypeNames[r]
}

// ParseResultType parses a result type name. The empty string selects
// ResultString.
func ParseResultType(s string) (ResultType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "string":
		return ResultString, nil
	case "boolean", "bool":
		return ResultBoolean, nil
	case "number", "numeric":
		return ResultNumber, nil
	case "node":
		return ResultNode, nil
	}
	return 0, fmt.Errorf("unknown result type %q (want string, boolean, number or node)", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r ResultType) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *ResultType) UnmarshalText(text []byte) error {
	parsed, err := ParseResultType(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
