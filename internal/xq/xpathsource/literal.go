package xpathsource

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

// xpathLiteral renders v as an XPath 1.0 expression that evaluates to v.
func xpathLiteral(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", fmt.Errorf("cannot bind a nil value")
	case string:
		return quoteString(v), nil
	case []byte:
		return quoteString(string(v)), nil
	case bool:
		if v {
			return "true()", nil
		}
		return "false()", nil
	case int:
		return formatInt(int64(v)), nil
	case int8:
		return formatInt(int64(v)), nil
	case int16:
		return formatInt(int64(v)), nil
	case int32:
		return formatInt(int64(v)), nil
	case int64:
		return formatInt(v), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return formatFloat(float64(v)), nil
	case float64:
		return formatFloat(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return formatInt(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return "", fmt.Errorf("invalid number %q: %w", v.String(), err)
		}
		return formatFloat(f), nil
	case *xmlquery.Node:
		return "", fmt.Errorf("node values can only be bound to the context item")
	case fmt.Stringer:
		return quoteString(v.String()), nil
	default:
		return "", fmt.Errorf("cannot bind value of type %T", v)
	}
}

// quoteString quotes s as an XPath string literal. XPath 1.0 has no escape
// sequences, so strings holding both quote characters are built with concat().
func quoteString(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}

	var args []string
	for i, part := range strings.Split(s, `"`) {
		if i > 0 {
			args = append(args, `'"'`)
		}
		if part != "" {
			args = append(args, `"`+part+`"`)
		}
	}
	if len(args) == 1 {
		return args[0]
	}
	return "concat(" + strings.Join(args, ", ") + ")"
}

func formatInt(n int64) string {
	s := strconv.FormatInt(n, 10)
	if n < 0 {
		return "(" + s + ")"
	}
	return s
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return `number("NaN")`
	case math.IsInf(f, 1):
		return "(1 div 0)"
	case math.IsInf(f, -1):
		return "(-1 div 0)"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if f < 0 {
		return "(" + s + ")"
	}
	return s
}
