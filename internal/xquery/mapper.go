package xquery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/xmlpayload"
	"github.com/roach88/xqflow/internal/xq"
)

// ResultMapper turns a result sequence into a list of T.
type ResultMapper[T any] interface {
	MapResults(seq xq.ResultSequence) ([]T, error)
}

// ResultMapperFunc adapts a function to ResultMapper.
type ResultMapperFunc[T any] func(seq xq.ResultSequence) ([]T, error)

func (f ResultMapperFunc[T]) MapResults(seq xq.ResultSequence) ([]T, error) {
	return f(seq)
}

// FormatAware is implemented by mappers whose node serialization honours
// the executor's format flag.
type FormatAware interface {
	SetFormatOutput(format bool)
}

// ResultMappers holds one mapper per result type. Nil entries are filled
// with the defaults when the executor is built.
type ResultMappers struct {
	String  ResultMapper[string]
	Boolean ResultMapper[bool]
	Number  ResultMapper[Number]
	Node    ResultMapper[*xmlquery.Node]
}

type formatOutput struct {
	format bool
}

func (f *formatOutput) SetFormatOutput(format bool) { f.format = format }

// StringMapper maps items to strings. Strings are kept, numbers and
// booleans are printed, and nodes are serialized.
type StringMapper struct{ formatOutput }

func (m *StringMapper) MapResults(seq xq.ResultSequence) ([]string, error) {
	return mapSequence(seq, "string", func(item xq.Item) (string, bool, error) {
		switch {
		case item.Kind.IsString():
			s, err := itemString(item)
			return s, true, err
		case item.Kind.IsNumeric():
			n, err := itemNumber(item)
			return n.String(), true, err
		case item.Kind == xq.KindBoolean:
			b, err := itemBool(item)
			return strconv.FormatBool(b), true, err
		case item.Kind.IsNode():
			return xmlpayload.NodeToString(item.Node(), m.format), true, nil
		}
		return "", false, errUncoercible
	})
}

// BooleanMapper maps items to booleans. String items and node text are
// true when they read "true", ignoring case and surrounding space.
type BooleanMapper struct{ formatOutput }

func (m *BooleanMapper) MapResults(seq xq.ResultSequence) ([]bool, error) {
	return mapSequence(seq, "boolean", func(item xq.Item) (bool, bool, error) {
		switch {
		case item.Kind == xq.KindBoolean:
			b, err := itemBool(item)
			return b, true, err
		case item.Kind.IsString():
			s, err := itemString(item)
			return isTrue(s), true, err
		case item.Kind.IsNode():
			return isTrue(xmlpayload.TextContent(item.Node())), true, nil
		}
		return false, false, errUncoercible
	})
}

// NumberMapper maps items to numbers. String items and node text are
// parsed.
type NumberMapper struct{ formatOutput }

func (m *NumberMapper) MapResults(seq xq.ResultSequence) ([]Number, error) {
	return mapSequence(seq, "number", func(item xq.Item) (Number, bool, error) {
		var text string
		switch {
		case item.Kind.IsNumeric():
			n, err := itemNumber(item)
			return n, true, err
		case item.Kind.IsString():
			s, err := itemString(item)
			if err != nil {
				return Number{}, true, err
			}
			text = s
		case item.Kind.IsNode():
			text = xmlpayload.TextContent(item.Node())
		default:
			return Number{}, false, errUncoercible
		}

		if strings.TrimSpace(text) == "" {
			return Number{}, true, fmt.Errorf("blank text is not a number")
		}
		n, err := parseNumber(text)
		if err != nil {
			return Number{}, true, fmt.Errorf("%q is not a number", strings.TrimSpace(text))
		}
		return n, true, nil
	})
}

// NodeMapper keeps node items and skips everything else.
type NodeMapper struct{ formatOutput }

func (m *NodeMapper) MapResults(seq xq.ResultSequence) ([]*xmlquery.Node, error) {
	return mapSequence(seq, "node", func(item xq.Item) (*xmlquery.Node, bool, error) {
		if item.Kind.IsNode() && item.Node() != nil {
			return item.Node(), true, nil
		}
		return nil, false, nil
	})
}

var errUncoercible = errors.New("uncoercible item")

// mapSequence walks seq and converts each item. convert reports whether the
// item produced a value; items that produce none are skipped unless convert
// also returns errUncoercible.
func mapSequence[T any](seq xq.ResultSequence, target string, convert func(xq.Item) (T, bool, error)) ([]T, error) {
	results := make([]T, 0)
	for seq.Next() {
		item := seq.Item()
		v, ok, err := convert(item)
		switch {
		case errors.Is(err, errUncoercible):
			return nil, message.NewError(message.ErrCodeResultMapping,
				"cannot map %s item to %s", item.Kind, target)
		case err != nil:
			return nil, message.WrapError(message.ErrCodeResultMapping, err,
				"cannot map %s item to %s", item.Kind, target)
		case ok:
			results = append(results, v)
		}
	}
	if err := seq.Err(); err != nil {
		return nil, message.WrapError(message.ErrCodeResultMapping, err, "read result sequence")
	}
	return results, nil
}

func isTrue(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

func itemString(item xq.Item) (string, error) {
	s, ok := item.Value.(string)
	if !ok {
		return "", fmt.Errorf("%s item holds %T", item.Kind, item.Value)
	}
	return s, nil
}

func itemBool(item xq.Item) (bool, error) {
	b, ok := item.Value.(bool)
	if !ok {
		return false, fmt.Errorf("%s item holds %T", item.Kind, item.Value)
	}
	return b, nil
}

func itemNumber(item xq.Item) (Number, error) {
	switch v := item.Value.(type) {
	case int64:
		return Int(v), nil
	case int:
		return Int(int64(v)), nil
	case int32:
		return Int(int64(v)), nil
	case float64:
		return Float(v), nil
	case float32:
		return Float(float64(v)), nil
	case Number:
		return v, nil
	}
	return Number{}, fmt.Errorf("%s item holds %T", item.Kind, item.Value)
}
