package xmlpayload

import (
	"bytes"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/roach88/xqflow/internal/message"
)

// Converter extracts the XML node a query is evaluated against.
//
// A nil node with a nil error means the payload holds nothing to query; the
// executor then produces no results.
type Converter interface {
	ConvertToNode(payload any) (*xmlquery.Node, error)
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(payload any) (*xmlquery.Node, error)

func (f ConverterFunc) ConvertToNode(payload any) (*xmlquery.Node, error) {
	return f(payload)
}

// DefaultConverter handles nodes, strings, byte slices and readers.
type DefaultConverter struct{}

var _ Converter = DefaultConverter{}

func (DefaultConverter) ConvertToNode(payload any) (*xmlquery.Node, error) {
	switch p := payload.(type) {
	case *xmlquery.Node:
		if p == nil {
			return nil, message.NewError(message.ErrCodePayloadConversion, "payload is a nil node")
		}
		return p, nil
	case string:
		return parse(strings.NewReader(p))
	case []byte:
		return parse(bytes.NewReader(p))
	case io.Reader:
		return parse(p)
	case nil:
		return nil, message.NewError(message.ErrCodePayloadConversion, "payload is nil")
	default:
		return nil, message.NewError(message.ErrCodePayloadConversion,
			"unsupported payload type %T", payload)
	}
}

func parse(r io.Reader) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, message.WrapError(message.ErrCodePayloadConversion, err, "parse XML payload")
	}
	return doc, nil
}
