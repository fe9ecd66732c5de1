package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/xmlpayload"
)

// payloadKind tags how a payload was serialized.
type payloadKind string

const (
	kindText  payloadKind = "text"
	kindBytes payloadKind = "bytes"
	kindXML   payloadKind = "xml"
	kindJSON  payloadKind = "json"
)

// marshalPayload serializes a payload for storage. Strings and byte slices
// are stored verbatim, nodes as compact XML and anything else as JSON.
func marshalPayload(payload any) (payloadKind, []byte, error) {
	switch p := payload.(type) {
	case string:
		return kindText, []byte(p), nil
	case []byte:
		return kindBytes, p, nil
	case *xmlquery.Node:
		return kindXML, []byte(xmlpayload.NodeToString(p, false)), nil
	}

	data, err := marshalJSON(payload)
	if err != nil {
		return "", nil, fmt.Errorf("marshal payload: %w", err)
	}
	return kindJSON, data, nil
}

func unmarshalPayload(kind payloadKind, data []byte) (any, error) {
	switch kind {
	case kindText:
		return string(data), nil
	case kindBytes:
		if data == nil {
			return []byte{}, nil
		}
		return data, nil
	case kindXML:
		doc, err := xmlquery.Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("unmarshal xml payload: %w", err)
		}
		return doc, nil
	case kindJSON:
		v, err := unmarshalJSON(data)
		if err != nil {
			return nil, fmt.Errorf("unmarshal json payload: %w", err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown payload kind %q", kind)
}

func marshalHeaders(h message.Headers) (string, error) {
	if len(h) == 0 {
		return "{}", nil
	}
	data, err := marshalJSON(h)
	if err != nil {
		return "", fmt.Errorf("marshal headers: %w", err)
	}
	return string(data), nil
}

func unmarshalHeaders(data string) (message.Headers, error) {
	if data == "" || data == "{}" {
		return message.Headers{}, nil
	}
	v, err := unmarshalJSON([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unmarshal headers: not an object")
	}
	return message.Headers(m), nil
}

// marshalJSON encodes v with HTML escaping disabled.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder adds a trailing newline.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// unmarshalJSON decodes data keeping integers as int64; other numbers
// become float64.
func unmarshalJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch v := v.(type) {
	case json.Number:
		if !strings.ContainsAny(v.String(), ".eE") {
			if i, err := v.Int64(); err == nil {
				return i
			}
		}
		f, _ := v.Float64()
		return f
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeNumbers(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = normalizeNumbers(e)
		}
		return v
	}
	return v
}
