package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/xmlpayload"
	"github.com/roach88/xqflow/internal/xquery"
)

// readPayload reads the XML input. "-" reads stdin.
func readPayload(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("input file not found: %s", path))
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read input", err)
	}
	return data, nil
}

// parseAssignments splits name=value flags. Later assignments win.
func parseAssignments(flag string, values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, NewExitError(ExitCommandError,
				fmt.Sprintf("invalid --%s %q: want name=value", flag, v))
		}
		out[name] = value
	}
	return out, nil
}

func parseHeaders(values []string) (message.Headers, error) {
	m, err := parseAssignments("header", values)
	if err != nil {
		return nil, err
	}
	h := make(message.Headers, len(m))
	for k, v := range m {
		h[k] = v
	}
	return h, nil
}

// renderValue formats one result or payload value for text output.
func renderValue(v any, pretty bool) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case *xmlquery.Node:
		return xmlpayload.NodeToString(v, pretty)
	case xquery.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// jsonValue converts nodes to their serialized form so results can be
// JSON-encoded.
func jsonValue(v any, pretty bool) any {
	switch v := v.(type) {
	case *xmlquery.Node:
		return xmlpayload.NodeToString(v, pretty)
	case []byte:
		return string(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = jsonValue(e, pretty)
		}
		return out
	}
	return v
}

// renderPayload writes a payload for text output, one line per item when
// the payload is a slice.
func renderPayload(w io.Writer, payload any, pretty bool) {
	if items, ok := payload.([]any); ok {
		for _, item := range items {
			fmt.Fprintln(w, renderValue(item, pretty))
		}
		return
	}
	fmt.Fprintln(w, renderValue(payload, pretty))
}
