package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/roach88/xqflow/internal/logging"
	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/xquery"
)

// Definition describes one XQuery-driven endpoint.
type Definition struct {
	Query        string                  `yaml:"query" toml:"query" json:"query,omitempty"`
	QueryFile    string                  `yaml:"query_file" toml:"query_file" json:"query_file,omitempty"`
	Parameters   map[string]ParameterDef `yaml:"parameters" toml:"parameters" json:"parameters,omitempty"`
	Namespaces   map[string]string       `yaml:"namespaces" toml:"namespaces" json:"namespaces,omitempty"`
	FormatOutput bool                    `yaml:"format_output" toml:"format_output" json:"format_output,omitempty"`
	ResultType   string                  `yaml:"result_type" toml:"result_type" json:"result_type,omitempty"`
	Router       RouterDef               `yaml:"router" toml:"router" json:"router,omitempty"`
	Logging      logging.Config          `yaml:"logging" toml:"logging" json:"logging,omitempty"`
	Store        StoreDef                `yaml:"store" toml:"store" json:"store,omitempty"`

	// dir is the directory of the file the definition was loaded from.
	dir string
}

// ParameterDef supplies an external variable. Exactly one of Value and
// Expression is set.
type ParameterDef struct {
	Value      any    `yaml:"value" toml:"value" json:"value,omitempty"`
	Expression string `yaml:"expression" toml:"expression" json:"expression,omitempty"`
}

// RouterDef configures the router.
type RouterDef struct {
	ChannelMappings      map[string]string `yaml:"channel_mappings" toml:"channel_mappings" json:"channel_mappings,omitempty"`
	Prefix               string            `yaml:"prefix" toml:"prefix" json:"prefix,omitempty"`
	Suffix               string            `yaml:"suffix" toml:"suffix" json:"suffix,omitempty"`
	DefaultOutputChannel string            `yaml:"default_output_channel" toml:"default_output_channel" json:"default_output_channel,omitempty"`
	ResolutionRequired   *bool             `yaml:"resolution_required" toml:"resolution_required" json:"resolution_required,omitempty"`
	IgnoreSendFailures   bool              `yaml:"ignore_send_failures" toml:"ignore_send_failures" json:"ignore_send_failures,omitempty"`
	ApplySequence        bool              `yaml:"apply_sequence" toml:"apply_sequence" json:"apply_sequence,omitempty"`
}

// StoreDef points at the SQLite message store.
type StoreDef struct {
	Path string `yaml:"path" toml:"path" json:"path,omitempty"`
}

// SetBaseDir sets the directory relative paths resolve against.
func (d *Definition) SetBaseDir(dir string) {
	d.dir = dir
}

// QueryPath returns the query file path, resolved against the definition's
// directory. It is empty when the query is inline.
func (d *Definition) QueryPath() string {
	return d.resolve(d.QueryFile)
}

// StorePath returns the store path, resolved like QueryPath.
func (d *Definition) StorePath() string {
	return d.resolve(d.Store.Path)
}

func (d *Definition) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || d.dir == "" {
		return path
	}
	return filepath.Join(d.dir, path)
}

// Validate reports every problem in the definition. The returned error
// joins one CONFIGURATION error per problem.
func (d *Definition) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, message.NewError(message.ErrCodeConfiguration, format, args...))
	}

	switch {
	case d.Query != "" && d.QueryFile != "":
		add("only one of query or query_file may be specified")
	case d.Query == "" && d.QueryFile == "":
		add("one of query or query_file is mandatory")
	}

	for _, name := range sortedKeys(d.Parameters) {
		p := d.Parameters[name]
		switch {
		case p.Value != nil && p.Expression != "":
			add("parameter %s: only one of value or expression may be specified", name)
		case p.Value == nil && p.Expression == "":
			add("parameter %s: one of value or expression is mandatory", name)
		case p.Value != nil && !isScalar(p.Value):
			add("parameter %s: value must be a string, number or boolean, got %T", name, p.Value)
		}
	}

	if _, err := xquery.ParseResultType(d.ResultType); err != nil {
		add("result_type: %v", err)
	}

	if _, err := logging.ResolveLevel(d.Logging); err != nil {
		add("logging: %v", err)
	}

	return errors.Join(errs...)
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, fmt.Stringer:
		return true
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
