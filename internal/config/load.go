package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/xqflow/internal/message"
)

// Extensions lists the file extensions Load understands.
var Extensions = []string{".yaml", ".yml", ".toml", ".cue", ".json"}

// Load reads a definition from path. The format follows the extension.
// Unknown keys are rejected. Load does not validate the definition.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, message.NewError(message.ErrCodeResource, "definition %s does not exist", path)
	}
	if err != nil {
		return nil, message.WrapError(message.ErrCodeResource, err, "read definition %s", path)
	}

	d, err := Parse(filepath.Base(path), data)
	if err != nil {
		return nil, err
	}
	d.dir = filepath.Dir(path)
	return d, nil
}

// Parse decodes data in the format implied by name's extension.
func Parse(name string, data []byte) (*Definition, error) {
	var (
		d   Definition
		err error
	)

	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, &d)
	case ".toml":
		err = decodeTOML(data, &d)
	case ".cue":
		err = decodeCUE(name, data, &d)
	case ".json":
		err = decodeJSON(data, &d)
	default:
		return nil, message.NewError(message.ErrCodeConfiguration,
			"unsupported definition format %q (want one of %s)", ext, strings.Join(Extensions, ", "))
	}
	if err != nil {
		return nil, message.WrapError(message.ErrCodeConfiguration, err, "parse definition %s", name)
	}
	return &d, nil
}

func decodeYAML(data []byte, d *Definition) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(d); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func decodeTOML(data []byte, d *Definition) error {
	meta, err := toml.Decode(string(data), d)
	if err != nil {
		return err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func decodeCUE(name string, data []byte, d *Definition) error {
	v := cuecontext.New().CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return err
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	if unknown := unknownFields(v, reflect.TypeOf(d), ""); len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown keys: %s", strings.Join(unknown, ", "))
	}
	return v.Decode(d)
}

// unknownFields lists the fields of v, as dotted paths, that have no json
// tag in t. CUE decodes through json tags, so those fields would be dropped.
func unknownFields(v cue.Value, t reflect.Type, prefix string) []string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct && t.Kind() != reflect.Map {
		return nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil
	}

	var known map[string]reflect.Type
	if t.Kind() == reflect.Struct {
		known = jsonFields(t)
	}

	var unknown []string
	for iter.Next() {
		name := iter.Selector().Unquoted()
		var ft reflect.Type
		if t.Kind() == reflect.Map {
			ft = t.Elem()
		} else if ft = known[name]; ft == nil {
			unknown = append(unknown, prefix+name)
			continue
		}
		unknown = append(unknown, unknownFields(iter.Value(), ft, prefix+name+".")...)
	}
	return unknown
}

func jsonFields(t reflect.Type) map[string]reflect.Type {
	fields := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		fields[name] = f.Type
	}
	return fields
}

func decodeJSON(data []byte, d *Definition) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	return dec.Decode(d)
}
