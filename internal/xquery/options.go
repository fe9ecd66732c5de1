package xquery

import (
	"io/fs"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/xmlpayload"
	"github.com/roach88/xqflow/internal/xq"
)

// Option configures an Executor.
type Option func(*Executor)

// WithQuery sets the query text. It cannot be combined with a query file.
func WithQuery(query string) Option {
	return func(e *Executor) {
		if e.querySource != nil {
			e.fail(message.NewError(message.ErrCodeConfiguration,
				"only one of query or query file may be specified"))
			return
		}
		if strings.TrimSpace(query) == "" {
			e.fail(message.NewError(message.ErrCodeConfiguration, "query must not be empty"))
			return
		}
		e.query = query
		e.hasQuery = true
	}
}

// WithQueryFile reads the query from a file on the local file system when
// the executor is built.
func WithQueryFile(path string) Option {
	return func(e *Executor) {
		e.setQuerySource(&querySource{path: path})
	}
}

// WithQueryResource reads the query from name in fsys when the executor is
// built.
func WithQueryResource(fsys fs.FS, name string) Option {
	return func(e *Executor) {
		e.setQuerySource(&querySource{fsys: fsys, name: name})
	}
}

// WithDataSource sets the query processor. The default is xpathsource.
func WithDataSource(ds xq.DataSource) Option {
	return func(e *Executor) {
		if ds == nil {
			e.fail(message.NewError(message.ErrCodeConfiguration, "data source must not be nil"))
			return
		}
		e.dataSource = ds
	}
}

// WithConverter sets the payload converter.
func WithConverter(c xmlpayload.Converter) Option {
	return func(e *Executor) {
		if c == nil {
			e.fail(message.NewError(message.ErrCodeConfiguration, "converter must not be nil"))
			return
		}
		e.converter = c
	}
}

// WithParameters adds parameters, replacing earlier ones with the same name.
func WithParameters(params ...Parameter) Option {
	return func(e *Executor) {
		if e.params == nil {
			e.params = make(map[string]Parameter, len(params))
		}
		for _, p := range params {
			e.params[p.Name] = p
		}
	}
}

// WithParameterMap replaces the parameter map. Map keys name the external
// variable; a Parameter with an empty Name takes its key.
func WithParameterMap(params map[string]Parameter) Option {
	return func(e *Executor) {
		e.params = make(map[string]Parameter, len(params))
		for name, p := range params {
			if p.Name == "" {
				p.Name = name
			}
			e.params[name] = p
		}
	}
}

// WithResultMappers overrides the per-type result mappers.
func WithResultMappers(m ResultMappers) Option {
	return func(e *Executor) {
		e.mappers = m
	}
}

// WithFormatOutput indents serialized nodes.
func WithFormatOutput(format bool) Option {
	return func(e *Executor) {
		e.formatOutput = format
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}
