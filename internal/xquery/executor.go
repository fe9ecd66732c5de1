package xquery

import (
	"context"
	"io/fs"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/resource"
	"github.com/roach88/xqflow/internal/xmlpayload"
	"github.com/roach88/xqflow/internal/xq"
	"github.com/roach88/xqflow/internal/xq/xpathsource"
)

// Executor runs one query against message payloads.
//
// An Executor is immutable once built and safe for concurrent use. Each
// execution opens its own connection and prepared expression and closes
// both before returning.
type Executor struct {
	query       string
	hasQuery    bool
	querySource *querySource

	dataSource   xq.DataSource
	converter    xmlpayload.Converter
	params       map[string]Parameter
	mappers      ResultMappers
	formatOutput bool
	logger       *zap.Logger

	// externals are the local names of the query's external variables, in
	// declaration order.
	externals []string

	err error
}

type querySource struct {
	fsys fs.FS
	name string
	path string
}

func (s *querySource) read() (string, error) {
	if s.fsys != nil {
		return resource.ReadQuery(s.fsys, s.name)
	}
	return resource.ReadQueryFile(s.path)
}

// NewExecutor builds an Executor and validates it against the query: the
// query must prepare, and every external variable it declares must have a
// parameter. All failures are CONFIGURATION errors.
func NewExecutor(opts ...Option) (*Executor, error) {
	e := &Executor{
		converter: xmlpayload.DefaultConverter{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.err != nil {
		return nil, e.err
	}

	if e.dataSource == nil {
		e.dataSource = xpathsource.New()
	}
	e.addDefaultMappers()

	if !e.hasQuery {
		if e.querySource == nil {
			return nil, message.NewError(message.ErrCodeConfiguration, "one of query or query file is mandatory")
		}
		query, err := e.querySource.read()
		if err != nil {
			return nil, message.WrapError(message.ErrCodeConfiguration, err, "load query")
		}
		e.query = query
	}

	externals, err := e.collectExternals(context.Background())
	if err != nil {
		return nil, message.WrapError(message.ErrCodeConfiguration, err, "prepare query")
	}
	e.externals = externals

	if err := e.validateParameters(); err != nil {
		return nil, err
	}

	e.logger.Debug("executor ready",
		zap.Strings("external_variables", e.externals),
		zap.Bool("format_output", e.formatOutput))
	return e, nil
}

func (e *Executor) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *Executor) setQuerySource(src *querySource) {
	if e.hasQuery || e.querySource != nil {
		e.fail(message.NewError(message.ErrCodeConfiguration,
			"only one of query or query file may be specified"))
		return
	}
	e.querySource = src
}

func (e *Executor) addDefaultMappers() {
	if e.mappers.String == nil {
		e.mappers.String = &StringMapper{}
	}
	if e.mappers.Boolean == nil {
		e.mappers.Boolean = &BooleanMapper{}
	}
	if e.mappers.Number == nil {
		e.mappers.Number = &NumberMapper{}
	}
	if e.mappers.Node == nil {
		e.mappers.Node = &NodeMapper{}
	}

	for _, m := range []any{e.mappers.String, e.mappers.Boolean, e.mappers.Number, e.mappers.Node} {
		if fa, ok := m.(FormatAware); ok {
			fa.SetFormatOutput(e.formatOutput)
		}
	}
}

func (e *Executor) collectExternals(ctx context.Context) ([]string, error) {
	var names []string
	err := e.withExpression(ctx, func(expr xq.PreparedExpression) error {
		for _, q := range expr.ExternalVariables() {
			names = append(names, q.Local)
		}
		return nil
	})
	return names, err
}

func (e *Executor) validateParameters() error {
	if len(e.externals) == 0 {
		return nil
	}
	if len(e.params) == 0 {
		return message.NewError(message.ErrCodeConfiguration,
			"expecting %d parameters in the query, but none provided", len(e.externals))
	}

	var missing []string
	for _, name := range e.externals {
		if _, ok := e.params[name]; !ok {
			missing = append(missing, "$"+name)
		}
	}
	if len(missing) > 0 {
		return message.NewError(message.ErrCodeConfiguration,
			"missing parameter(s) [%s]", strings.Join(missing, ", "))
	}
	return nil
}

// withExpression opens a connection, prepares the query and calls fn. The
// expression and the connection are closed on every path; close failures
// are logged.
func (e *Executor) withExpression(ctx context.Context, fn func(xq.PreparedExpression) error) error {
	conn, err := e.dataSource.Connection(ctx)
	if err != nil {
		return message.WrapError(message.ErrCodeExecution, err, "open connection")
	}
	defer func() {
		if err := conn.Close(); err != nil {
			e.logger.Error("close connection failed", zap.Error(err))
		}
	}()

	expr, err := conn.PrepareExpression(e.query)
	if err != nil {
		return message.WrapError(message.ErrCodeExecution, err, "prepare expression")
	}
	defer func() {
		if err := expr.Close(); err != nil {
			e.logger.Error("close expression failed", zap.Error(err))
		}
	}()

	return fn(expr)
}

// Execute runs the query against msg and maps the results with mapper.
//
// It returns nil results and a nil error when the converter finds nothing
// to query in the payload.
func Execute[T any](ctx context.Context, e *Executor, msg *message.Message, mapper ResultMapper[T]) ([]T, error) {
	if msg == nil {
		return nil, message.NewError(message.ErrCodeExecution, "message must not be nil")
	}
	if mapper == nil {
		return nil, message.NewError(message.ErrCodeExecution, "result mapper must not be nil")
	}

	node, err := e.converter.ConvertToNode(msg.Payload)
	if err != nil {
		if message.CodeOf(err) == "" {
			err = message.WrapError(message.ErrCodePayloadConversion, err, "convert payload")
		}
		return nil, err
	}
	if node == nil {
		e.logger.Debug("payload has no node to query", zap.Stringer("message_id", msg.ID))
		return nil, nil
	}

	var results []T
	err = e.withExpression(ctx, func(expr xq.PreparedExpression) error {
		if err := expr.BindNode(xq.ContextItem, node); err != nil {
			return message.WrapError(message.ErrCodeExecution, err, "bind context item")
		}
		for _, name := range e.externals {
			value, err := e.params[name].Evaluate(msg)
			if err != nil {
				return err
			}
			if err := expr.BindObject(xq.Name(name), value); err != nil {
				return message.WrapError(message.ErrCodeExecution, err, "bind parameter $%s", name)
			}
		}

		seq, err := expr.ExecuteQuery(ctx)
		if err != nil {
			return message.WrapError(message.ErrCodeExecution, err, "execute query")
		}
		defer func() {
			if err := seq.Close(); err != nil {
				e.logger.Error("close result sequence failed", zap.Error(err))
			}
		}()

		results, err = mapper.MapResults(seq)
		if err != nil && message.CodeOf(err) == "" {
			err = message.WrapError(message.ErrCodeResultMapping, err, "map results")
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("query executed",
		zap.Stringer("message_id", msg.ID),
		zap.Int("results", len(results)))
	return results, nil
}

// ExecuteForString runs the query and maps the results to strings.
func (e *Executor) ExecuteForString(ctx context.Context, msg *message.Message) ([]string, error) {
	return Execute(ctx, e, msg, e.mappers.String)
}

// ExecuteForBoolean runs the query and maps the results to booleans.
func (e *Executor) ExecuteForBoolean(ctx context.Context, msg *message.Message) ([]bool, error) {
	return Execute(ctx, e, msg, e.mappers.Boolean)
}

// ExecuteForNumber runs the query and maps the results to numbers.
func (e *Executor) ExecuteForNumber(ctx context.Context, msg *message.Message) ([]Number, error) {
	return Execute(ctx, e, msg, e.mappers.Number)
}

// ExecuteForNode runs the query and keeps the node results.
func (e *Executor) ExecuteForNode(ctx context.Context, msg *message.Message) ([]*xmlquery.Node, error) {
	return Execute(ctx, e, msg, e.mappers.Node)
}

// ExecuteAs runs the query with the mapper registered for rt.
func (e *Executor) ExecuteAs(ctx context.Context, msg *message.Message, rt ResultType) ([]any, error) {
	switch rt {
	case ResultString:
		return toAny(e.ExecuteForString(ctx, msg))
	case ResultBoolean:
		return toAny(e.ExecuteForBoolean(ctx, msg))
	case ResultNumber:
		return toAny(e.ExecuteForNumber(ctx, msg))
	case ResultNode:
		return toAny(e.ExecuteForNode(ctx, msg))
	}
	return nil, message.NewError(message.ErrCodeExecution, "no result mapper for %s", rt)
}

func toAny[T any](results []T, err error) ([]any, error) {
	if err != nil || results == nil {
		return nil, err
	}
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = r
	}
	return out, nil
}

// Query returns the query text.
func (e *Executor) Query() string { return e.query }

// ExternalVariables returns the names of the query's external variables in
// declaration order.
func (e *Executor) ExternalVariables() []string {
	return append([]string(nil), e.externals...)
}

// FormatOutput reports whether serialized nodes are indented.
func (e *Executor) FormatOutput() bool { return e.formatOutput }
