package xquery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/xmlpayload"
	"github.com/roach88/xqflow/internal/xq"
	"github.com/roach88/xqflow/internal/xq/xpathsource"
)

const orderXML = `<order id="7" tier="gold">
  <item sku="a" qty="2">10</item>
  <item sku="b" qty="1">25.5</item>
  <shipped>true</shipped>
</order>`

const skuQuery = `declare variable $min external;
//item[. > $min]/@sku`

func TestNewExecutor_ConfigurationErrors(t *testing.T) {
	fsys := fstest.MapFS{"q.xq": {Data: []byte("1")}}

	tests := []struct {
		name string
		opts []Option
		want string
	}{
		{
			name: "no query source",
			want: "one of query or query file is mandatory",
		},
		{
			name: "query then file",
			opts: []Option{WithQuery("1"), WithQueryFile("q.xq")},
			want: "only one of query or query file may be specified",
		},
		{
			name: "file then query",
			opts: []Option{WithQueryResource(fsys, "q.xq"), WithQuery("1")},
			want: "only one of query or query file may be specified",
		},
		{
			name: "empty query",
			opts: []Option{WithQuery("  ")},
			want: "query must not be empty",
		},
		{
			name: "missing query file",
			opts: []Option{WithQueryResource(fsys, "missing.xq")},
			want: "query file missing.xq does not exist",
		},
		{
			name: "nil converter",
			opts: []Option{WithQuery("1"), WithConverter(nil)},
			want: "converter must not be nil",
		},
		{
			name: "nil data source",
			opts: []Option{WithQuery("1"), WithDataSource(nil)},
			want: "data source must not be nil",
		},
		{
			name: "query does not prepare",
			opts: []Option{WithQuery("/order[")},
			want: "prepare query",
		},
		{
			name: "parameters expected",
			opts: []Option{WithQuery("declare variable $a external;\ndeclare variable $b external;\n$a = $b")},
			want: "expecting 2 parameters in the query, but none provided",
		},
		{
			name: "parameters missing",
			opts: []Option{
				WithQuery("declare variable $a external;\ndeclare variable $b external;\ndeclare variable $c external;\n$a = $b or $c"),
				WithParameters(NewParameter("b", 1)),
			},
			want: "missing parameter(s) [$a, $c]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewExecutor(tt.opts...)
			require.Error(t, err)
			assert.Nil(t, e)
			assert.True(t, message.IsConfigError(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewExecutor_ClosesAfterValidation(t *testing.T) {
	src := &fakeSource{externals: []xq.QName{xq.Name("a")}}

	_, err := NewExecutor(WithQuery("q"), WithDataSource(src))
	require.Error(t, err)

	conns, exprs := src.open()
	assert.Zero(t, conns)
	assert.Zero(t, exprs)
}

func TestNewExecutor_QuerySources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "count.xq")
	require.NoError(t, os.WriteFile(path, []byte("count(//item)"), 0o644))

	fromFile, err := NewExecutor(WithQueryFile(path))
	require.NoError(t, err)
	assert.Equal(t, "count(//item)\n", fromFile.Query())

	fromFS, err := NewExecutor(WithQueryResource(fstest.MapFS{"q.xq": {Data: []byte("count(//item)")}}, "q.xq"))
	require.NoError(t, err)
	assert.Equal(t, "count(//item)\n", fromFS.Query())
}

func TestExecutor_ExecuteForString(t *testing.T) {
	ds := xpathsource.New()
	e, err := NewExecutor(
		WithQuery(skuQuery),
		WithDataSource(ds),
		WithParameters(NewParameter("min", 12)),
		WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"min"}, e.ExternalVariables())

	got, err := e.ExecuteForString(context.Background(), message.New(orderXML, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got)
	assert.Zero(t, ds.OpenConnections())
}

func TestExecutor_ExpressionParameters(t *testing.T) {
	minParam, err := NewExpressionParameter("min", `headers.min ?? 0`)
	require.NoError(t, err)

	e, err := NewExecutor(WithQuery(skuQuery), WithParameterMap(map[string]Parameter{"min": minParam}))
	require.NoError(t, err)

	ctx := context.Background()

	got, err := e.ExecuteForString(ctx, message.New(orderXML, message.Headers{"min": 5}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = e.ExecuteForString(ctx, message.New(orderXML, message.Headers{"min": 100}))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExecutor_TypedExecutions(t *testing.T) {
	ctx := context.Background()
	msg := message.New(orderXML, nil)

	numbers, err := NewExecutor(WithQuery("//item"))
	require.NoError(t, err)
	gotNumbers, err := numbers.ExecuteForNumber(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, []Number{Int(10), Float(25.5)}, gotNumbers)

	flags, err := NewExecutor(WithQuery("/order/shipped"))
	require.NoError(t, err)
	gotFlags, err := flags.ExecuteForBoolean(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, gotFlags)

	nodes, err := NewExecutor(WithQuery("//item/@qty | //shipped"))
	require.NoError(t, err)
	gotNodes, err := nodes.ExecuteForNode(ctx, msg)
	require.NoError(t, err)
	require.Len(t, gotNodes, 3)
	assert.Equal(t, xmlquery.AttributeNode, gotNodes[0].Type)
	assert.Equal(t, "shipped", gotNodes[2].Data)

	asAny, err := numbers.ExecuteAs(ctx, msg, ResultString)
	require.NoError(t, err)
	assert.Equal(t, []any{
		`<item sku="a" qty="2">10</item>`,
		`<item sku="b" qty="1">25.5</item>`,
	}, asAny)

	_, err = numbers.ExecuteAs(ctx, msg, ResultType(42))
	assert.True(t, message.IsExecutionError(err))
}

func TestExecutor_FormatOutput(t *testing.T) {
	e, err := NewExecutor(WithQuery("/order/item[1]/.."), WithFormatOutput(true))
	require.NoError(t, err)
	assert.True(t, e.FormatOutput())

	got, err := e.ExecuteForString(context.Background(), message.New(`<order><item>1</item></order>`, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"<order>\n  <item>1</item>\n</order>"}, got)
}

type recordingMapper struct {
	format bool
}

func (m *recordingMapper) SetFormatOutput(format bool) { m.format = format }

func (m *recordingMapper) MapResults(seq xq.ResultSequence) ([]string, error) {
	return []string{"custom"}, nil
}

func TestExecutor_CustomMappers(t *testing.T) {
	custom := &recordingMapper{}
	e, err := NewExecutor(
		WithQuery("1"),
		WithFormatOutput(true),
		WithResultMappers(ResultMappers{String: custom}),
	)
	require.NoError(t, err)
	assert.True(t, custom.format)

	got, err := e.ExecuteForString(context.Background(), message.New("<a/>", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"custom"}, got)

	numbers, err := e.ExecuteForNumber(context.Background(), message.New("<a/>", nil))
	require.NoError(t, err)
	assert.Equal(t, []Number{Int(1)}, numbers)

	mapped, err := Execute(context.Background(), e, message.New("<a/>", nil),
		ResultMapperFunc[int](func(seq xq.ResultSequence) ([]int, error) {
			var n []int
			for seq.Next() {
				n = append(n, len(n))
			}
			return n, seq.Err()
		}))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, mapped)
}

func TestExecutor_NilNodeYieldsNoResults(t *testing.T) {
	src := &fakeSource{items: []xq.Item{xq.StringItem("x")}}
	e, err := NewExecutor(
		WithQuery("q"),
		WithDataSource(src),
		WithConverter(xmlpayload.ConverterFunc(func(any) (*xmlquery.Node, error) { return nil, nil })),
	)
	require.NoError(t, err)

	got, err := e.ExecuteForString(context.Background(), message.New("ignored", nil))
	require.NoError(t, err)
	assert.Nil(t, got)

	conns, _ := src.open()
	assert.Zero(t, conns)
}

func TestExecutor_BindsParametersInDeclarationOrder(t *testing.T) {
	src := &fakeSource{
		externals: []xq.QName{xq.Name("c"), xq.Name("a"), xq.Name("b")},
		items:     []xq.Item{xq.StringItem("ok")},
	}
	id, err := NewExpressionParameter("b", "id")
	require.NoError(t, err)

	e, err := NewExecutor(
		WithQuery("q"),
		WithDataSource(src),
		WithParameters(NewParameter("a", 1), id, NewParameter("c", "three")),
	)
	require.NoError(t, err)

	msg := message.New("<a/>", nil)
	_, err = e.ExecuteForString(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "a", "b"}, src.bound)
	assert.Equal(t, map[string]any{"a": 1, "b": msg.ID.String(), "c": "three"}, src.values)
	require.NotNil(t, src.context)
	assert.Equal(t, xmlquery.DocumentNode, src.context.Type)
	assert.NotNil(t, src.context.SelectElement("a"))
}

func TestExecutor_ClosesOnEveryPath(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		src      *fakeSource
		execute  func(e *Executor) error
		wantCode message.ErrorCode
	}{
		{
			name:     "bind failure",
			src:      &fakeSource{externals: []xq.QName{xq.Name("a")}, bindErr: boom},
			wantCode: message.ErrCodeExecution,
		},
		{
			name:     "execute failure",
			src:      &fakeSource{executeErr: boom},
			wantCode: message.ErrCodeExecution,
		},
		{
			name:     "mapping failure",
			src:      &fakeSource{items: []xq.Item{xq.BooleanItem(true)}},
			wantCode: message.ErrCodeResultMapping,
			execute: func(e *Executor) error {
				_, err := e.ExecuteForNumber(context.Background(), message.New("<a/>", nil))
				return err
			},
		},
		{
			name:     "success",
			src:      &fakeSource{items: []xq.Item{xq.StringItem("ok")}},
			wantCode: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewExecutor(
				WithQuery("q"),
				WithDataSource(tt.src),
				WithParameters(NewParameter("a", 1)),
			)
			require.NoError(t, err)

			execute := tt.execute
			if execute == nil {
				execute = func(e *Executor) error {
					_, err := e.ExecuteForString(context.Background(), message.New("<a/>", nil))
					return err
				}
			}

			err = execute(e)
			assert.Equal(t, tt.wantCode, message.CodeOf(err))
			if tt.wantCode == message.ErrCodeExecution {
				assert.ErrorIs(t, err, boom)
			}

			conns, exprs := tt.src.open()
			assert.Zero(t, conns, "connections left open")
			assert.Zero(t, exprs, "expressions left open")
		})
	}
}

func TestExecutor_ConnectionFailures(t *testing.T) {
	src := &fakeSource{}
	e, err := NewExecutor(WithQuery("q"), WithDataSource(src))
	require.NoError(t, err)

	src.connErr = errors.New("refused")
	_, err = e.ExecuteForString(context.Background(), message.New("<a/>", nil))
	assert.True(t, message.IsExecutionError(err))
	assert.ErrorContains(t, err, "open connection")

	src.connErr = nil
	src.prepareErr = errors.New("bad query")
	_, err = e.ExecuteForString(context.Background(), message.New("<a/>", nil))
	assert.True(t, message.IsExecutionError(err))
	assert.ErrorContains(t, err, "prepare expression")

	conns, _ := src.open()
	assert.Zero(t, conns)
}

func TestExecutor_LogsCloseFailures(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	src := &fakeSource{
		items:        []xq.Item{xq.StringItem("ok")},
		closeExprErr: errors.New("expr close"),
		closeConnErr: errors.New("conn close"),
	}

	e, err := NewExecutor(WithQuery("q"), WithDataSource(src), WithLogger(zap.New(core)))
	require.NoError(t, err)
	logs.TakeAll()

	got, err := e.ExecuteForString(context.Background(), message.New("<a/>", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, got)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "close expression failed", entries[0].Message)
	assert.Equal(t, "close connection failed", entries[1].Message)
	assert.Equal(t, "expr close", entries[0].ContextMap()["error"])
}

func TestExecutor_RejectsBadInput(t *testing.T) {
	e, err := NewExecutor(WithQuery("1"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.ExecuteForString(ctx, nil)
	assert.True(t, message.IsExecutionError(err))

	_, err = e.ExecuteForString(ctx, message.New(42, nil))
	assert.Equal(t, message.ErrCodePayloadConversion, message.CodeOf(err))

	_, err = Execute[string](ctx, e, message.New("<a/>", nil), nil)
	assert.True(t, message.IsExecutionError(err))
}

func TestExpressionParameter_CompileError(t *testing.T) {
	_, err := NewExpressionParameter("x", "nosuchvar + 1")
	require.Error(t, err)
	assert.True(t, message.IsConfigError(err))
	assert.Contains(t, err.Error(), "parameter x")
}

func TestParameter_Evaluate(t *testing.T) {
	msg := message.New("<order/>", message.Headers{"tier": "gold"})

	constant := NewParameter("tier", "silver")
	assert.False(t, constant.IsExpression())
	v, err := constant.Evaluate(msg)
	require.NoError(t, err)
	assert.Equal(t, "silver", v)

	fromHeader, err := NewExpressionParameter("tier", `headers["tier"] + "-" + payload`)
	require.NoError(t, err)
	assert.True(t, fromHeader.IsExpression())
	assert.Equal(t, `headers["tier"] + "-" + payload`, fromHeader.Expression())
	v, err = fromHeader.Evaluate(msg)
	require.NoError(t, err)
	assert.Equal(t, "gold-<order/>", v)

	failing, err := NewExpressionParameter("n", `headers.missing.deep`)
	require.NoError(t, err)
	_, err = failing.Evaluate(msg)
	assert.True(t, message.IsExecutionError(err))
}
