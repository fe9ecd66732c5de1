package config

import (
	"go.uber.org/zap"

	"github.com/roach88/xqflow/internal/channel"
	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/router"
	"github.com/roach88/xqflow/internal/transformer"
	"github.com/roach88/xqflow/internal/xq/xpathsource"
	"github.com/roach88/xqflow/internal/xquery"
)

// ExecutorOptions translates the definition into executor options.
func (d *Definition) ExecutorOptions(logger *zap.Logger) ([]xquery.Option, error) {
	opts := []xquery.Option{
		xquery.WithFormatOutput(d.FormatOutput),
		xquery.WithLogger(logger),
	}
	if d.Query != "" {
		opts = append(opts, xquery.WithQuery(d.Query))
	}
	if d.QueryFile != "" {
		opts = append(opts, xquery.WithQueryFile(d.QueryPath()))
	}
	if len(d.Namespaces) > 0 {
		opts = append(opts, xquery.WithDataSource(
			xpathsource.New(xpathsource.WithNamespaces(d.Namespaces))))
	}

	params, err := d.parameters()
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		opts = append(opts, xquery.WithParameters(params...))
	}
	return opts, nil
}

func (d *Definition) parameters() ([]xquery.Parameter, error) {
	params := make([]xquery.Parameter, 0, len(d.Parameters))
	for _, name := range sortedKeys(d.Parameters) {
		p := d.Parameters[name]
		if p.Expression == "" {
			params = append(params, xquery.NewParameter(name, p.Value))
			continue
		}
		ep, err := xquery.NewExpressionParameter(name, p.Expression)
		if err != nil {
			return nil, err
		}
		params = append(params, ep)
	}
	return params, nil
}

// NewExecutor validates the definition and builds its executor. extra
// options are applied last.
func (d *Definition) NewExecutor(logger *zap.Logger, extra ...xquery.Option) (*xquery.Executor, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	opts, err := d.ExecutorOptions(logger)
	if err != nil {
		return nil, err
	}
	return xquery.NewExecutor(append(opts, extra...)...)
}

// RouterOptions translates the router section into router options.
func (d *Definition) RouterOptions(logger *zap.Logger) []router.Option {
	r := d.Router
	opts := []router.Option{
		router.WithChannelMappings(r.ChannelMappings),
		router.WithPrefix(r.Prefix),
		router.WithSuffix(r.Suffix),
		router.WithIgnoreSendFailures(r.IgnoreSendFailures),
		router.WithApplySequence(r.ApplySequence),
		router.WithLogger(logger),
	}
	if r.DefaultOutputChannel != "" {
		opts = append(opts, router.WithDefaultOutputChannel(r.DefaultOutputChannel))
	}
	if r.ResolutionRequired != nil {
		opts = append(opts, router.WithResolutionRequired(*r.ResolutionRequired))
	}
	return opts
}

// NewRouter builds the executor and a router resolving channels with
// resolver.
func (d *Definition) NewRouter(resolver channel.Resolver, logger *zap.Logger) (*router.Router, error) {
	exec, err := d.NewExecutor(logger)
	if err != nil {
		return nil, err
	}
	return router.New(exec, resolver, d.RouterOptions(logger)...)
}

// NewTransformer builds the executor and a transformer producing
// result_type values.
func (d *Definition) NewTransformer(logger *zap.Logger) (*transformer.Transformer, error) {
	exec, err := d.NewExecutor(logger)
	if err != nil {
		return nil, err
	}
	rt, err := xquery.ParseResultType(d.ResultType)
	if err != nil {
		return nil, message.WrapError(message.ErrCodeConfiguration, err, "result_type")
	}
	return transformer.New(exec,
		transformer.WithResultType(rt),
		transformer.WithLogger(logger),
	)
}
