package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/xqflow/internal/logging"
	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/xq/xpathsource"
	"github.com/roach88/xqflow/internal/xquery"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Query      string
	QueryFile  string
	Params     []string
	ParamExprs []string
	Headers    []string
	Namespaces []string
	Type       string
	Pretty     bool
}

// ExecResult is the JSON output of the exec command.
type ExecResult struct {
	Type    string `json:"type"`
	Results []any  `json:"results"`
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <xml-file|->",
		Short: "Run a query against an XML document",
		Long: `Run an XQuery expression once against an XML document and print the
results, one per line.

Example:
  xqflow exec order.xml --query 'count(//item)' --type number
  xqflow exec order.xml --query-file route.xq --param region=eu
  cat order.xml | xqflow exec - --query '//item' --type node --pretty`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "query text")
	cmd.Flags().StringVarP(&opts.QueryFile, "query-file", "f", "", "file holding the query")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "external variable value (name=value, repeatable)")
	cmd.Flags().StringArrayVar(&opts.ParamExprs, "param-expr", nil, "external variable expression (name=expression, repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, "message header (name=value, repeatable)")
	cmd.Flags().StringArrayVar(&opts.Namespaces, "ns", nil, "namespace binding (prefix=uri, repeatable)")
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "string", "result type (string|boolean|number|node)")
	cmd.Flags().BoolVar(&opts.Pretty, "pretty", false, "indent serialized nodes")
	cmd.MarkFlagsMutuallyExclusive("query", "query-file")

	return cmd
}

func runExec(opts *ExecOptions, input string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	logger, err := opts.logger(logging.Config{}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	rt, err := xquery.ParseResultType(opts.Type)
	if err != nil {
		return formatter.Fail("invalid result type",
			message.WrapError(message.ErrCodeConfiguration, err, "--type"))
	}

	execOpts, err := opts.executorOptions()
	if err != nil {
		return err
	}
	exec, err := xquery.NewExecutor(append(execOpts, xquery.WithLogger(logger))...)
	if err != nil {
		return formatter.Fail("invalid query", err)
	}
	formatter.VerboseLog("external variables: %v", exec.ExternalVariables())

	payload, err := readPayload(input, cmd.InOrStdin())
	if err != nil {
		return err
	}
	headers, err := parseHeaders(opts.Headers)
	if err != nil {
		return err
	}

	results, err := exec.ExecuteAs(commandContext(cmd), message.New(payload, headers), rt)
	if err != nil {
		return formatter.Fail("query failed", err)
	}

	if formatter.Format == "json" {
		out := ExecResult{Type: rt.String(), Results: make([]any, len(results))}
		for i, r := range results {
			out.Results[i] = jsonValue(r, opts.Pretty)
		}
		return formatter.Success(out)
	}

	for _, r := range results {
		fmt.Fprintln(formatter.Writer, renderValue(r, opts.Pretty))
	}
	return nil
}

func (o *ExecOptions) executorOptions() ([]xquery.Option, error) {
	var execOpts []xquery.Option
	switch {
	case o.Query != "":
		execOpts = append(execOpts, xquery.WithQuery(o.Query))
	case o.QueryFile != "":
		execOpts = append(execOpts, xquery.WithQueryFile(o.QueryFile))
	default:
		return nil, NewExitError(ExitCommandError, "one of --query or --query-file is required")
	}
	execOpts = append(execOpts, xquery.WithFormatOutput(o.Pretty))

	values, err := parseAssignments("param", o.Params)
	if err != nil {
		return nil, err
	}
	exprs, err := parseAssignments("param-expr", o.ParamExprs)
	if err != nil {
		return nil, err
	}
	params := make([]xquery.Parameter, 0, len(values)+len(exprs))
	for name, v := range values {
		params = append(params, xquery.NewParameter(name, v))
	}
	for name, e := range exprs {
		p, err := xquery.NewExpressionParameter(name, e)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid --param-expr", err)
		}
		params = append(params, p)
	}
	execOpts = append(execOpts, xquery.WithParameters(params...))

	ns, err := parseAssignments("ns", o.Namespaces)
	if err != nil {
		return nil, err
	}
	if len(ns) > 0 {
		execOpts = append(execOpts, xquery.WithDataSource(xpathsource.New(xpathsource.WithNamespaces(ns))))
	}
	return execOpts, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
