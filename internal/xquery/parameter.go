package xquery

import (
	"maps"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/roach88/xqflow/internal/message"
)

// Env is the environment parameter expressions are evaluated against.
//
//	payload    the message payload
//	headers    the message headers, e.g. headers.tier or headers["x-id"]
//	id         the message ID as a string
//	timestamp  the message timestamp
type Env struct {
	Payload   any            `expr:"payload"`
	Headers   map[string]any `expr:"headers"`
	ID        string         `expr:"id"`
	Timestamp time.Time      `expr:"timestamp"`
}

// NewEnv builds the expression environment for msg.
func NewEnv(msg *message.Message) Env {
	headers := make(map[string]any, len(msg.Headers))
	maps.Copy(headers, msg.Headers)
	return Env{
		Payload:   msg.Payload,
		Headers:   headers,
		ID:        msg.ID.String(),
		Timestamp: msg.Timestamp,
	}
}

// Parameter supplies the value of one external query variable. The value
// is either a constant or an expression evaluated against each message.
type Parameter struct {
	Name string

	value      any
	expression string
	program    *vm.Program
}

// NewParameter binds name to a constant value.
func NewParameter(name string, value any) Parameter {
	return Parameter{Name: name, value: value}
}

// NewExpressionParameter binds name to an expression evaluated against the
// inbound message. The expression is compiled immediately.
func NewExpressionParameter(name, expression string) (Parameter, error) {
	program, err := expr.Compile(expression, expr.Env(Env{}))
	if err != nil {
		return Parameter{}, message.WrapError(message.ErrCodeConfiguration, err,
			"compile expression for parameter %s", name)
	}
	return Parameter{Name: name, expression: expression, program: program}, nil
}

// IsExpression reports whether the parameter is evaluated per message.
func (p Parameter) IsExpression() bool { return p.program != nil }

// Expression returns the expression source, or "" for constants.
func (p Parameter) Expression() string { return p.expression }

// Evaluate returns the value to bind for msg.
func (p Parameter) Evaluate(msg *message.Message) (any, error) {
	if p.program == nil {
		return p.value, nil
	}
	v, err := expr.Run(p.program, NewEnv(msg))
	if err != nil {
		return nil, message.WrapError(message.ErrCodeExecution, err,
			"evaluate expression for parameter %s", p.Name)
	}
	return v, nil
}
