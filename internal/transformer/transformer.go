// Package transformer replaces message payloads with XQuery results.
package transformer

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/xqflow/internal/channel"
	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/xquery"
)

type mapFunc func(ctx context.Context, e *xquery.Executor, msg *message.Message) ([]any, error)

// Option configures a Transformer.
type Option func(*Transformer)

// WithResultType selects one of the executor's mappers. The default is
// xquery.ResultString.
func WithResultType(rt xquery.ResultType) Option {
	return func(t *Transformer) {
		t.mapResults = func(ctx context.Context, e *xquery.Executor, msg *message.Message) ([]any, error) {
			return e.ExecuteAs(ctx, msg, rt)
		}
	}
}

// WithMapper maps results with a custom mapper instead of a result type.
func WithMapper[T any](m xquery.ResultMapper[T]) Option {
	return func(t *Transformer) {
		t.mapResults = func(ctx context.Context, e *xquery.Executor, msg *message.Message) ([]any, error) {
			results, err := xquery.Execute(ctx, e, msg, m)
			if err != nil || results == nil {
				return nil, err
			}
			out := make([]any, len(results))
			for i, r := range results {
				out[i] = r
			}
			return out, nil
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Transformer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Transformer runs a query and makes its results the new payload.
type Transformer struct {
	executor   *xquery.Executor
	mapResults mapFunc
	logger     *zap.Logger
}

// New returns a Transformer around executor.
func New(executor *xquery.Executor, opts ...Option) (*Transformer, error) {
	if executor == nil {
		return nil, message.NewError(message.ErrCodeConfiguration, "transformer requires an executor")
	}
	t := &Transformer{executor: executor, logger: zap.NewNop()}
	WithResultType(xquery.ResultString)(t)
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Transform returns a message whose payload is the query result: the item
// itself when there is exactly one, otherwise the slice of items. Headers
// are carried over. A nil message is returned when the payload held
// nothing to query.
func (t *Transformer) Transform(ctx context.Context, msg *message.Message) (*message.Message, error) {
	results, err := t.mapResults(ctx, t.executor, msg)
	if err != nil {
		return nil, err
	}
	if results == nil {
		t.logger.Debug("transformer produced no reply", zap.Stringer("message_id", msg.ID))
		return nil, nil
	}

	var payload any = results
	if len(results) == 1 {
		payload = results[0]
	}
	return msg.WithPayload(payload), nil
}

// Handler returns a channel handler that transforms each message and sends
// the reply to out. Messages without a reply are dropped.
func (t *Transformer) Handler(out channel.Channel) channel.Handler {
	return func(ctx context.Context, msg *message.Message) error {
		reply, err := t.Transform(ctx, msg)
		if err != nil || reply == nil {
			return err
		}
		if err := out.Send(ctx, reply); err != nil {
			return message.WrapError(message.ErrCodeExecution, err,
				"failed to send reply to channel %q", out.Name())
		}
		return nil
	}
}
