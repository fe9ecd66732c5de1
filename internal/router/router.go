// Package router sends messages to channels chosen by an XQuery.
//
// The query runs against the message payload and every string result is a
// channel key. A key is looked up in the channel mappings, decorated with
// the prefix and suffix, and resolved to a channel by name. A result such as
// "gold,audit" names two keys.
package router

import (
	"context"
	"maps"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/xqflow/internal/channel"
	"github.com/roach88/xqflow/internal/message"
	"github.com/roach88/xqflow/internal/xquery"
)

// Option configures a Router.
type Option func(*Router)

// WithChannelMapping maps the channel key to a channel name.
func WithChannelMapping(key, channelName string) Option {
	return func(r *Router) {
		r.mappings[key] = channelName
	}
}

// WithChannelMappings adds several key to channel name mappings.
func WithChannelMappings(m map[string]string) Option {
	return func(r *Router) {
		maps.Copy(r.mappings, m)
	}
}

// WithPrefix is prepended to every channel name before resolution.
func WithPrefix(prefix string) Option {
	return func(r *Router) { r.prefix = prefix }
}

// WithSuffix is appended to every channel name before resolution.
func WithSuffix(suffix string) Option {
	return func(r *Router) { r.suffix = suffix }
}

// WithDefaultOutputChannel names the channel used when no key resolves.
func WithDefaultOutputChannel(name string) Option {
	return func(r *Router) { r.defaultOutput = name }
}

// WithResolutionRequired controls whether a key that does not resolve to a
// channel is an error. It defaults to true; when false such keys are
// dropped.
func WithResolutionRequired(required bool) Option {
	return func(r *Router) { r.resolutionRequired = required }
}

// WithIgnoreSendFailures makes Handle log send failures and carry on with
// the remaining channels.
func WithIgnoreSendFailures(ignore bool) Option {
	return func(r *Router) { r.ignoreSendFailures = ignore }
}

// WithApplySequence stamps correlation and sequence headers on each copy
// sent when a message is routed to several channels.
func WithApplySequence(apply bool) Option {
	return func(r *Router) { r.applySequence = apply }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Router routes messages with an xquery.Executor.
type Router struct {
	executor *xquery.Executor
	resolver channel.Resolver

	mappings           map[string]string
	prefix             string
	suffix             string
	defaultOutput      string
	resolutionRequired bool
	ignoreSendFailures bool
	applySequence      bool
	logger             *zap.Logger
}

// New returns a Router that evaluates executor's query and resolves channel
// names with resolver.
func New(executor *xquery.Executor, resolver channel.Resolver, opts ...Option) (*Router, error) {
	if executor == nil {
		return nil, message.NewError(message.ErrCodeConfiguration, "router requires an executor")
	}
	if resolver == nil {
		return nil, message.NewError(message.ErrCodeConfiguration, "router requires a channel resolver")
	}

	r := &Router{
		executor:           executor,
		resolver:           resolver,
		mappings:           make(map[string]string),
		resolutionRequired: true,
		logger:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ChannelKeys runs the query and returns its results as channel keys.
func (r *Router) ChannelKeys(ctx context.Context, msg *message.Message) ([]string, error) {
	return r.executor.ExecuteForString(ctx, msg)
}

// Route returns the channels msg should be sent to. When no key resolves,
// the default output channel is used; without one Route fails.
func (r *Router) Route(ctx context.Context, msg *message.Message) ([]channel.Channel, error) {
	keys, err := r.ChannelKeys(ctx, msg)
	if err != nil {
		return nil, err
	}

	var channels []channel.Channel
	seen := make(map[string]bool)
	for _, key := range splitKeys(keys) {
		name := r.channelName(key)
		if seen[name] {
			continue
		}
		seen[name] = true

		ch, err := r.resolver.ResolveChannel(name)
		if err != nil {
			if r.resolutionRequired {
				return nil, message.WrapError(message.ErrCodeExecution, err,
					"failed to resolve channel %q for key %q", name, key)
			}
			r.logger.Debug("dropping unresolved channel key",
				zap.String("key", key), zap.String("channel", name))
			continue
		}
		channels = append(channels, ch)
	}

	if len(channels) > 0 {
		return channels, nil
	}
	if r.defaultOutput == "" {
		return nil, message.NewError(message.ErrCodeExecution,
			"no channel resolved by router and no default output channel defined")
	}
	ch, err := r.resolver.ResolveChannel(r.defaultOutput)
	if err != nil {
		return nil, message.WrapError(message.ErrCodeExecution, err,
			"failed to resolve default output channel %q", r.defaultOutput)
	}
	return []channel.Channel{ch}, nil
}

// Handle routes msg and sends it to every resulting channel.
func (r *Router) Handle(ctx context.Context, msg *message.Message) error {
	channels, err := r.Route(ctx, msg)
	if err != nil {
		return err
	}

	for i, ch := range channels {
		out := msg
		if r.applySequence {
			out = msg.WithHeaders(message.Headers{
				message.HeaderCorrelationID:  msg.ID.String(),
				message.HeaderSequenceNumber: i + 1,
				message.HeaderSequenceSize:   len(channels),
			})
		}

		if err := ch.Send(ctx, out); err != nil {
			if !r.ignoreSendFailures {
				return message.WrapError(message.ErrCodeExecution, err,
					"failed to send message to channel %q", ch.Name())
			}
			r.logger.Warn("ignoring send failure",
				zap.String("channel", ch.Name()),
				zap.Stringer("message_id", msg.ID),
				zap.Error(err))
			continue
		}
		r.logger.Debug("routed message",
			zap.String("channel", ch.Name()),
			zap.Stringer("message_id", out.ID))
	}
	return nil
}

func (r *Router) channelName(key string) string {
	name := key
	if mapped, ok := r.mappings[key]; ok {
		name = mapped
	}
	return r.prefix + name + r.suffix
}

// splitKeys trims keys, splits comma-separated ones and drops blanks.
func splitKeys(keys []string) []string {
	var out []string
	for _, key := range keys {
		for _, part := range strings.Split(key, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
