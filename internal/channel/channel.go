// Package channel provides the message channels that routers and
// transformers send to, and a registry that resolves channels by name.
package channel

import (
	"context"
	"errors"

	"github.com/roach88/xqflow/internal/message"
)

var (
	// ErrClosed is returned when sending to or receiving from a closed
	// channel.
	ErrClosed = errors.New("channel is closed")

	// ErrNotFound is returned when a name does not resolve to a channel.
	ErrNotFound = errors.New("channel not found")

	// ErrNoSubscriber is returned by a DirectChannel without a handler.
	ErrNoSubscriber = errors.New("channel has no subscriber")
)

// Channel accepts messages.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg *message.Message) error
}

// PollableChannel is a Channel that buffers messages for consumers.
type PollableChannel interface {
	Channel

	// Receive blocks until a message is available, the channel is closed or
	// ctx is done.
	Receive(ctx context.Context) (*message.Message, error)

	// Poll returns the next message without blocking. ok is false when the
	// channel is empty.
	Poll(ctx context.Context) (msg *message.Message, ok bool, err error)
}

// Handler consumes a message delivered to a DirectChannel.
type Handler func(ctx context.Context, msg *message.Message) error

// Resolver maps channel names to channels.
type Resolver interface {
	ResolveChannel(name string) (Channel, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (Channel, error)

func (f ResolverFunc) ResolveChannel(name string) (Channel, error) {
	return f(name)
}
