package store

import (
	"context"
	"time"

	"github.com/roach88/xqflow/internal/channel"
	"github.com/roach88/xqflow/internal/message"
)

// DefaultPollInterval is how often a blocked Receive re-checks the store.
const DefaultPollInterval = 100 * time.Millisecond

// MessageChannel is a PollableChannel persisted in a Store.
type MessageChannel struct {
	store    *Store
	name     string
	interval time.Duration
}

var _ channel.PollableChannel = (*MessageChannel)(nil)

// Channel returns a channel named name backed by s.
func (s *Store) Channel(name string) *MessageChannel {
	return &MessageChannel{store: s, name: name, interval: DefaultPollInterval}
}

// WithPollInterval returns a copy of c that polls at interval. A
// non-positive interval means DefaultPollInterval.
func (c *MessageChannel) WithPollInterval(interval time.Duration) *MessageChannel {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	cp := *c
	cp.interval = interval
	return &cp
}

func (c *MessageChannel) Name() string { return c.name }

func (c *MessageChannel) Send(ctx context.Context, msg *message.Message) error {
	return c.store.AddMessage(ctx, c.name, msg)
}

func (c *MessageChannel) Poll(ctx context.Context) (*message.Message, bool, error) {
	return c.store.PollMessage(ctx, c.name)
}

// Receive polls until a message arrives or ctx is done.
func (c *MessageChannel) Receive(ctx context.Context) (*message.Message, error) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		msg, ok, err := c.Poll(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			return msg, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Factory returns a channel.Factory that creates store-backed channels, for
// use with channel.WithAutoCreate.
func (s *Store) Factory() channel.Factory {
	return func(name string) (channel.Channel, error) {
		return s.Channel(name), nil
	}
}
