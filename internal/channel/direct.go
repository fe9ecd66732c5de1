package channel

import (
	"context"
	"sync"

	"github.com/roach88/xqflow/internal/message"
)

// DirectChannel hands each message to its handler on the sender's
// goroutine.
type DirectChannel struct {
	name string

	mu      sync.RWMutex
	handler Handler
}

var _ Channel = (*DirectChannel)(nil)

// NewDirect returns a direct channel. handler may be nil and set later with
// Subscribe.
func NewDirect(name string, handler Handler) *DirectChannel {
	return &DirectChannel{name: name, handler: handler}
}

func (d *DirectChannel) Name() string { return d.name }

// Subscribe replaces the channel's handler.
func (d *DirectChannel) Subscribe(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

func (d *DirectChannel) Send(ctx context.Context, msg *message.Message) error {
	d.mu.RLock()
	h := d.handler
	d.mu.RUnlock()

	if h == nil {
		return ErrNoSubscriber
	}
	return h(ctx, msg)
}
