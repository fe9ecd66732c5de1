package channel

import (
	"fmt"
	"io"
	"slices"
	"sync"
)

// Factory creates a channel for a name the registry does not know yet.
type Factory func(name string) (Channel, error)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithAutoCreate makes the registry create unknown channels with factory
// instead of failing resolution.
func WithAutoCreate(factory Factory) RegistryOption {
	return func(r *Registry) {
		r.factory = factory
	}
}

// QueueFactory creates queue channels.
func QueueFactory(name string) (Channel, error) {
	return NewQueue(name), nil
}

// Registry holds named channels and implements Resolver.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	factory  Factory
}

var _ Resolver = (*Registry)(nil)

// NewRegistry returns a registry holding channels.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{channels: make(map[string]Channel)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds channels. Names must be unique.
func (r *Registry) Register(channels ...Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ch := range channels {
		if _, ok := r.channels[ch.Name()]; ok {
			return fmt.Errorf("channel %q is already registered", ch.Name())
		}
		r.channels[ch.Name()] = ch
	}
	return nil
}

// ResolveChannel returns the channel called name, creating it when the
// registry has a factory.
func (r *Registry) ResolveChannel(name string) (Channel, error) {
	r.mu.RLock()
	ch, ok := r.channels[name]
	r.mu.RUnlock()
	if ok {
		return ch, nil
	}
	if r.factory == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[name]; ok {
		return ch, nil
	}
	ch, err := r.factory(name)
	if err != nil {
		return nil, fmt.Errorf("create channel %q: %w", name, err)
	}
	r.channels[name] = ch
	return ch, nil
}

// Names returns the registered channel names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close closes every registered channel that can be closed and returns the
// first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for _, ch := range r.channels {
		if c, ok := ch.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
