package xpathsource

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/roach88/xqflow/internal/xq"
)

// ErrClosed is returned by operations on a closed connection or expression.
var ErrClosed = errors.New("xpathsource: closed")

// Option configures a DataSource.
type Option func(*DataSource)

// WithNamespaces adds prefix bindings visible to every query, in addition to
// those declared in the query prolog.
func WithNamespaces(ns map[string]string) Option {
	return func(d *DataSource) {
		maps.Copy(d.namespaces, ns)
	}
}

// DataSource is an xq.DataSource backed by antchfx/xpath.
type DataSource struct {
	namespaces map[string]string
	open       atomic.Int64
}

var _ xq.DataSource = (*DataSource)(nil)

// New returns a DataSource.
func New(opts ...Option) *DataSource {
	d := &DataSource{namespaces: make(map[string]string)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Connection opens a connection. It fails only if ctx is already done.
func (d *DataSource) Connection(ctx context.Context) (xq.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.open.Add(1)
	return &connection{source: d}, nil
}

// OpenConnections returns the number of connections not yet closed.
func (d *DataSource) OpenConnections() int64 {
	return d.open.Load()
}

type connection struct {
	source *DataSource

	mu     sync.Mutex
	closed bool
}

func (c *connection) PrepareExpression(text string) (xq.PreparedExpression, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return prepare(text, c.source.namespaces)
}

func (c *connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.source.open.Add(-1)
	return nil
}
