package xquery

import (
	"context"
	"errors"
	"sync"

	"github.com/antchfx/xmlquery"

	"github.com/roach88/xqflow/internal/xq"
)

// fakeSource is a scripted xq.DataSource that records the lifecycle calls
// made against it.
type fakeSource struct {
	mu sync.Mutex

	externals []xq.QName
	items     []xq.Item

	connErr      error
	prepareErr   error
	bindErr      error
	executeErr   error
	closeExprErr error
	closeConnErr error

	openConns int
	openExprs int
	bound     []string
	values    map[string]any
	context   *xmlquery.Node
}

func (f *fakeSource) Connection(ctx context.Context) (xq.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connErr != nil {
		return nil, f.connErr
	}
	f.openConns++
	return &fakeConn{src: f}, nil
}

func (f *fakeSource) open() (conns, exprs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openConns, f.openExprs
}

type fakeConn struct{ src *fakeSource }

func (c *fakeConn) PrepareExpression(string) (xq.PreparedExpression, error) {
	c.src.mu.Lock()
	defer c.src.mu.Unlock()
	if c.src.prepareErr != nil {
		return nil, c.src.prepareErr
	}
	c.src.openExprs++
	c.src.bound = nil
	c.src.values = make(map[string]any)
	return &fakeExpr{src: c.src}, nil
}

func (c *fakeConn) Close() error {
	c.src.mu.Lock()
	defer c.src.mu.Unlock()
	c.src.openConns--
	return c.src.closeConnErr
}

type fakeExpr struct{ src *fakeSource }

func (e *fakeExpr) ExternalVariables() []xq.QName { return e.src.externals }

func (e *fakeExpr) BindNode(name xq.QName, node *xmlquery.Node) error {
	if name != xq.ContextItem {
		return errors.New("not the context item")
	}
	e.src.context = node
	return nil
}

func (e *fakeExpr) BindObject(name xq.QName, value any) error {
	if e.src.bindErr != nil {
		return e.src.bindErr
	}
	e.src.bound = append(e.src.bound, name.Local)
	e.src.values[name.Local] = value
	return nil
}

func (e *fakeExpr) ExecuteQuery(context.Context) (xq.ResultSequence, error) {
	if e.src.executeErr != nil {
		return nil, e.src.executeErr
	}
	return xq.NewSequence(e.src.items...), nil
}

func (e *fakeExpr) Close() error {
	e.src.mu.Lock()
	defer e.src.mu.Unlock()
	e.src.openExprs--
	return e.src.closeExprErr
}
