package xpathsource

import (
	"context"
	"fmt"
	"maps"
	"math"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/roach88/xqflow/internal/xq"
)

const placeholder = `""`

type expression struct {
	q          *query
	namespaces map[string]string
	externals  map[string]bool

	context  *xmlquery.Node
	bindings map[string]string
	closed   bool
}

func prepare(text string, shared map[string]string) (*expression, error) {
	q, err := parseQuery(text)
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}

	ns := maps.Clone(shared)
	maps.Copy(ns, q.namespaces)

	e := &expression{
		q:          q,
		namespaces: ns,
		externals:  make(map[string]bool, len(q.externals)),
		bindings:   make(map[string]string),
	}
	for _, name := range q.externals {
		e.externals[name] = true
	}

	// Compile once with placeholders so syntax errors and undeclared
	// variables are reported before execution.
	body, err := e.render(func(string) string { return placeholder })
	if err != nil {
		return nil, err
	}
	if _, err := xpath.CompileWithNS(body, ns); err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	return e, nil
}

func (e *expression) ExternalVariables() []xq.QName {
	names := make([]xq.QName, len(e.q.externals))
	for i, name := range e.q.externals {
		names[i] = xq.Name(name)
	}
	return names
}

func (e *expression) BindNode(name xq.QName, node *xmlquery.Node) error {
	if e.closed {
		return ErrClosed
	}
	if name != xq.ContextItem {
		return fmt.Errorf("cannot bind a node to %s: node values can only be bound to the context item", name)
	}
	if node == nil {
		return fmt.Errorf("cannot bind a nil context item")
	}
	e.context = node
	return nil
}

func (e *expression) BindObject(name xq.QName, value any) error {
	if e.closed {
		return ErrClosed
	}
	if name == xq.ContextItem {
		if n, ok := value.(*xmlquery.Node); ok {
			return e.BindNode(name, n)
		}
		return fmt.Errorf("the context item must be a node, got %T", value)
	}
	if name.Space != "" || !e.externals[name.Local] {
		return fmt.Errorf("variable $%s is not declared external", name)
	}
	lit, err := xpathLiteral(value)
	if err != nil {
		return fmt.Errorf("bind $%s: %w", name.Local, err)
	}
	e.bindings[name.Local] = lit
	return nil
}

func (e *expression) ExecuteQuery(ctx context.Context) (xq.ResultSequence, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.context == nil {
		return nil, fmt.Errorf("the context item is not bound")
	}
	for _, name := range e.q.externals {
		if _, ok := e.bindings[name]; !ok {
			return nil, fmt.Errorf("external variable $%s is not bound", name)
		}
	}

	body, err := e.render(func(name string) string { return e.bindings[name] })
	if err != nil {
		return nil, err
	}
	compiled, err := xpath.CompileWithNS(body, e.namespaces)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	items, err := evaluate(compiled, e.context)
	if err != nil {
		return nil, err
	}
	return xq.NewSequence(items...), nil
}

func (e *expression) Close() error {
	e.closed = true
	e.context = nil
	return nil
}

// render substitutes every variable reference in the body. External
// variables come from external; initialized variables are inlined.
func (e *expression) render(external func(name string) string) (string, error) {
	visiting := make(map[string]bool)

	var resolve func(name string) (string, error)
	resolve = func(name string) (string, error) {
		if e.externals[name] {
			return external(name), nil
		}
		init, ok := e.q.internals[name]
		if !ok {
			return "", fmt.Errorf("undeclared variable $%s", name)
		}
		if visiting[name] {
			return "", fmt.Errorf("variable $%s is defined in terms of itself", name)
		}
		visiting[name] = true
		defer delete(visiting, name)

		inlined, err := substituteVariables(init, resolve)
		if err != nil {
			return "", err
		}
		return "(" + inlined + ")", nil
	}

	return substituteVariables(e.q.body, resolve)
}

func evaluate(expr *xpath.Expr, contextNode *xmlquery.Node) (items []xq.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluate query: %v", r)
		}
	}()

	switch v := expr.Evaluate(xmlquery.CreateXPathNavigator(contextNode)).(type) {
	case string:
		return []xq.Item{xq.StringItem(v)}, nil
	case bool:
		return []xq.Item{xq.BooleanItem(v)}, nil
	case float64:
		return []xq.Item{numberItem(v)}, nil
	case *xpath.NodeIterator:
		for v.MoveNext() {
			n, ok := v.Current().(*xmlquery.NodeNavigator)
			if !ok {
				return nil, fmt.Errorf("evaluate query: unexpected navigator %T", v.Current())
			}
			items = append(items, xq.NodeItem(currentNode(n)))
		}
		return items, nil
	default:
		return nil, fmt.Errorf("evaluate query: unexpected result %T", v)
	}
}

// numberItem maps XPath numbers, which are always doubles, to xs:integer
// when they hold an exact integral value.
func numberItem(f float64) xq.Item {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return xq.IntegerItem(int64(f))
	}
	return xq.DoubleItem(f)
}

// currentNode returns the node under the navigator. Attributes are not
// nodes in the xmlquery tree, so a detached attribute node is built that
// points back at its owner element.
func currentNode(nav *xmlquery.NodeNavigator) *xmlquery.Node {
	if nav.NodeType() != xpath.AttributeNode {
		return nav.Current()
	}
	text := &xmlquery.Node{Type: xmlquery.TextNode, Data: nav.Value()}
	attr := &xmlquery.Node{
		Type:         xmlquery.AttributeNode,
		Data:         nav.LocalName(),
		Prefix:       nav.Prefix(),
		NamespaceURI: nav.NamespaceURL(),
		Parent:       nav.Current(),
		FirstChild:   text,
		LastChild:    text,
	}
	text.Parent = attr
	return attr
}
