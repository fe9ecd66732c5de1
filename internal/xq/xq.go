// Package xq is the vendor-neutral query API that xqflow talks to.
//
// A query processor is reached through a DataSource and used with a strict
// lifecycle:
//
//	[DataSource] → Connection → PreparedExpression → bind → execute → ResultSequence
//	                    ↑               ↑                                   │
//	                    └── Close ──────┴────────────── Close ──────────────┘
//
// The adapter never assumes anything about the processor beyond this
// contract: a connection is opened per execution, an expression is prepared
// from query text, the context item and external variables are bound, and
// the result sequence is walked item by item. Connections and expressions
// are always closed by the caller, on every exit path.
//
// Nodes are represented as *xmlquery.Node so that payload converters,
// processors and result mappers share one tree model.
package xq

import (
	"context"

	"github.com/antchfx/xmlquery"
)

// QName is a namespace-qualified name.
type QName struct {
	Space string
	Local string
}

// String renders the name in Clark notation when a namespace is present.
func (q QName) String() string {
	if q.Space == "" {
		return q.Local
	}
	return "{" + q.Space + "}" + q.Local
}

// Name returns an unqualified QName.
func Name(local string) QName {
	return QName{Local: local}
}

// ContextItem is the name used with BindNode to bind the context item.
var ContextItem = QName{Space: "http://xqflow.dev/xq", Local: "context-item"}

// DataSource hands out connections to a query processor.
type DataSource interface {
	Connection(ctx context.Context) (Connection, error)
}

// Connection is a session with the query processor.
type Connection interface {
	PrepareExpression(query string) (PreparedExpression, error)
	Close() error
}

// PreparedExpression is a compiled query awaiting bindings.
type PreparedExpression interface {
	// ExternalVariables lists the external variables declared by the query,
	// in declaration order.
	ExternalVariables() []QName

	// BindNode binds a node to name. Use ContextItem for the context item.
	BindNode(name QName, node *xmlquery.Node) error

	// BindObject binds an atomic value to name.
	BindObject(name QName, value any) error

	ExecuteQuery(ctx context.Context) (ResultSequence, error)
	Close() error
}

// ResultSequence iterates over the items produced by a query.
type ResultSequence interface {
	// Next advances to the next item. It returns false at the end of the
	// sequence or on error; check Err afterwards.
	Next() bool

	// Item returns the current item.
	Item() Item

	Err() error
	Close() error
}
