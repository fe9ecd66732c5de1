package xq

import (
	"fmt"

	"github.com/antchfx/xmlquery"
)

// ItemKind is the type of a result item.
type ItemKind int

const (
	KindString ItemKind = iota + 1
	KindUntypedAtomic
	KindAnyURI
	KindInteger
	KindDecimal
	KindDouble
	KindBoolean
	KindDocument
	KindElement
	KindAttribute
	KindText
	KindComment
	KindProcessingInstruction
)

var kindNames = map[ItemKind]string{
	KindString:                "xs:string",
	KindUntypedAtomic:         "xs:untypedAtomic",
	KindAnyURI:                "xs:anyURI",
	KindInteger:               "xs:integer",
	KindDecimal:               "xs:decimal",
	KindDouble:                "xs:double",
	KindBoolean:               "xs:boolean",
	KindDocument:              "document-node()",
	KindElement:               "element()",
	KindAttribute:             "attribute()",
	KindText:                  "text()",
	KindComment:               "comment()",
	KindProcessingInstruction: "processing-instruction()",
}

func (k ItemKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ItemKind(%d)", int(k))
}

// IsNode reports whether items of this kind carry a node.
func (k ItemKind) IsNode() bool {
	return k >= KindDocument && k <= KindProcessingInstruction
}

// IsNumeric reports whether k is one of the numeric atomic kinds.
func (k ItemKind) IsNumeric() bool {
	return k == KindInteger || k == KindDecimal || k == KindDouble
}

// IsString reports whether k is a string-like atomic kind.
func (k ItemKind) IsString() bool {
	return k == KindString || k == KindUntypedAtomic || k == KindAnyURI
}

// Item is one member of a result sequence.
//
// Value holds a string for string kinds, an int64 for KindInteger, a float64
// for KindDecimal and KindDouble, a bool for KindBoolean and a *xmlquery.Node
// for node kinds.
type Item struct {
	Kind  ItemKind
	Value any
}

// StringItem returns an xs:string item.
func StringItem(s string) Item { return Item{Kind: KindString, Value: s} }

// IntegerItem returns an xs:integer item.
func IntegerItem(n int64) Item { return Item{Kind: KindInteger, Value: n} }

// DoubleItem returns an xs:double item.
func DoubleItem(f float64) Item { return Item{Kind: KindDouble, Value: f} }

// BooleanItem returns an xs:boolean item.
func BooleanItem(b bool) Item { return Item{Kind: KindBoolean, Value: b} }

// NodeItem returns an item for n, with the kind derived from the node type.
func NodeItem(n *xmlquery.Node) Item {
	return Item{Kind: NodeKind(n), Value: n}
}

// NodeKind maps an xmlquery node type to an item kind.
func NodeKind(n *xmlquery.Node) ItemKind {
	switch n.Type {
	case xmlquery.DocumentNode:
		return KindDocument
	case xmlquery.AttributeNode:
		return KindAttribute
	case xmlquery.TextNode, xmlquery.CharDataNode:
		return KindText
	case xmlquery.CommentNode:
		return KindComment
	case xmlquery.DeclarationNode, xmlquery.NotationNode:
		return KindProcessingInstruction
	default:
		return KindElement
	}
}

// Node returns the node carried by the item, or nil for atomic items.
func (i Item) Node() *xmlquery.Node {
	n, _ := i.Value.(*xmlquery.Node)
	return n
}
