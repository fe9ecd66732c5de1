package xmlpayload

import (
	"strings"

	"github.com/antchfx/xmlquery"
)

const indent = "  "

// NodeToString renders a node as text. Elements and documents are
// serialized as XML, indented when format is set; attributes yield their
// value, and text and comment nodes their data.
//
// Documents are written without their XML declaration. The parser adds one
// to every document, so it carries nothing the payload had.
func NodeToString(n *xmlquery.Node, format bool) string {
	if n == nil {
		return ""
	}

	switch n.Type {
	case xmlquery.DocumentNode:
		var parts []string
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == xmlquery.DeclarationNode {
				continue
			}
			if c.Type == xmlquery.TextNode && strings.TrimSpace(c.Data) == "" {
				continue
			}
			parts = append(parts, serialize(c, format))
		}
		if format {
			return strings.Join(parts, "\n")
		}
		return strings.Join(parts, "")
	case xmlquery.ElementNode, xmlquery.DeclarationNode:
		return serialize(n, format)
	case xmlquery.AttributeNode:
		return n.InnerText()
	default:
		return n.Data
	}
}

// serialize writes n itself as markup.
func serialize(n *xmlquery.Node, format bool) string {
	if !format {
		return n.OutputXML(true)
	}
	out := n.OutputXMLWithOptions(
		xmlquery.WithOutputSelf(),
		xmlquery.WithoutPreserveSpace(),
		xmlquery.WithIndentation(indent),
	)
	return strings.TrimLeft(out, "\n")
}

// TextContent returns the string value of a node: the concatenated text of
// its descendants, or the data of a comment.
func TextContent(n *xmlquery.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == xmlquery.CommentNode {
		return n.Data
	}
	return n.InnerText()
}
