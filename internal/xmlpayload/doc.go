// Package xmlpayload turns message payloads into XML nodes and nodes back
// into text.
//
// A Converter extracts the node a query runs against. DefaultConverter
// parses strings, byte slices and readers, and passes *xmlquery.Node values
// through unchanged. Any other payload type is rejected with a
// PAYLOAD_CONVERSION error; plug in a custom Converter to support more.
//
// NodeToString is the node-to-string step of the result coercion cascade:
// elements and documents are serialized as markup, every other node kind
// collapses to its text.
package xmlpayload
