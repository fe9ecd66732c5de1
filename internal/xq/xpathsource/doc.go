// Package xpathsource is the default xq.DataSource. It evaluates queries
// with github.com/antchfx/xpath over github.com/antchfx/xmlquery trees.
//
// The processor understands the subset of the XQuery prolog that the
// adapter relies on, followed by an XPath 1.0 body:
//
//	xquery version "1.0";
//	(: comments are stripped, and may nest :)
//	declare namespace o = "urn:orders";
//	declare variable $threshold as xs:integer external;
//	declare variable $gold := "gold";
//	/o:order[o:total > $threshold]/@channel
//
// External variables are reported by ExternalVariables in declaration
// order. Because the underlying XPath engine has no variable support,
// bound values are rendered as XPath literals and substituted into the body
// at execution time; variables declared with an initializer are inlined as
// parenthesized expressions. Substitution never touches text inside string
// literals.
//
// The body is compiled once at prepare time with placeholder values so that
// syntax errors surface before the first execution.
package xpathsource
