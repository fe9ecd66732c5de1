// Package xquery is the adapter between messages and a query processor.
//
// An Executor owns one query. Building it validates the configuration: the
// query text comes from exactly one source, it prepares cleanly, and every
// external variable it declares is covered by a Parameter. After that the
// executor is fixed and may be shared.
//
// Each execution converts the message payload to a node, binds it as the
// context item, binds every external variable in declaration order from its
// parameter, runs the query and hands the result sequence to a mapper:
//
//	payload ─ Converter ─▶ node ─ bind ─▶ PreparedExpression ─ execute ─▶ ResultSequence ─ mapper ─▶ []T
//
// The default mappers coerce items with a fixed fallback order: string
// items first, then numbers, then booleans, and finally nodes, which are
// serialized or read for their text depending on the target type. An item
// that cannot be coerced fails the whole execution with a RESULT_MAPPING
// error.
package xquery
