// Package message defines the envelope that flows through xqflow channels,
// routers and transformers, and the single error type the messaging layer
// surfaces.
//
// A Message is immutable by convention: derive a new message with
// WithPayload or WithHeaders instead of mutating Headers in place. Each
// derived message receives a fresh ID.
//
// Every failure raised by the adapter (configuration or execution) is an
// *Error carrying a Code and the wrapped cause. Callers classify failures
// with IsConfigError, IsExecutionError and IsMappingError, which see
// through fmt.Errorf wrapping.
package message
