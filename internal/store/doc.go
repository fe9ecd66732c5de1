// Package store provides SQLite-backed durable storage for messages.
//
// Each stored message belongs to a named channel. Messages are polled in
// arrival order: PollMessage reads and deletes the oldest message of a
// channel in one transaction, so a message is delivered at most once.
// A message id is unique within a channel; the same message may be stored
// on several channels. A row that no longer decodes is moved to the
// dead_letters table when it reaches the head of its channel.
//
// Payloads are stored with a kind tag so they come back with the type they
// went in with:
//
//	text   string, stored verbatim
//	bytes  []byte, stored verbatim
//	xml    *xmlquery.Node, stored as compact XML and re-parsed on read
//	json   anything else, stored as JSON
//
// Headers are stored as a JSON object. JSON integers come back as int64 and
// other numbers as float64.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
