// Package history persists session headers and transcripts in SQLite so
// conversations survive restarts and can be resumed by ID. Content blocks
// are stored as a JSON column; the schema is created on open.
package history
