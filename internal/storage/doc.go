// Package storage keeps an append-only audit journal of task table changes
// and dispatch outcomes.
//
// Drivers:
//   - file: JSON Lines at <path>.audit.jsonl
//   - sqlite: table "audit" in a SQLite database (build tag "sqlite")
//
// The journal is write-mostly. Nothing in the process restores table state
// from it.
package storage
