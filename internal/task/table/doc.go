// Package table provides the periodic task table: a concurrency-safe registry
// of tasks keyed by numeric id, each with a period in seconds, plus the
// tick-driven dispatch that starts every due task.
//
// The table is driven from outside. A clock calls OnTick with an advancing
// integer time value; each entry whose period divides that value is handed
// to the table's Dispatcher and runs on its own. OnTick never waits for the
// executions it starts and the table keeps no record of them afterwards.
//
// All table operations, including the scan phase of OnTick, are serialized by
// a single mutex. Task bodies run outside that lock and may overlap with each
// other and with themselves.
package table
