// Package runstate persists durable per-event pipeline state in SQLite:
// per-module outcome records, produced output files, and a derived overall
// status. It is the source of truth for skip decisions across runs.
package runstate
