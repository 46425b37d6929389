// Package progress tracks live run progress per event in memory, with an
// optional best-effort mirror to each event's logs directory.
package progress
