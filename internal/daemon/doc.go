// Package daemon hosts the long-running parish process: single-instance
// locking, the HTTP API surface, and lifecycle management around the
// workflow orchestrator.
package daemon
