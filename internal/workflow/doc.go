// Package workflow orchestrates pipeline runs: module ordering, per-event
// run locking, skip and force semantics, durable state updates, and live
// progress publication.
package workflow
