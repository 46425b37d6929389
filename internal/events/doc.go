// Package events manages the per-event directory layout and the event.json
// configuration document: creation with slugged identifiers, loading,
// attaching input videos, and module toggles.
package events
