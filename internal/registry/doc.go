// Package registry is the static catalog of pipeline modules: their fixed
// execution order, display labels, and declared input dependencies. The
// catalog is immutable after process start.
package registry
