// Package logging builds the slog loggers used across parish and defines the
// standardized field names shared by the daemon, orchestrator, and CLI.
//
// Two output formats are supported: a console handler that renders
// timestamp/level/component prefixes with key=value attributes, and a JSON
// handler for machine consumption. Context helpers annotate loggers with the
// event id, module name, and correlation id carried on a context.
package logging
