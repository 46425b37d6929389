package config

import (
	"fmt"
	"strings"
)

var validBackends = map[string]struct{}{
	"comfyui":  {},
	"ollama":   {},
	"fallback": {},
}

var validSummaryLengths = map[string]struct{}{
	"short":  {},
	"medium": {},
	"long":   {},
}

// Validate checks configuration values that would otherwise fail deep inside
// a workflow run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.EventsDir) == "" {
		return fmt.Errorf("config: events_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return fmt.Errorf("config: log_dir must not be empty")
	}
	if _, ok := validBackends[c.Thumbnail.Backend]; !ok {
		return fmt.Errorf("config: thumbnail backend %q is not one of comfyui, ollama, fallback", c.Thumbnail.Backend)
	}
	if _, ok := validSummaryLengths[strings.ToLower(c.AI.SummaryLength)]; !ok {
		return fmt.Errorf("config: summary_length %q is not one of short, medium, long", c.AI.SummaryLength)
	}
	if c.Thumbnail.Width <= 0 || c.Thumbnail.Height <= 0 {
		return fmt.Errorf("config: thumbnail dimensions must be positive")
	}
	if c.AI.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: ai timeout_seconds must be positive")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: logging format %q is not one of console, json", c.Logging.Format)
	}
	return nil
}
