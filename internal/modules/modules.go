package modules

import (
	"context"
	"log/slog"

	"parish/internal/config"
	"parish/internal/events"
	"parish/internal/logging"
)

// ProgressFunc reports a step transition and optional detail text for the
// currently running module.
type ProgressFunc func(step, details string)

// Request carries everything a handler needs for one execution. Inputs is
// the resolved map of logical input names to absolute paths.
type Request struct {
	EventID   string
	Event     *events.Event
	Inputs    map[string]string
	OutputDir string
	LogsDir   string
	Progress  ProgressFunc
}

func (r Request) progress(step, details string) {
	if r.Progress != nil {
		r.Progress(step, details)
	}
}

// Result is the outcome of a successful handler execution. OutputFiles maps
// logical output names to absolute paths and is persisted on the module's
// durable record.
type Result struct {
	OutputFiles map[string]string
	Message     string
}

// Handler describes the contract the orchestrator needs from each module.
type Handler interface {
	Name() string
	Execute(ctx context.Context, req Request) (Result, error)
	HealthCheck(ctx context.Context) Health
}

// Health summarizes the readiness of a module's external dependencies.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// NewSet builds the full handler table keyed by module name.
func NewSet(cfg *config.Config, logger *slog.Logger) map[string]Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	ollama := NewOllamaClient(cfg, logger)
	comfy := NewComfyUIClient(cfg, logger)

	handlers := []Handler{
		NewSubtitles(cfg, logger),
		NewSubtitleCorrection(cfg, ollama, logger),
		NewContentSummary(cfg, ollama, logger),
		NewThumbnailAI(cfg, ollama, comfy, logger),
		NewThumbnailCompose(cfg, logger),
		NewPublishYouTube(cfg, logger),
		NewPublishWebsite(cfg, logger),
		NewArchive(cfg, logger),
	}

	set := make(map[string]Handler, len(handlers))
	for _, handler := range handlers {
		set[handler.Name()] = handler
	}
	return set
}

func componentLogger(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = logging.NewNop()
	}
	return logger.With(
		logging.String(logging.FieldComponent, "modules"),
		logging.String(logging.FieldModule, name),
	)
}
