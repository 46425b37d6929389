package modules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"parish/internal/config"
	"parish/internal/registry"
	"parish/internal/services"
)

// Publishing shells out to operator-provided commands. The command receives
// the event artifacts through PARISH_* environment variables, so any upload
// tool can be wired in without code changes.

// PublishYouTube uploads the recording via the configured upload command.
type PublishYouTube struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewPublishYouTube builds the YouTube publish handler.
func NewPublishYouTube(cfg *config.Config, logger *slog.Logger) *PublishYouTube {
	return &PublishYouTube{cfg: cfg, logger: componentLogger(logger, registry.ModulePublishYouTube)}
}

func (h *PublishYouTube) Name() string { return registry.ModulePublishYouTube }

// HealthCheck reports whether an upload command is configured.
func (h *PublishYouTube) HealthCheck(ctx context.Context) Health {
	if strings.TrimSpace(h.cfg.YouTube.UploadCommand) == "" {
		return Unhealthy(h.Name(), "youtube upload_command not configured")
	}
	return Healthy(h.Name())
}

// Execute runs the upload command with the video and companion artifacts in
// the environment.
func (h *PublishYouTube) Execute(ctx context.Context, req Request) (Result, error) {
	command := strings.TrimSpace(h.cfg.YouTube.UploadCommand)
	if command == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, h.Name(), "execute", "youtube upload_command not configured", nil)
	}
	video := req.Inputs["video"]
	if video == "" {
		return Result{}, services.Wrap(services.ErrValidation, h.Name(), "execute", "no video input resolved", nil)
	}

	env := eventEnv(req)
	env = append(env,
		"PARISH_VIDEO="+video,
		"PARISH_PRIVACY="+h.cfg.YouTube.Privacy,
		"PARISH_CATEGORY="+h.cfg.YouTube.Category,
	)
	if thumbnail := findArtifact(req.OutputDir, "thumbnail.png"); thumbnail != "" {
		env = append(env, "PARISH_THUMBNAIL="+thumbnail)
	}

	req.progress("uploading", filepath.Base(video))
	if err := runPublishCommand(ctx, h.Name(), command, env, req.LogsDir, "publish_youtube.log"); err != nil {
		return Result{}, err
	}
	return Result{Message: "uploaded to YouTube"}, nil
}

// PublishWebsite publishes the summary via the configured publish command.
type PublishWebsite struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewPublishWebsite builds the website publish handler.
func NewPublishWebsite(cfg *config.Config, logger *slog.Logger) *PublishWebsite {
	return &PublishWebsite{cfg: cfg, logger: componentLogger(logger, registry.ModulePublishWebsite)}
}

func (h *PublishWebsite) Name() string { return registry.ModulePublishWebsite }

// HealthCheck reports whether a publish command is configured.
func (h *PublishWebsite) HealthCheck(ctx context.Context) Health {
	if strings.TrimSpace(h.cfg.Website.PublishCommand) == "" {
		return Unhealthy(h.Name(), "website publish_command not configured")
	}
	return Healthy(h.Name())
}

// Execute runs the publish command with the summary in the environment.
func (h *PublishWebsite) Execute(ctx context.Context, req Request) (Result, error) {
	command := strings.TrimSpace(h.cfg.Website.PublishCommand)
	if command == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, h.Name(), "execute", "website publish_command not configured", nil)
	}
	summary := req.Inputs["summary"]
	if summary == "" {
		return Result{}, services.Wrap(services.ErrValidation, h.Name(), "execute", "no summary input resolved", nil)
	}

	env := eventEnv(req)
	env = append(env,
		"PARISH_SUMMARY="+summary,
		"PARISH_SITE_URL="+h.cfg.Website.BaseURL,
	)
	if thumbnail := findArtifact(req.OutputDir, "thumbnail.png"); thumbnail != "" {
		env = append(env, "PARISH_THUMBNAIL="+thumbnail)
	}

	req.progress("publishing", filepath.Base(summary))
	if err := runPublishCommand(ctx, h.Name(), command, env, req.LogsDir, "publish_website.log"); err != nil {
		return Result{}, err
	}
	return Result{Message: "published to website"}, nil
}

func eventEnv(req Request) []string {
	env := append(os.Environ(), "PARISH_EVENT_ID="+req.EventID)
	if req.Event != nil {
		env = append(env,
			"PARISH_TITLE="+req.Event.Title,
			"PARISH_SPEAKER="+req.Event.Speaker,
			"PARISH_DATE="+req.Event.Date,
		)
	}
	return env
}

func findArtifact(outputDir, name string) string {
	path := filepath.Join(outputDir, name)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// runPublishCommand executes the operator command via the shell, teeing its
// combined output to a log file in the event's logs directory.
func runPublishCommand(ctx context.Context, module, command string, env []string, logsDir, logName string) error {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command) //nolint:gosec
	cmd.Env = env

	output, err := cmd.CombinedOutput()
	if logsDir != "" {
		_ = os.WriteFile(filepath.Join(logsDir, logName), output, 0o644)
	}
	if err != nil {
		return services.Wrap(services.ErrExternalTool, module, "execute",
			fmt.Sprintf("command failed: %s", tail(string(output), 200)), err)
	}
	return nil
}
