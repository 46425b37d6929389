package modules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"parish/internal/config"
	"parish/internal/fileutil"
	"parish/internal/registry"
	"parish/internal/services"
)

// Archive copies the recording and every generated artifact into the
// configured archive directory under a per-event subdirectory.
type Archive struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewArchive builds the archive handler.
func NewArchive(cfg *config.Config, logger *slog.Logger) *Archive {
	return &Archive{cfg: cfg, logger: componentLogger(logger, registry.ModuleArchive)}
}

func (h *Archive) Name() string { return registry.ModuleArchive }

// HealthCheck reports whether the archive directory is configured and
// writable.
func (h *Archive) HealthCheck(ctx context.Context) Health {
	dir := strings.TrimSpace(h.cfg.Archive.Dir)
	if dir == "" {
		return Unhealthy(h.Name(), "archive dir not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Unhealthy(h.Name(), fmt.Sprintf("archive dir not writable: %v", err))
	}
	return Healthy(h.Name())
}

// Execute copies the video and the output directory contents into
// <archive>/<event-id>/.
func (h *Archive) Execute(ctx context.Context, req Request) (Result, error) {
	dir := strings.TrimSpace(h.cfg.Archive.Dir)
	if dir == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, h.Name(), "execute", "archive dir not configured", nil)
	}
	video := req.Inputs["video"]
	if video == "" {
		return Result{}, services.Wrap(services.ErrValidation, h.Name(), "execute", "no video input resolved", nil)
	}

	dest := filepath.Join(dir, req.EventID)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, h.Name(), "execute", "create archive directory", err)
	}

	req.progress("archiving", filepath.Base(video))
	if err := fileutil.CopyFile(video, filepath.Join(dest, filepath.Base(video))); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, h.Name(), "execute", "copy video", err)
	}

	copied := 1
	entries, err := os.ReadDir(req.OutputDir)
	if err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			src := filepath.Join(req.OutputDir, entry.Name())
			if err := fileutil.CopyFile(src, filepath.Join(dest, entry.Name())); err != nil {
				return Result{}, services.Wrap(services.ErrTransient, h.Name(), "execute",
					fmt.Sprintf("copy artifact %s", entry.Name()), err)
			}
			copied++
		}
	}

	return Result{
		OutputFiles: map[string]string{"archive_dir": dest},
		Message:     fmt.Sprintf("archived %d files", copied),
	}, nil
}
