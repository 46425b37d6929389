package modules

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"parish/internal/config"
	"parish/internal/registry"
	"parish/internal/services"
)

// ThumbnailCompose renders the final thumbnail: the background scaled to the
// target geometry with the event title and speaker drawn over it via ffmpeg.
type ThumbnailCompose struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewThumbnailCompose builds the composition handler.
func NewThumbnailCompose(cfg *config.Config, logger *slog.Logger) *ThumbnailCompose {
	return &ThumbnailCompose{cfg: cfg, logger: componentLogger(logger, registry.ModuleThumbnailCompose)}
}

func (h *ThumbnailCompose) Name() string { return registry.ModuleThumbnailCompose }

// HealthCheck verifies ffmpeg is on PATH.
func (h *ThumbnailCompose) HealthCheck(ctx context.Context) Health {
	if _, err := exec.LookPath(h.cfg.FFmpegBinary()); err != nil {
		return Unhealthy(h.Name(), fmt.Sprintf("ffmpeg binary %q not found", h.cfg.FFmpegBinary()))
	}
	return Healthy(h.Name())
}

// Execute writes thumbnail.png into the event's output directory.
func (h *ThumbnailCompose) Execute(ctx context.Context, req Request) (Result, error) {
	background := req.Inputs["background"]
	if background == "" {
		return Result{}, services.Wrap(services.ErrValidation, h.Name(), "execute", "no background input resolved", nil)
	}

	title := ""
	subtitle := ""
	if req.Event != nil {
		title = req.Event.Title
		subtitle = req.Event.Speaker
	}

	outPath := filepath.Join(req.OutputDir, "thumbnail.png")
	req.progress("composing", filepath.Base(background))

	filter := h.buildFilter(title, subtitle)
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", background,
		"-vf", filter,
		"-frames:v", "1",
		outPath,
	}
	cmd := exec.CommandContext(ctx, h.cfg.FFmpegBinary(), args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, h.Name(), "execute",
			fmt.Sprintf("ffmpeg compose failed: %s", tail(string(output), 200)), err)
	}

	return Result{
		OutputFiles: map[string]string{"thumbnail": outPath},
		Message:     "thumbnail composed",
	}, nil
}

func (h *ThumbnailCompose) buildFilter(title, subtitle string) string {
	parts := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", h.cfg.Thumbnail.Width, h.cfg.Thumbnail.Height),
		fmt.Sprintf("crop=%d:%d", h.cfg.Thumbnail.Width, h.cfg.Thumbnail.Height),
	}
	if title = strings.TrimSpace(title); title != "" {
		parts = append(parts, h.drawText(title, h.cfg.Thumbnail.TitleFontSize, "(h-text_h)/2-40"))
	}
	if subtitle = strings.TrimSpace(subtitle); subtitle != "" {
		parts = append(parts, h.drawText(subtitle, h.cfg.Thumbnail.SubtitleFontSize, "(h-text_h)/2+80"))
	}
	return strings.Join(parts, ",")
}

func (h *ThumbnailCompose) drawText(text string, fontSize int, yExpr string) string {
	opts := []string{
		fmt.Sprintf("text='%s'", escapeDrawText(text)),
		fmt.Sprintf("fontsize=%d", fontSize),
		"fontcolor=white",
		"borderw=3",
		"bordercolor=black",
		"x=(w-text_w)/2",
		"y=" + yExpr,
	}
	if font := strings.TrimSpace(h.cfg.Thumbnail.FontPath); font != "" {
		opts = append(opts, "fontfile="+font)
	}
	return "drawtext=" + strings.Join(opts, ":")
}

// escapeDrawText escapes characters special to ffmpeg's drawtext filter.
func escapeDrawText(text string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\\\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return replacer.Replace(text)
}
