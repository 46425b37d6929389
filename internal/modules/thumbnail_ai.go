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
	"parish/internal/logging"
	"parish/internal/registry"
	"parish/internal/services"
)

// ThumbnailAI generates the thumbnail background image from the content
// summary's image prompt. The backend is configurable: a ComfyUI workflow,
// an image-capable Ollama model, or a static asset picked from the assets
// directory. Generation errors fall back to a static asset when one exists.
type ThumbnailAI struct {
	cfg    *config.Config
	ollama *OllamaClient
	comfy  *ComfyUIClient
	logger *slog.Logger
}

// NewThumbnailAI builds the background generation handler.
func NewThumbnailAI(cfg *config.Config, ollama *OllamaClient, comfy *ComfyUIClient, logger *slog.Logger) *ThumbnailAI {
	return &ThumbnailAI{
		cfg:    cfg,
		ollama: ollama,
		comfy:  comfy,
		logger: componentLogger(logger, registry.ModuleThumbnailAI),
	}
}

func (h *ThumbnailAI) Name() string { return registry.ModuleThumbnailAI }

// HealthCheck verifies the configured backend is reachable.
func (h *ThumbnailAI) HealthCheck(ctx context.Context) Health {
	switch h.cfg.Thumbnail.Backend {
	case "comfyui":
		if err := h.comfy.Available(ctx); err != nil {
			return Unhealthy(h.Name(), err.Error())
		}
	case "ollama":
		if err := h.ollama.Available(ctx); err != nil {
			return Unhealthy(h.Name(), err.Error())
		}
	case "fallback":
		if len(h.cfg.FallbackBackgrounds()) == 0 {
			return Unhealthy(h.Name(), "no fallback backgrounds in assets directory")
		}
	}
	return Healthy(h.Name())
}

// Execute writes background.png (or a copied asset) into the event's output
// directory.
func (h *ThumbnailAI) Execute(ctx context.Context, req Request) (Result, error) {
	promptPath := req.Inputs["image_prompt"]
	if promptPath == "" {
		return Result{}, services.Wrap(services.ErrValidation, h.Name(), "execute", "no image prompt resolved", nil)
	}
	data, err := os.ReadFile(promptPath)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, h.Name(), "execute", "read image prompt", err)
	}
	prompt := cleanImagePrompt(string(data))
	if prompt == "" {
		return Result{}, services.Wrap(services.ErrValidation, h.Name(), "execute", "image prompt is empty", nil)
	}

	outPath := filepath.Join(req.OutputDir, "background.png")
	req.progress("generating background", h.cfg.Thumbnail.Backend)

	switch h.cfg.Thumbnail.Backend {
	case "comfyui":
		err = h.generateComfyUI(ctx, prompt, outPath)
	case "ollama":
		err = h.generateOllama(ctx, prompt, outPath)
	case "fallback":
		err = h.useFallback(outPath)
	default:
		return Result{}, services.Wrap(services.ErrConfiguration, h.Name(), "execute",
			fmt.Sprintf("unknown thumbnail backend %q", h.cfg.Thumbnail.Backend), nil)
	}

	if err != nil && h.cfg.Thumbnail.Backend != "fallback" {
		h.logger.Warn("generation failed, trying fallback asset", logging.Error(err))
		if fbErr := h.useFallback(outPath); fbErr == nil {
			return Result{
				OutputFiles: map[string]string{"background": outPath},
				Message:     "generation failed, used fallback asset",
			}, nil
		}
	}
	if err != nil {
		return Result{}, err
	}

	return Result{
		OutputFiles: map[string]string{"background": outPath},
		Message:     fmt.Sprintf("background generated via %s", h.cfg.Thumbnail.Backend),
	}, nil
}

func (h *ThumbnailAI) generateComfyUI(ctx context.Context, prompt, outPath string) error {
	image, err := h.comfy.GenerateImage(ctx, prompt,
		h.cfg.Thumbnail.Width, h.cfg.Thumbnail.Height, h.cfg.Thumbnail.Steps)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, image, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, h.Name(), "execute", "write background", err)
	}
	return nil
}

func (h *ThumbnailAI) generateOllama(ctx context.Context, prompt, outPath string) error {
	model := h.cfg.Thumbnail.Model
	if strings.TrimSpace(model) == "" {
		return services.Wrap(services.ErrConfiguration, h.Name(), "execute", "thumbnail model required for ollama backend", nil)
	}
	image, err := h.ollama.GenerateImage(ctx, model, prompt,
		h.cfg.Thumbnail.Width, h.cfg.Thumbnail.Height)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, image, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, h.Name(), "execute", "write background", err)
	}
	return nil
}

func (h *ThumbnailAI) useFallback(outPath string) error {
	assets := h.cfg.FallbackBackgrounds()
	if len(assets) == 0 {
		return services.Wrap(services.ErrConfiguration, h.Name(), "execute", "no fallback backgrounds available", nil)
	}
	if err := fileutil.CopyFile(assets[0], outPath); err != nil {
		return services.Wrap(services.ErrTransient, h.Name(), "execute", "copy fallback asset", err)
	}
	h.logger.Info("used fallback background", logging.String("asset", assets[0]))
	return nil
}

// cleanImagePrompt strips markdown headers and front matter that summary
// models occasionally emit around the actual prompt.
func cleanImagePrompt(raw string) string {
	if idx := strings.LastIndex(raw, "---"); idx >= 0 {
		raw = raw[idx+len("---"):]
	}
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, " "))
}
