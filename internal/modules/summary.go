package modules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"parish/internal/config"
	"parish/internal/registry"
	"parish/internal/services"
)

var summaryLengthInstructions = map[string]string{
	"short":  "a concise summary in 2-3 paragraphs (150-200 words)",
	"medium": "a comprehensive summary in 4-5 paragraphs (300-400 words)",
	"long":   "a detailed summary in 6-8 paragraphs (500-600 words)",
}

const summarySystemPrompt = `You are a sermon/speech summarization assistant. Your task is to:
1. Identify the main topics and themes
2. Extract key points and important messages
3. Note any scripture references or important quotes
4. Capture the overall message and purpose
5. Write in a clear, organized manner`

const imagePromptSystemPrompt = `You write prompts for a text-to-image model. Given a sermon summary, produce one short prompt (under 60 words) describing a serene, reverent background image suitable for a video thumbnail. Describe scenery, lighting, and mood only. No text, no people's faces, no religious figures. Output the prompt alone with no headers or commentary.`

// ContentSummary generates the summary text and the thumbnail image prompt
// from the best available transcript.
type ContentSummary struct {
	cfg    *config.Config
	ollama *OllamaClient
	logger *slog.Logger
}

// NewContentSummary builds the summary handler.
func NewContentSummary(cfg *config.Config, ollama *OllamaClient, logger *slog.Logger) *ContentSummary {
	return &ContentSummary{
		cfg:    cfg,
		ollama: ollama,
		logger: componentLogger(logger, registry.ModuleContentSummary),
	}
}

func (h *ContentSummary) Name() string { return registry.ModuleContentSummary }

// HealthCheck verifies the Ollama server and model are reachable.
func (h *ContentSummary) HealthCheck(ctx context.Context) Health {
	if err := h.ollama.Available(ctx); err != nil {
		return Unhealthy(h.Name(), err.Error())
	}
	return Healthy(h.Name())
}

// Execute writes <base>_summary.txt and <base>_image_prompt.txt into the
// event's output directory.
func (h *ContentSummary) Execute(ctx context.Context, req Request) (Result, error) {
	srtPath := req.Inputs["srt"]
	if srtPath == "" {
		return Result{}, services.Wrap(services.ErrValidation, h.Name(), "execute", "no transcript input resolved", nil)
	}
	if err := h.ollama.Available(ctx); err != nil {
		return Result{}, err
	}
	defer h.ollama.Unload(ctx)

	transcript, err := h.loadTranscript(srtPath)
	if err != nil {
		return Result{}, err
	}

	req.progress("summarizing", filepath.Base(srtPath))
	summary, err := h.generateSummary(ctx, transcript)
	if err != nil {
		return Result{}, err
	}

	req.progress("writing image prompt", "")
	imagePrompt, err := h.ollama.Generate(ctx,
		fmt.Sprintf("Sermon summary:\n\n%s\n\nImage prompt:", summary),
		imagePromptSystemPrompt)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(imagePrompt) == "" {
		return Result{}, services.Wrap(services.ErrExternalTool, h.Name(), "execute", "model returned empty image prompt", nil)
	}

	base := transcriptBase(srtPath)
	summaryPath := filepath.Join(req.OutputDir, base+"_summary.txt")
	promptPath := filepath.Join(req.OutputDir, base+"_image_prompt.txt")

	header := fmt.Sprintf("# Content Summary\n\nGenerated from: %s\nSummary length: %s\n\n---\n\n",
		filepath.Base(srtPath), h.summaryLength())
	if err := os.WriteFile(summaryPath, []byte(header+summary+"\n"), 0o644); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, h.Name(), "execute", "write summary", err)
	}
	if err := os.WriteFile(promptPath, []byte(strings.TrimSpace(imagePrompt)+"\n"), 0o644); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, h.Name(), "execute", "write image prompt", err)
	}

	return Result{
		OutputFiles: map[string]string{
			"summary":      summaryPath,
			"image_prompt": promptPath,
		},
		Message: "summary and image prompt generated",
	}, nil
}

func (h *ContentSummary) loadTranscript(path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", services.Wrap(services.ErrValidation, h.Name(), "execute", "read transcript", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", services.Wrap(services.ErrValidation, h.Name(), "execute", "transcript is empty", nil)
		}
		return text, nil
	}

	cues, err := ReadSRT(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, h.Name(), "execute", "parse srt input", err)
	}
	if len(cues) == 0 {
		return "", services.Wrap(services.ErrValidation, h.Name(), "execute", "srt input has no cues", nil)
	}
	return PlainText(cues), nil
}

func (h *ContentSummary) generateSummary(ctx context.Context, transcript string) (string, error) {
	instruction := summaryLengthInstructions[h.summaryLength()]

	languages := h.cfg.AI.SummaryLanguages
	languageNote := ""
	if len(languages) == 1 {
		languageNote = fmt.Sprintf("\nWrite the summary in %s.", languages[0])
	} else if len(languages) > 1 {
		languageNote = fmt.Sprintf("\nProvide the summary once per language, in this order: %s. Separate the versions with a line containing only '---'.",
			strings.Join(languages, ", "))
	}

	prompt := fmt.Sprintf(`Please create %s of the following sermon/speech transcript:

%s

Include:
- Main topic and theme
- Key points discussed
- Important messages or takeaways
- Any notable quotes or references%s

Summary:`, instruction, transcript, languageNote)

	summary, err := h.ollama.Generate(ctx, prompt, summarySystemPrompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(summary) == "" {
		return "", services.Wrap(services.ErrExternalTool, h.Name(), "execute", "model returned empty summary", nil)
	}
	return summary, nil
}

func (h *ContentSummary) summaryLength() string {
	if _, ok := summaryLengthInstructions[h.cfg.AI.SummaryLength]; ok {
		return h.cfg.AI.SummaryLength
	}
	return "medium"
}

// transcriptBase strips transcription suffixes so all derived artifacts for
// one recording share a base name.
func transcriptBase(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = strings.TrimSuffix(base, "_corrected")
	base = strings.TrimSuffix(base, "_audio")
	return base
}
