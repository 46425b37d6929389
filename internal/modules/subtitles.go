package modules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"parish/internal/config"
	"parish/internal/events"
	"parish/internal/logging"
	"parish/internal/registry"
	"parish/internal/services"
)

var subtitleFormats = []string{"srt", "vtt", "txt"}

// Subtitles transcribes the event recording with whisper.cpp. When direct
// transcription of the container fails it extracts a 16kHz mono WAV with
// ffmpeg and retries.
type Subtitles struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewSubtitles builds the transcription handler.
func NewSubtitles(cfg *config.Config, logger *slog.Logger) *Subtitles {
	return &Subtitles{cfg: cfg, logger: componentLogger(logger, registry.ModuleSubtitles)}
}

func (s *Subtitles) Name() string { return registry.ModuleSubtitles }

// HealthCheck verifies the whisper binary and model file are present.
func (s *Subtitles) HealthCheck(ctx context.Context) Health {
	if _, err := exec.LookPath(s.cfg.WhisperBinary()); err != nil {
		return Unhealthy(s.Name(), fmt.Sprintf("whisper binary %q not found", s.cfg.WhisperBinary()))
	}
	if path := s.modelPath(); path != "" {
		if _, err := os.Stat(path); err != nil {
			return Unhealthy(s.Name(), fmt.Sprintf("model file missing: %s", path))
		}
	}
	return Healthy(s.Name())
}

func (s *Subtitles) modelPath() string {
	model := strings.TrimSpace(s.cfg.Whisper.Model)
	if model == "" {
		return ""
	}
	if filepath.IsAbs(model) || strings.ContainsRune(model, os.PathSeparator) {
		return model
	}
	return filepath.Join(s.cfg.Whisper.ModelDir, fmt.Sprintf("ggml-%s.bin", model))
}

// Execute transcribes the video input into srt, vtt, and txt files in the
// event's output directory.
func (s *Subtitles) Execute(ctx context.Context, req Request) (Result, error) {
	video := req.Inputs["video"]
	if video == "" {
		return Result{}, services.Wrap(services.ErrValidation, s.Name(), "execute", "no video input resolved", nil)
	}
	lang := s.language(req.Event)

	req.progress("transcribing", filepath.Base(video))
	outputs, err := s.transcribe(ctx, video, req.OutputDir, lang)
	if err == nil {
		return Result{OutputFiles: outputs, Message: fmt.Sprintf("generated %d subtitle files", len(outputs))}, nil
	}

	s.logger.Warn("direct transcription failed, extracting audio", logging.Error(err))
	req.progress("extracting audio", "")
	audio, extractErr := s.extractAudio(ctx, video, req.OutputDir)
	if extractErr != nil {
		return Result{}, extractErr
	}
	defer os.Remove(audio)

	req.progress("transcribing", filepath.Base(audio))
	outputs, err = s.transcribe(ctx, audio, req.OutputDir, lang)
	if err != nil {
		return Result{}, err
	}
	return Result{OutputFiles: outputs, Message: fmt.Sprintf("generated %d subtitle files", len(outputs))}, nil
}

// language prefers the language recorded on the event itself over the
// configured default, so a single Spanish service does not require editing
// the daemon config.
func (s *Subtitles) language(event *events.Event) string {
	if event != nil {
		if lang := strings.TrimSpace(event.Language); lang != "" {
			return lang
		}
	}
	return strings.TrimSpace(s.cfg.Whisper.Language)
}

func (s *Subtitles) transcribe(ctx context.Context, input, outputDir, lang string) (map[string]string, error) {
	base := strings.ReplaceAll(strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)), " ", "_")
	outputPrefix := filepath.Join(outputDir, base)

	args := []string{
		"-f", input,
		"-of", outputPrefix,
		"-osrt", "-ovtt", "-otxt",
	}
	if model := s.modelPath(); model != "" {
		args = append([]string{"-m", model}, args...)
	}
	if lang != "" && lang != "auto" {
		args = append(args, "-l", lang)
	}
	if s.cfg.Whisper.MaxLineLength > 0 {
		args = append(args, "--max-len", strconv.Itoa(s.cfg.Whisper.MaxLineLength))
	}
	if s.cfg.Whisper.SplitOnWord {
		args = append(args, "-sow")
	}
	if s.cfg.Whisper.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(s.cfg.Whisper.Threads))
	}

	cmd := exec.CommandContext(ctx, s.cfg.WhisperBinary(), args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, s.Name(), "transcribe",
			fmt.Sprintf("whisper failed: %s", tail(string(output), 200)), err)
	}

	outputs := make(map[string]string, len(subtitleFormats))
	for _, format := range subtitleFormats {
		path := outputPrefix + "." + format
		if _, err := os.Stat(path); err == nil {
			outputs[format] = path
		}
	}
	if len(outputs) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, s.Name(), "transcribe", "whisper produced no subtitle files", nil)
	}
	return outputs, nil
}

func (s *Subtitles) extractAudio(ctx context.Context, video, outputDir string) (string, error) {
	base := strings.ReplaceAll(strings.TrimSuffix(filepath.Base(video), filepath.Ext(video)), " ", "_")
	dest := filepath.Join(outputDir, base+"_audio.wav")

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", video,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		dest,
	}
	cmd := exec.CommandContext(ctx, s.cfg.FFmpegBinary(), args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", services.Wrap(services.ErrExternalTool, s.Name(), "extract audio",
			fmt.Sprintf("ffmpeg failed: %s", tail(string(output), 200)), err)
	}
	return dest, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
