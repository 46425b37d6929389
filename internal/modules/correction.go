package modules

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"parish/internal/config"
	"parish/internal/logging"
	"parish/internal/registry"
	"parish/internal/services"
)

const correctionBatchSize = 10

const correctionSystemPrompt = `You are a subtitle text correction assistant. Fix ONLY the subtitle text content while preserving the exact SRT format.

CRITICAL RULES:
1) Keep the EXACT number of subtitle blocks
2) Keep ALL timestamps unchanged
3) Keep ALL index numbers unchanged
4) Keep ALL blank lines between blocks
5) ONLY fix: typos, transcription errors, grammar, unnatural wording
6) Output VALID SRT format`

// SubtitleCorrection fixes transcription errors batch by batch with the AI
// model. A batch whose corrected output changes structure or timestamps is
// kept as-is; a bad model answer must never corrupt the subtitle track.
type SubtitleCorrection struct {
	cfg    *config.Config
	ollama *OllamaClient
	logger *slog.Logger
}

// NewSubtitleCorrection builds the correction handler.
func NewSubtitleCorrection(cfg *config.Config, ollama *OllamaClient, logger *slog.Logger) *SubtitleCorrection {
	return &SubtitleCorrection{
		cfg:    cfg,
		ollama: ollama,
		logger: componentLogger(logger, registry.ModuleSubtitleCorrection),
	}
}

func (h *SubtitleCorrection) Name() string { return registry.ModuleSubtitleCorrection }

// HealthCheck verifies the Ollama server and model are reachable.
func (h *SubtitleCorrection) HealthCheck(ctx context.Context) Health {
	if err := h.ollama.Available(ctx); err != nil {
		return Unhealthy(h.Name(), err.Error())
	}
	return Healthy(h.Name())
}

// Execute writes a corrected copy of the srt input next to it, suffixed
// _corrected.
func (h *SubtitleCorrection) Execute(ctx context.Context, req Request) (Result, error) {
	srtPath := req.Inputs["srt"]
	if srtPath == "" {
		return Result{}, services.Wrap(services.ErrValidation, h.Name(), "execute", "no srt input resolved", nil)
	}
	if err := h.ollama.Available(ctx); err != nil {
		return Result{}, err
	}
	defer h.ollama.Unload(ctx)

	cues, err := ReadSRT(srtPath)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, h.Name(), "execute", "parse srt input", err)
	}
	if len(cues) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, h.Name(), "execute", "srt input has no cues", nil)
	}

	corrected := make([]Cue, 0, len(cues))
	batches := (len(cues) + correctionBatchSize - 1) / correctionBatchSize
	for start := 0; start < len(cues); start += correctionBatchSize {
		end := min(start+correctionBatchSize, len(cues))
		batch := cues[start:end]
		batchNum := start/correctionBatchSize + 1

		req.progress("correcting", fmt.Sprintf("batch %d/%d", batchNum, batches))
		corrected = append(corrected, h.correctBatch(ctx, batch)...)
	}

	base := strings.TrimSuffix(filepath.Base(srtPath), filepath.Ext(srtPath))
	base = strings.TrimSuffix(base, "_audio")
	outPath := filepath.Join(req.OutputDir, base+"_corrected.srt")
	if err := WriteSRT(outPath, corrected); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, h.Name(), "execute", "write corrected srt", err)
	}

	return Result{
		OutputFiles: map[string]string{"corrected_srt": outPath},
		Message:     fmt.Sprintf("corrected %d cues", len(corrected)),
	}, nil
}

// correctBatch asks the model for a corrected batch and validates the answer
// structurally. Any mismatch falls back to the original cues.
func (h *SubtitleCorrection) correctBatch(ctx context.Context, batch []Cue) []Cue {
	prompt := fmt.Sprintf(`Correct the subtitle text. Output MUST have exactly %d blocks with same timestamps and numbers.

Input SRT (%d blocks):
<<<
%s
>>>

Output corrected SRT (MUST be %d blocks, same format):`,
		len(batch), len(batch), strings.TrimSpace(FormatSRT(batch)), len(batch))

	answer, err := h.ollama.Generate(ctx, prompt, correctionSystemPrompt)
	if err != nil {
		h.logger.Warn("batch correction failed, keeping original", logging.Error(err))
		return batch
	}

	correctedBatch := ParseSRT(answer)
	if len(correctedBatch) != len(batch) {
		h.logger.Warn("batch structure mismatch, keeping original",
			logging.Int("expected", len(batch)),
			logging.Int("got", len(correctedBatch)))
		return batch
	}
	if !SameTimestamps(batch, correctedBatch) {
		h.logger.Warn("timestamps changed in model output, keeping original")
		return batch
	}
	// Restore the original indices in case the model renumbered.
	for i := range correctedBatch {
		correctedBatch[i].Index = batch[i].Index
	}
	return correctedBatch
}
