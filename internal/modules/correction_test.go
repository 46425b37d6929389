package modules_test

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"parish/internal/logging"
	"parish/internal/modules"
	"parish/internal/testsupport"
)

const correctionInputSRT = `1
00:00:00,000 --> 00:00:02,300
good morning evryone

2
00:00:02,300 --> 00:00:05,900
welcom to the service
`

func TestSubtitleCorrectionWritesCorrectedFile(t *testing.T) {
	corrected := strings.ReplaceAll(correctionInputSRT, "evryone", "everyone")
	corrected = strings.ReplaceAll(corrected, "welcom", "welcome")

	server := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]string{{"name": "qwen2.5:latest"}},
			})
		case "/api/generate":
			_ = json.NewEncoder(w).Encode(map[string]string{"response": corrected})
		default:
			http.NotFound(w, r)
		}
	})

	cfg := testsupport.NewConfig(t)
	cfg.AI.BaseURL = server.URL
	ollama := modules.NewOllamaClient(cfg, logging.NewNop())

	dir := t.TempDir()
	srtPath := filepath.Join(dir, "service.srt")
	if err := os.WriteFile(srtPath, []byte(correctionInputSRT), 0o644); err != nil {
		t.Fatal(err)
	}

	handler := modules.NewSubtitleCorrection(cfg, ollama, logging.NewNop())
	result, err := handler.Execute(context.Background(), modules.Request{
		EventID:   "evt",
		Inputs:    map[string]string{"srt": srtPath},
		OutputDir: dir,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	outPath := result.OutputFiles["corrected_srt"]
	if filepath.Base(outPath) != "service_corrected.srt" {
		t.Fatalf("unexpected output name %q", outPath)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "everyone") || strings.Contains(string(data), "evryone") {
		t.Fatalf("correction not applied: %q", string(data))
	}
}

func TestSubtitleCorrectionKeepsOriginalOnStructureMismatch(t *testing.T) {
	server := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]string{{"name": "qwen2.5:latest"}},
			})
		case "/api/generate":
			// One block instead of two.
			_ = json.NewEncoder(w).Encode(map[string]string{
				"response": "1\n00:00:00,000 --> 00:00:02,300\ncollapsed\n",
			})
		default:
			http.NotFound(w, r)
		}
	})

	cfg := testsupport.NewConfig(t)
	cfg.AI.BaseURL = server.URL
	ollama := modules.NewOllamaClient(cfg, logging.NewNop())

	dir := t.TempDir()
	srtPath := filepath.Join(dir, "service.srt")
	if err := os.WriteFile(srtPath, []byte(correctionInputSRT), 0o644); err != nil {
		t.Fatal(err)
	}

	handler := modules.NewSubtitleCorrection(cfg, ollama, logging.NewNop())
	result, err := handler.Execute(context.Background(), modules.Request{
		EventID:   "evt",
		Inputs:    map[string]string{"srt": srtPath},
		OutputDir: dir,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data, err := os.ReadFile(result.OutputFiles["corrected_srt"])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "evryone") {
		t.Fatalf("expected original text preserved, got %q", string(data))
	}
}
