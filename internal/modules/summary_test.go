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

func TestContentSummaryWritesSummaryAndImagePrompt(t *testing.T) {
	server := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]string{{"name": "qwen2.5:latest"}},
			})
		case "/api/generate":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			prompt, _ := req["prompt"].(string)
			if strings.Contains(prompt, "Image prompt:") {
				_ = json.NewEncoder(w).Encode(map[string]string{
					"response": "a quiet chapel at dawn, soft golden light",
				})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"response": "The sermon focused on gratitude and community.",
			})
		default:
			http.NotFound(w, r)
		}
	})

	cfg := testsupport.NewConfig(t)
	cfg.AI.BaseURL = server.URL
	ollama := modules.NewOllamaClient(cfg, logging.NewNop())

	dir := t.TempDir()
	srtPath := filepath.Join(dir, "service_corrected.srt")
	if err := os.WriteFile(srtPath, []byte(correctionInputSRT), 0o644); err != nil {
		t.Fatal(err)
	}

	handler := modules.NewContentSummary(cfg, ollama, logging.NewNop())
	result, err := handler.Execute(context.Background(), modules.Request{
		EventID:   "evt",
		Inputs:    map[string]string{"srt": srtPath},
		OutputDir: dir,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	summaryPath := result.OutputFiles["summary"]
	if filepath.Base(summaryPath) != "service_summary.txt" {
		t.Fatalf("unexpected summary name %q", summaryPath)
	}
	data, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "gratitude") {
		t.Fatalf("summary text missing: %q", string(data))
	}

	promptPath := result.OutputFiles["image_prompt"]
	if filepath.Base(promptPath) != "service_image_prompt.txt" {
		t.Fatalf("unexpected prompt name %q", promptPath)
	}
	promptData, err := os.ReadFile(promptPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(promptData), "chapel") {
		t.Fatalf("image prompt missing: %q", string(promptData))
	}
}

func TestContentSummaryRequiresTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	handler := modules.NewContentSummary(cfg, modules.NewOllamaClient(cfg, logging.NewNop()), logging.NewNop())

	if _, err := handler.Execute(context.Background(), modules.Request{EventID: "evt"}); err == nil {
		t.Fatal("expected error without transcript input")
	}
}
