package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"parish/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, path, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if path == "" {
		t.Fatal("expected resolved path")
	}
	if cfg.AI.Model != "qwen2.5:latest" {
		t.Fatalf("unexpected default ai model: %q", cfg.AI.Model)
	}
	if cfg.Thumbnail.Backend != "comfyui" {
		t.Fatalf("unexpected default thumbnail backend: %q", cfg.Thumbnail.Backend)
	}
	if !filepath.IsAbs(cfg.Paths.EventsDir) {
		t.Fatalf("expected expanded events dir, got %q", cfg.Paths.EventsDir)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		"[paths]",
		`events_dir = "` + filepath.Join(dir, "events") + `"`,
		`log_dir = "` + filepath.Join(dir, "logs") + `"`,
		"[ai]",
		`model = "llama3:8b"`,
		`base_url = "http://10.0.0.5:11434/"`,
		"[thumbnail]",
		`backend = "Ollama"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.AI.Model != "llama3:8b" {
		t.Fatalf("override not applied: %q", cfg.AI.Model)
	}
	if cfg.AI.BaseURL != "http://10.0.0.5:11434" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.AI.BaseURL)
	}
	if cfg.Thumbnail.Backend != "ollama" {
		t.Fatalf("expected lowercased backend, got %q", cfg.Thumbnail.Backend)
	}
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[thumbnail]\nbackend = \"dall-e\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for unknown backend")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[paths]") {
		t.Fatal("sample config missing [paths] section")
	}

	// The sample must itself pass Load.
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.EventsDir = filepath.Join(dir, "events")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Archive.Dir = filepath.Join(dir, "archive")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, d := range []string{cfg.Paths.EventsDir, cfg.Paths.LogDir, cfg.Archive.Dir} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s", d)
		}
	}
}
