// Package testsupport provides shared helpers for package tests: temporary
// configurations, fixture files, and stub executables.
package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"parish/internal/config"
	"parish/internal/registry"
)

// NewConfig returns a validated configuration rooted in temporary
// directories. All required directories exist when it returns.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.EventsDir = filepath.Join(base, "events")
	cfg.Paths.AssetsDir = filepath.Join(base, "assets")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Archive.Dir = filepath.Join(base, "archive")
	cfg.Workflow.MirrorProgress = false

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	if err := os.MkdirAll(cfg.Paths.AssetsDir, 0o755); err != nil {
		t.Fatalf("create assets dir: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate test config: %v", err)
	}
	return &cfg
}

// WriteFile creates a file of the given size filled with repeating bytes,
// creating parent directories as needed.
func WriteFile(t *testing.T, path string, size int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create parent directory: %v", err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'x'}, size), 0o644); err != nil {
		t.Fatalf("write fixture file: %v", err)
	}
}

// StubBinary installs an executable shell script with the given name on a
// temporary PATH entry and returns its path.
func StubBinary(t *testing.T, name, script string) string {
	t.Helper()

	dir := stubDir(t)
	path := filepath.Join(dir, name)
	contents := "#!/bin/sh\n" + script + "\n"
	if err := os.WriteFile(path, []byte(contents), 0o755); err != nil {
		t.Fatalf("write stub binary %s: %v", name, err)
	}
	return path
}

func stubDir(t *testing.T) string {
	t.Helper()

	current := os.Getenv("PATH")
	dir := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create stub bin dir: %v", err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+current)
	return dir
}

// ModuleOutputs writes placeholder artifacts for the module's declared
// logical outputs under outputDir and returns the output-file map a stub
// handler should report, so downstream modules can resolve their inputs.
// Modules that declare no outputs return a nil map.
func ModuleOutputs(module, outputDir string) (map[string]string, error) {
	var files map[string]string
	switch module {
	case registry.ModuleSubtitles:
		files = map[string]string{"srt": filepath.Join(outputDir, "service.srt")}
	case registry.ModuleSubtitleCorrection:
		files = map[string]string{"corrected_srt": filepath.Join(outputDir, "service_corrected.srt")}
	case registry.ModuleContentSummary:
		files = map[string]string{
			"summary":      filepath.Join(outputDir, "service_summary.txt"),
			"image_prompt": filepath.Join(outputDir, "service_image_prompt.txt"),
		}
	case registry.ModuleThumbnailAI:
		files = map[string]string{"background": filepath.Join(outputDir, "background.png")}
	case registry.ModuleThumbnailCompose:
		files = map[string]string{"thumbnail": filepath.Join(outputDir, "thumbnail.png")}
	default:
		return nil, nil
	}
	for _, path := range files {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
			return nil, err
		}
	}
	return files, nil
}
