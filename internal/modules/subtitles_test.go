package modules_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"parish/internal/config"
	"parish/internal/events"
	"parish/internal/logging"
	"parish/internal/modules"
	"parish/internal/testsupport"
)

// stubWhisper installs a whisper-cli stand-in that records its arguments and
// writes empty subtitle files at the requested output prefix.
func stubWhisper(t *testing.T, cfg *config.Config) string {
	t.Helper()

	argsFile := filepath.Join(t.TempDir(), "whisper_args")
	script := fmt.Sprintf(`prefix=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-of" ]; then prefix="$arg"; fi
  prev="$arg"
done
echo "$@" > %q
: > "$prefix.srt"
: > "$prefix.vtt"
: > "$prefix.txt"`, argsFile)
	testsupport.StubBinary(t, cfg.WhisperBinary(), script)
	return argsFile
}

func transcribeRequest(t *testing.T, event *events.Event) modules.Request {
	t.Helper()

	dir := t.TempDir()
	video := filepath.Join(dir, "service.mp4")
	testsupport.WriteFile(t, video, 32)
	return modules.Request{
		EventID:   "2026-08-23_0900_service",
		Event:     event,
		Inputs:    map[string]string{"video": video},
		OutputDir: dir,
	}
}

func TestSubtitlesUsesEventLanguage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Whisper.Language = "auto"
	argsFile := stubWhisper(t, cfg)

	handler := modules.NewSubtitles(cfg, logging.NewNop())
	result, err := handler.Execute(context.Background(), transcribeRequest(t, &events.Event{Language: "es"}))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.OutputFiles["srt"] == "" {
		t.Fatalf("expected srt output, got %v", result.OutputFiles)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("stub never ran: %v", err)
	}
	if !strings.Contains(string(args), "-l es") {
		t.Fatalf("expected event language passed to whisper, got args %q", string(args))
	}
}

func TestSubtitlesFallsBackToConfigLanguage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Whisper.Language = "de"
	argsFile := stubWhisper(t, cfg)

	handler := modules.NewSubtitles(cfg, logging.NewNop())
	if _, err := handler.Execute(context.Background(), transcribeRequest(t, &events.Event{})); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("stub never ran: %v", err)
	}
	if !strings.Contains(string(args), "-l de") {
		t.Fatalf("expected configured language passed to whisper, got args %q", string(args))
	}
}
