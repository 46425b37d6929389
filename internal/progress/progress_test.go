package progress_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"parish/internal/progress"
	"parish/internal/testsupport"
)

func TestBeginResetsRecord(t *testing.T) {
	tracker := progress.NewTracker(testsupport.NewConfig(t), nil)

	tracker.Begin("evt", 3)
	tracker.CompleteModule("evt", "subtitles")
	rec := tracker.Begin("evt", 2)

	if rec.Status != progress.StatusRunning {
		t.Fatalf("expected running, got %s", rec.Status)
	}
	if len(rec.CompletedModules) != 0 || rec.ProgressPercent != 0 {
		t.Fatalf("expected fresh record, got %+v", rec)
	}
	if rec.TotalModules != 2 {
		t.Fatalf("expected total 2, got %d", rec.TotalModules)
	}
}

func TestPercentFloors(t *testing.T) {
	tracker := progress.NewTracker(testsupport.NewConfig(t), nil)

	tracker.Begin("evt", 3)
	rec := tracker.CompleteModule("evt", "subtitles")
	if rec.ProgressPercent != 33 {
		t.Fatalf("expected 33, got %d", rec.ProgressPercent)
	}
	rec = tracker.CompleteModule("evt", "content_summary")
	if rec.ProgressPercent != 66 {
		t.Fatalf("expected 66, got %d", rec.ProgressPercent)
	}
	rec = tracker.CompleteModule("evt", "archive")
	if rec.ProgressPercent != 100 {
		t.Fatalf("expected 100, got %d", rec.ProgressPercent)
	}
}

func TestCompleteModuleDeduplicates(t *testing.T) {
	tracker := progress.NewTracker(testsupport.NewConfig(t), nil)

	tracker.Begin("evt", 2)
	tracker.CompleteModule("evt", "subtitles")
	rec := tracker.CompleteModule("evt", "subtitles")
	if len(rec.CompletedModules) != 1 || rec.ProgressPercent != 50 {
		t.Fatalf("expected single completion at 50%%, got %+v", rec)
	}
}

func TestFinishCompletedForcesFullPercent(t *testing.T) {
	tracker := progress.NewTracker(testsupport.NewConfig(t), nil)

	tracker.Begin("evt", 0)
	rec := tracker.Finish("evt", progress.StatusCompleted, "")
	if rec.ProgressPercent != 100 {
		t.Fatalf("expected 100 on empty completed run, got %d", rec.ProgressPercent)
	}
	if rec.Running() {
		t.Fatal("expected terminal record")
	}
}

func TestFinishFailedKeepsPercentAndError(t *testing.T) {
	tracker := progress.NewTracker(testsupport.NewConfig(t), nil)

	tracker.Begin("evt", 2)
	tracker.CompleteModule("evt", "subtitles")
	rec := tracker.Finish("evt", progress.StatusFailed, "whisper exited 1")
	if rec.ProgressPercent != 50 {
		t.Fatalf("expected percent preserved, got %d", rec.ProgressPercent)
	}
	if rec.Error != "whisper exited 1" {
		t.Fatalf("expected error message, got %q", rec.Error)
	}
}

func TestGetUnknownEvent(t *testing.T) {
	tracker := progress.NewTracker(testsupport.NewConfig(t), nil)
	if _, ok := tracker.Get("never-ran"); ok {
		t.Fatal("expected no record for untracked event")
	}
}

func TestMirrorWritesProgressFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.MirrorProgress = true
	tracker := progress.NewTracker(cfg, nil)

	logsDir := filepath.Join(cfg.Paths.EventsDir, "evt", "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		t.Fatal(err)
	}

	tracker.Begin("evt", 1)
	tracker.CompleteModule("evt", "subtitles")

	data, err := os.ReadFile(filepath.Join(logsDir, "progress.json"))
	if err != nil {
		t.Fatalf("expected mirrored progress file: %v", err)
	}
	var rec progress.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("decode mirrored record: %v", err)
	}
	if rec.ProgressPercent != 100 {
		t.Fatalf("unexpected mirrored record: %+v", rec)
	}
}
