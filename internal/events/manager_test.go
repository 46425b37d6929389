package events_test

import (
	"os"
	"path/filepath"
	"testing"

	"parish/internal/events"
	"parish/internal/testsupport"
)

func TestCreateBuildsLayout(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	mgr := events.NewManager(cfg)

	event, err := mgr.Create(events.CreateRequest{
		Title:   "Sunday Service",
		Speaker: "Pat Example",
		Date:    "2026-08-23",
		Time:    "0900",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if event.ID != "2026-08-23_0900_sunday-service" {
		t.Fatalf("unexpected event id %q", event.ID)
	}
	for _, dir := range []string{mgr.InputDir(event.ID), mgr.OutputDir(event.ID), mgr.LogsDir(event.ID)} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s", dir)
		}
	}
	if !event.Modules["subtitles"] {
		t.Fatal("expected default modules enabled")
	}
	if event.Modules["publish_youtube"] {
		t.Fatal("expected publish modules disabled by default")
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	mgr := events.NewManager(cfg)

	req := events.CreateRequest{Title: "Evening Prayer", Date: "2026-08-23", Time: "1900"}
	if _, err := mgr.Create(req); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := mgr.Create(req); err == nil {
		t.Fatal("expected duplicate event error")
	}
}

func TestLoadMissingEvent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	mgr := events.NewManager(cfg)

	if _, err := mgr.Load("2020-01-01_0000_nope"); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestAttachVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	mgr := events.NewManager(cfg)

	event, err := mgr.Create(events.CreateRequest{Title: "Attach Test"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	video := filepath.Join(t.TempDir(), "recording.mp4")
	testsupport.WriteFile(t, video, 64)

	updated, err := mgr.AttachVideo(event.ID, video)
	if err != nil {
		t.Fatalf("AttachVideo failed: %v", err)
	}
	if len(updated.Inputs.VideoFiles) != 1 {
		t.Fatalf("expected one video, got %d", len(updated.Inputs.VideoFiles))
	}

	// Attaching the same file twice must not duplicate it.
	again, err := mgr.AttachVideo(event.ID, video)
	if err != nil {
		t.Fatalf("AttachVideo second call failed: %v", err)
	}
	if len(again.Inputs.VideoFiles) != 1 {
		t.Fatalf("expected deduplicated video list, got %d", len(again.Inputs.VideoFiles))
	}

	if path, ok := again.InputPath("video"); !ok || path != video {
		t.Fatalf("InputPath returned %q/%v", path, ok)
	}
}

func TestAttachVideoRejectsMissingFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	mgr := events.NewManager(cfg)

	event, err := mgr.Create(events.CreateRequest{Title: "Missing Video"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := mgr.AttachVideo(event.ID, filepath.Join(t.TempDir(), "absent.mp4")); err == nil {
		t.Fatal("expected error for missing video file")
	}
}

func TestListReturnsSortedIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	mgr := events.NewManager(cfg)

	for _, req := range []events.CreateRequest{
		{Title: "B Event", Date: "2026-08-24", Time: "0900"},
		{Title: "A Event", Date: "2026-08-23", Time: "0900"},
	} {
		if _, err := mgr.Create(req); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	ids, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected two events, got %d", len(ids))
	}
	if ids[0] != "2026-08-23_0900_a-event" || ids[1] != "2026-08-24_0900_b-event" {
		t.Fatalf("unexpected ordering: %v", ids)
	}
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Sunday Service", "sunday-service"},
		{"Grâce & Vérité", "grace-verite"},
		{"  spaced   out  ", "spaced-out"},
		{"!!!", "event"},
	}
	for _, tc := range cases {
		if got := events.Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
