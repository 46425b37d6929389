package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"parish/internal/daemon"
	"parish/internal/events"
	"parish/internal/modules"
	"parish/internal/progress"
	"parish/internal/registry"
	"parish/internal/runstate"
	"parish/internal/testsupport"
	"parish/internal/workflow"
)

type okHandler struct{ name string }

func (h okHandler) Name() string { return h.name }

func (h okHandler) Execute(_ context.Context, req modules.Request) (modules.Result, error) {
	files, err := testsupport.ModuleOutputs(h.name, req.OutputDir)
	if err != nil {
		return modules.Result{}, err
	}
	return modules.Result{OutputFiles: files}, nil
}

func (h okHandler) HealthCheck(context.Context) modules.Health {
	return modules.Healthy(h.name)
}

// startTestDaemon brings up an in-process daemon with stub handlers and
// returns its listen address.
func startTestDaemon(t *testing.T) string {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:0"

	store, err := runstate.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	handlers := make(map[string]modules.Handler)
	for _, entry := range registry.All() {
		handlers[entry.Name] = okHandler{name: entry.Name}
	}

	manager := events.NewManager(cfg)
	tracker := progress.NewTracker(cfg, nil)
	orch := workflow.New(cfg, manager, store, tracker, handlers, nil)
	d, err := daemon.New(cfg, store, manager, tracker, orch, nil)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = d.Close()
	})
	return d.Addr()
}

// writeTestConfig writes a minimal valid config file so the CLI does not
// touch the user's home directory.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "parish.toml")
	content := fmt.Sprintf(`[paths]
events_dir = %q
assets_dir = %q
log_dir = %q
`, filepath.Join(dir, "events"), filepath.Join(dir, "assets"), filepath.Join(dir, "logs"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestEventLifecycleViaCLI(t *testing.T) {
	addr := startTestDaemon(t)
	cfgPath := writeTestConfig(t)
	base := []string{"--config", cfgPath, "--addr", addr}

	out, err := runCommand(t, append(base, "event", "create",
		"--title", "Sunday Service", "--speaker", "Jordan Hale",
		"--date", "2026-03-01", "--time", "1030")...)
	if err != nil {
		t.Fatalf("event create: %v", err)
	}
	fields := strings.Fields(out)
	eventID := fields[len(fields)-1]
	if !strings.HasPrefix(eventID, "2026-03-01_1030_") {
		t.Fatalf("unexpected event id %q", eventID)
	}

	video := filepath.Join(t.TempDir(), "service.mp4")
	testsupport.WriteFile(t, video, 1024)
	if _, err := runCommand(t, append(base, "event", "attach", eventID, video)...); err != nil {
		t.Fatalf("event attach: %v", err)
	}

	out, err = runCommand(t, append(base, "event", "list")...)
	if err != nil {
		t.Fatalf("event list: %v", err)
	}
	if !strings.Contains(out, "Sunday Service") {
		t.Fatalf("list should include the event, got %q", out)
	}

	if _, err := runCommand(t, append(base, "run", eventID, "--wait")...); err != nil {
		t.Fatalf("run --wait: %v", err)
	}

	out, err = runCommand(t, append(base, "event", "show", eventID)...)
	if err != nil {
		t.Fatalf("event show: %v", err)
	}
	if !strings.Contains(out, "completed") {
		t.Fatalf("show should report completion, got %q", out)
	}
	if !strings.Contains(out, registry.ModuleSubtitles) {
		t.Fatalf("show should list modules, got %q", out)
	}
}

func TestRunUnknownEventViaCLI(t *testing.T) {
	addr := startTestDaemon(t)
	cfgPath := writeTestConfig(t)

	_, err := runCommand(t, "--config", cfgPath, "--addr", addr, "run", "missing")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestStatusViaCLI(t *testing.T) {
	addr := startTestDaemon(t)
	cfgPath := writeTestConfig(t)

	out, err := runCommand(t, "--config", cfgPath, "--addr", addr, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "running") {
		t.Fatalf("status should report a running daemon, got %q", out)
	}
	if !strings.Contains(out, "parishd.lock") {
		t.Fatalf("status should show the lock path, got %q", out)
	}
}
