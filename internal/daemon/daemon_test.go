package daemon_test

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"parish/internal/api"
	"parish/internal/config"
	"parish/internal/daemon"
	"parish/internal/events"
	"parish/internal/modules"
	"parish/internal/progress"
	"parish/internal/registry"
	"parish/internal/runstate"
	"parish/internal/testsupport"
	"parish/internal/workflow"
)

type stubHandler struct {
	name    string
	mu      sync.Mutex
	calls   int
	execute func(context.Context, modules.Request) (modules.Result, error)
}

func (h *stubHandler) Name() string { return h.name }

func (h *stubHandler) Execute(ctx context.Context, req modules.Request) (modules.Result, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if h.execute != nil {
		res, err := h.execute(ctx, req)
		if err != nil || res.OutputFiles != nil {
			return res, err
		}
	}
	files, err := testsupport.ModuleOutputs(h.name, req.OutputDir)
	if err != nil {
		return modules.Result{}, err
	}
	return modules.Result{OutputFiles: files}, nil
}

func (h *stubHandler) HealthCheck(context.Context) modules.Health {
	return modules.Healthy(h.name)
}

func (h *stubHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type daemonFixture struct {
	cfg      *config.Config
	daemon   *daemon.Daemon
	client   *api.Client
	events   *events.Manager
	handlers map[string]*stubHandler
}

func newDaemonFixture(t *testing.T, token string) *daemonFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Paths.APIToken = token

	store, err := runstate.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	manager := events.NewManager(cfg)
	tracker := progress.NewTracker(cfg, nil)

	stubs := make(map[string]*stubHandler)
	handlers := make(map[string]modules.Handler)
	for _, entry := range registry.All() {
		stub := &stubHandler{name: entry.Name}
		stubs[entry.Name] = stub
		handlers[entry.Name] = stub
	}

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

	return &daemonFixture{
		cfg:      cfg,
		daemon:   d,
		client:   api.NewClient(d.Addr(), token),
		events:   manager,
		handlers: stubs,
	}
}

func (f *daemonFixture) createEventWithVideo(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	view, err := f.client.CreateEvent(ctx, api.CreateEventRequest{Title: "Sunday Service", Date: "2026-03-01", Time: "1030"})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	video := filepath.Join(t.TempDir(), "service.mp4")
	testsupport.WriteFile(t, video, 2048)
	if _, err := f.client.AttachVideo(ctx, view.ID, video); err != nil {
		t.Fatalf("attach video: %v", err)
	}
	return view.ID
}

func waitForStatus(t *testing.T, client *api.Client, eventID, want string) *api.ProgressView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		view, err := client.Progress(context.Background(), eventID)
		if err != nil {
			t.Fatalf("progress: %v", err)
		}
		if view.Status == want {
			return view
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run did not reach status %q", want)
	return nil
}

func TestDaemonAPIEventLifecycle(t *testing.T) {
	f := newDaemonFixture(t, "")
	ctx := context.Background()
	eventID := f.createEventWithVideo(t)

	accepted, err := f.client.Run(ctx, eventID, false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if accepted.Status != "started" {
		t.Fatalf("unexpected ack %+v", accepted)
	}

	final := waitForStatus(t, f.client, eventID, progress.StatusCompleted)
	if final.ProgressPercent != 100 {
		t.Fatalf("unexpected percent %d", final.ProgressPercent)
	}

	state, err := f.client.State(ctx, eventID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.OverallStatus != string(runstate.OverallCompleted) {
		t.Fatalf("unexpected overall status %q", state.OverallStatus)
	}
	rec, ok := state.Modules[registry.ModuleSubtitles]
	if !ok || rec.Status != string(runstate.StatusSuccess) {
		t.Fatalf("unexpected subtitles record %+v", rec)
	}
	if f.handlers[registry.ModulePublishYouTube].callCount() != 0 {
		t.Fatal("disabled module should not run")
	}
}

func TestDaemonAPIRunConflict(t *testing.T) {
	f := newDaemonFixture(t, "")
	ctx := context.Background()
	eventID := f.createEventWithVideo(t)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	f.handlers[registry.ModuleSubtitles].execute = func(context.Context, modules.Request) (modules.Result, error) {
		once.Do(func() { close(started) })
		<-release
		return modules.Result{}, nil
	}

	if _, err := f.client.Run(ctx, eventID, false); err != nil {
		t.Fatalf("first run: %v", err)
	}
	<-started

	_, err := f.client.Run(ctx, eventID, false)
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected conflict, got %v", err)
	}
	close(release)
	waitForStatus(t, f.client, eventID, progress.StatusCompleted)
}

func TestDaemonAPIRunUnknownEvent(t *testing.T) {
	f := newDaemonFixture(t, "")

	_, err := f.client.Run(context.Background(), "missing", false)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDaemonAPIRunModule(t *testing.T) {
	f := newDaemonFixture(t, "")
	ctx := context.Background()
	eventID := f.createEventWithVideo(t)

	if _, err := f.client.RunModule(ctx, eventID, registry.ModuleSubtitles, false); err != nil {
		t.Fatalf("run module: %v", err)
	}
	waitForStatus(t, f.client, eventID, progress.StatusCompleted)
	if got := f.handlers[registry.ModuleSubtitles].callCount(); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}

	_, err := f.client.RunModule(ctx, eventID, "transcode", false)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected not found for unknown module, got %v", err)
	}
}

func TestDaemonAPIBearerToken(t *testing.T) {
	f := newDaemonFixture(t, "secret")
	ctx := context.Background()

	if _, err := f.client.Status(ctx); err != nil {
		t.Fatalf("authorized status: %v", err)
	}

	anonymous := api.NewClient(f.daemon.Addr(), "")
	if _, err := anonymous.Status(ctx); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	wrong := api.NewClient(f.daemon.Addr(), "other")
	if _, err := wrong.ListEvents(ctx); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestDaemonStatusReportsHealth(t *testing.T) {
	f := newDaemonFixture(t, "")

	status, err := f.client.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Running {
		t.Fatal("daemon should report running")
	}
	if len(status.ModuleHealth) != len(registry.All()) {
		t.Fatalf("expected %d health probes, got %d", len(registry.All()), len(status.ModuleHealth))
	}
	if status.StateDBPath == "" || status.LockFilePath == "" {
		t.Fatalf("missing paths in status %+v", status)
	}
	if !strings.Contains(status.LockFilePath, "parishd.lock") {
		t.Fatalf("unexpected lock path %q", status.LockFilePath)
	}
}
