package workflow_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"parish/internal/config"
	"parish/internal/events"
	"parish/internal/logging"
	"parish/internal/modules"
	"parish/internal/progress"
	"parish/internal/registry"
	"parish/internal/runstate"
	"parish/internal/services"
	"parish/internal/testsupport"
	"parish/internal/workflow"
)

type fakeHandler struct {
	name    string
	mu      sync.Mutex
	calls   int
	execute func(ctx context.Context, req modules.Request) (modules.Result, error)
}

func (f *fakeHandler) Name() string { return f.name }

func (f *fakeHandler) Execute(ctx context.Context, req modules.Request) (modules.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.execute != nil {
		return f.execute(ctx, req)
	}
	return modules.Result{}, nil
}

func (f *fakeHandler) HealthCheck(ctx context.Context) modules.Health {
	return modules.Healthy(f.name)
}

func (f *fakeHandler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	cfg      *config.Config
	manager  *events.Manager
	store    *runstate.Store
	tracker  *progress.Tracker
	handlers map[string]*fakeHandler
	orch     *workflow.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	manager := events.NewManager(cfg)
	store, err := runstate.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	tracker := progress.NewTracker(cfg, nil)

	handlers := make(map[string]*fakeHandler)
	table := make(map[string]modules.Handler)
	for _, entry := range registry.All() {
		fake := &fakeHandler{name: entry.Name}
		handlers[entry.Name] = fake
		table[entry.Name] = fake
	}

	return &fixture{
		cfg:      cfg,
		manager:  manager,
		store:    store,
		tracker:  tracker,
		handlers: handlers,
		orch:     workflow.New(cfg, manager, store, tracker, table, logging.NewNop()),
	}
}

// newEvent creates an event with only the given modules enabled and a video
// attached.
func (f *fixture) newEvent(t *testing.T, enabled ...string) *events.Event {
	t.Helper()
	toggles := make(map[string]bool)
	for _, name := range enabled {
		toggles[name] = true
	}
	event, err := f.manager.Create(events.CreateRequest{
		Title:   "Test Event",
		Date:    "2026-08-23",
		Time:    "0900",
		Modules: toggles,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	video := filepath.Join(t.TempDir(), "service.mp4")
	testsupport.WriteFile(t, video, 64)
	if _, err := f.manager.AttachVideo(event.ID, video); err != nil {
		t.Fatalf("attach video: %v", err)
	}
	event, err = f.manager.Load(event.ID)
	if err != nil {
		t.Fatalf("reload event: %v", err)
	}
	return event
}

func TestRunWithNoEnabledModulesCompletes(t *testing.T) {
	f := newFixture(t)
	event, err := f.manager.Create(events.CreateRequest{
		Title: "Empty", Date: "2026-08-23", Time: "0900",
		Modules: map[string]bool{},
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	if err := f.orch.Run(context.Background(), event.ID, false); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rec, ok := f.tracker.Get(event.ID)
	if !ok {
		t.Fatal("expected progress record")
	}
	if rec.Status != progress.StatusCompleted || rec.TotalModules != 0 || rec.ProgressPercent != 100 {
		t.Fatalf("unexpected terminal record: %+v", rec)
	}

	state, err := f.store.Load(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state.OverallStatus != runstate.OverallCompleted {
		t.Fatalf("unexpected overall status %q", state.OverallStatus)
	}
	if len(state.Modules) != 0 {
		t.Fatalf("no module records expected, got %d", len(state.Modules))
	}
}

func TestRunExecutesModulesInRegistryOrder(t *testing.T) {
	f := newFixture(t)
	event := f.newEvent(t, registry.ModuleArchive, registry.ModuleSubtitles, registry.ModulePublishYouTube)

	var order []string
	var mu sync.Mutex
	for _, name := range []string{registry.ModuleSubtitles, registry.ModulePublishYouTube, registry.ModuleArchive} {
		name := name
		f.handlers[name].execute = func(ctx context.Context, req modules.Request) (modules.Result, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return modules.Result{}, nil
		}
	}

	if err := f.orch.Run(context.Background(), event.ID, false); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{registry.ModuleSubtitles, registry.ModulePublishYouTube, registry.ModuleArchive}
	if len(order) != len(want) {
		t.Fatalf("expected %d executions, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order %v", order)
		}
	}

	state, err := f.store.Load(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state.OverallStatus != runstate.OverallCompleted {
		t.Fatalf("expected completed, got %s", state.OverallStatus)
	}
}

func TestRerunSkipsSucceededModules(t *testing.T) {
	f := newFixture(t)
	event := f.newEvent(t, registry.ModuleSubtitles, registry.ModuleArchive)

	if err := f.orch.Run(context.Background(), event.ID, false); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	before, err := f.store.Load(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}

	if err := f.orch.Run(context.Background(), event.ID, false); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if got := f.handlers[registry.ModuleSubtitles].callCount(); got != 1 {
		t.Fatalf("expected skip on rerun, handler called %d times", got)
	}

	// Skipped modules still count toward progress.
	rec, _ := f.tracker.Get(event.ID)
	if rec.Status != progress.StatusCompleted || len(rec.CompletedModules) != 2 || rec.ProgressPercent != 100 {
		t.Fatalf("unexpected progress after skip run: %+v", rec)
	}

	// The durable records are untouched by a skip.
	after, err := f.store.Load(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("reload state: %v", err)
	}
	if !after.Record(registry.ModuleSubtitles).FinishedAt.Equal(*before.Record(registry.ModuleSubtitles).FinishedAt) {
		t.Fatal("skip modified the module record")
	}
}

func TestForceReexecutesSucceededModules(t *testing.T) {
	f := newFixture(t)
	event := f.newEvent(t, registry.ModuleSubtitles)

	if err := f.orch.Run(context.Background(), event.ID, false); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if err := f.orch.Run(context.Background(), event.ID, true); err != nil {
		t.Fatalf("forced run failed: %v", err)
	}

	if got := f.handlers[registry.ModuleSubtitles].callCount(); got != 2 {
		t.Fatalf("expected forced re-execution, handler called %d times", got)
	}
	state, err := f.store.Load(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if !state.Record(registry.ModuleSubtitles).LastRunForced {
		t.Fatal("expected last_run_forced recorded")
	}
}

func TestFailureHaltsPipeline(t *testing.T) {
	f := newFixture(t)
	event := f.newEvent(t, registry.ModuleSubtitles, registry.ModuleArchive)

	f.handlers[registry.ModuleSubtitles].execute = func(ctx context.Context, req modules.Request) (modules.Result, error) {
		return modules.Result{}, services.Wrap(services.ErrExternalTool, registry.ModuleSubtitles, "execute", "whisper exited 1", nil)
	}

	err := f.orch.Run(context.Background(), event.ID, false)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if got := f.handlers[registry.ModuleArchive].callCount(); got != 0 {
		t.Fatalf("expected halt before archive, called %d times", got)
	}

	state, loadErr := f.store.Load(context.Background(), event.ID)
	if loadErr != nil {
		t.Fatalf("load state: %v", loadErr)
	}
	if state.OverallStatus != runstate.OverallFailed {
		t.Fatalf("expected failed overall, got %s", state.OverallStatus)
	}
	rec, _ := f.tracker.Get(event.ID)
	if rec.Status != progress.StatusFailed || rec.Error == "" {
		t.Fatalf("unexpected progress record: %+v", rec)
	}
}

func TestPanicIsContained(t *testing.T) {
	f := newFixture(t)
	event := f.newEvent(t, registry.ModuleSubtitles)

	f.handlers[registry.ModuleSubtitles].execute = func(ctx context.Context, req modules.Request) (modules.Result, error) {
		panic("nil map write")
	}

	err := f.orch.Run(context.Background(), event.ID, false)
	if err == nil {
		t.Fatal("expected error from panicking handler")
	}

	state, loadErr := f.store.Load(context.Background(), event.ID)
	if loadErr != nil {
		t.Fatalf("load state: %v", loadErr)
	}
	rec := state.Record(registry.ModuleSubtitles)
	if rec.Status != runstate.StatusFailed {
		t.Fatalf("expected failed record, got %s", rec.Status)
	}
	if rec.Error == "" {
		t.Fatal("expected error message on record")
	}
}

func TestConcurrentRunFailsFast(t *testing.T) {
	f := newFixture(t)
	event := f.newEvent(t, registry.ModuleSubtitles)

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	f.handlers[registry.ModuleSubtitles].execute = func(ctx context.Context, req modules.Request) (modules.Result, error) {
		once.Do(func() { close(started) })
		<-release
		return modules.Result{}, nil
	}

	if err := f.orch.StartRun(event.ID, false); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	<-started

	err := f.orch.Run(context.Background(), event.ID, false)
	if !errors.Is(err, services.ErrAlreadyRunning) {
		t.Fatalf("expected already-running error, got %v", err)
	}
	if !f.orch.Running(event.ID) {
		t.Fatal("expected Running to report the active run")
	}

	close(release)
	deadline := time.After(5 * time.Second)
	for f.orch.Running(event.ID) {
		select {
		case <-deadline:
			t.Fatal("run did not finish")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMissingVideoFailsBeforeModules(t *testing.T) {
	f := newFixture(t)
	event, err := f.manager.Create(events.CreateRequest{
		Title: "No Video", Date: "2026-08-23", Time: "0900",
		Modules: map[string]bool{registry.ModuleSubtitles: true},
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	runErr := f.orch.Run(context.Background(), event.ID, false)
	if !errors.Is(runErr, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", runErr)
	}
	if got := f.handlers[registry.ModuleSubtitles].callCount(); got != 0 {
		t.Fatalf("expected no module execution, got %d calls", got)
	}

	state, loadErr := f.store.Load(context.Background(), event.ID)
	if loadErr != nil {
		t.Fatalf("load state: %v", loadErr)
	}
	if state.OverallStatus != runstate.OverallFailed {
		t.Fatalf("expected failed overall, got %s", state.OverallStatus)
	}
	if len(state.Modules) != 0 {
		t.Fatalf("expected untouched module records, got %v", state.Modules)
	}
}

func TestRerunAfterDisablingFailedModuleCompletes(t *testing.T) {
	f := newFixture(t)
	event := f.newEvent(t, registry.ModuleSubtitles, registry.ModuleArchive)

	f.handlers[registry.ModuleArchive].execute = func(ctx context.Context, req modules.Request) (modules.Result, error) {
		return modules.Result{}, services.Wrap(services.ErrExternalTool, registry.ModuleArchive, "execute", "disk full", nil)
	}
	if err := f.orch.Run(context.Background(), event.ID, false); err == nil {
		t.Fatal("expected first run to fail")
	}

	if _, err := f.manager.SetModule(event.ID, registry.ModuleArchive, false); err != nil {
		t.Fatalf("disable archive: %v", err)
	}

	// Subtitles already succeeded, so the rerun skips every enabled module.
	if err := f.orch.Run(context.Background(), event.ID, false); err != nil {
		t.Fatalf("rerun failed: %v", err)
	}

	state, err := f.store.Load(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state.OverallStatus != runstate.OverallCompleted {
		t.Fatalf("expected completed once the failed module is disabled, got %s", state.OverallStatus)
	}
	if state.Record(registry.ModuleArchive).Status != runstate.StatusFailed {
		t.Fatal("disabling a module must not erase its record")
	}
}

func TestRunModuleLeavesOverallPartial(t *testing.T) {
	f := newFixture(t)
	event := f.newEvent(t, registry.ModuleSubtitles, registry.ModuleArchive)

	if err := f.orch.RunModule(context.Background(), event.ID, registry.ModuleSubtitles, false); err != nil {
		t.Fatalf("RunModule failed: %v", err)
	}

	state, err := f.store.Load(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if state.OverallStatus != runstate.OverallPartial {
		t.Fatalf("expected partial while archive is still pending, got %s", state.OverallStatus)
	}
}

func TestRunModuleMissingDependencyFails(t *testing.T) {
	f := newFixture(t)
	event := f.newEvent(t, registry.ModuleContentSummary)

	err := f.orch.RunModule(context.Background(), event.ID, registry.ModuleContentSummary, false)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	state, loadErr := f.store.Load(context.Background(), event.ID)
	if loadErr != nil {
		t.Fatalf("load state: %v", loadErr)
	}
	if state.Record(registry.ModuleContentSummary).Status != runstate.StatusFailed {
		t.Fatal("expected failed module record")
	}
}

func TestRunModuleResolvesRecordedOutputs(t *testing.T) {
	f := newFixture(t)
	event := f.newEvent(t, registry.ModuleSubtitles, registry.ModuleContentSummary)

	srtPath := filepath.Join(f.manager.OutputDir(event.ID), "service.srt")
	f.handlers[registry.ModuleSubtitles].execute = func(ctx context.Context, req modules.Request) (modules.Result, error) {
		testsupport.WriteFile(t, srtPath, 32)
		return modules.Result{OutputFiles: map[string]string{"srt": srtPath}}, nil
	}

	var resolved string
	f.handlers[registry.ModuleContentSummary].execute = func(ctx context.Context, req modules.Request) (modules.Result, error) {
		resolved = req.Inputs["srt"]
		return modules.Result{}, nil
	}

	if err := f.orch.Run(context.Background(), event.ID, false); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if resolved != srtPath {
		t.Fatalf("expected srt resolved from recorded output, got %q", resolved)
	}
}

func TestRunUnknownEvent(t *testing.T) {
	f := newFixture(t)
	err := f.orch.Run(context.Background(), "2020-01-01_0000_missing", false)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRunUnknownModule(t *testing.T) {
	f := newFixture(t)
	event := f.newEvent(t, registry.ModuleSubtitles)
	err := f.orch.RunModule(context.Background(), event.ID, "nonexistent", false)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
