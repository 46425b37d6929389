package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"parish/internal/config"
	"parish/internal/events"
	"parish/internal/logging"
	"parish/internal/modules"
	"parish/internal/progress"
	"parish/internal/registry"
	"parish/internal/runstate"
	"parish/internal/services"
)

// Orchestrator drives the module pipeline for an event: skip bookkeeping,
// state persistence, progress publication, and halt-on-failure ordering.
type Orchestrator struct {
	cfg      *config.Config
	events   *events.Manager
	store    *runstate.Store
	tracker  *progress.Tracker
	handlers map[string]modules.Handler
	logger   *slog.Logger
	locks    *runLocks
}

// New constructs an orchestrator over the provided collaborators.
func New(
	cfg *config.Config,
	eventManager *events.Manager,
	store *runstate.Store,
	tracker *progress.Tracker,
	handlers map[string]modules.Handler,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		events:   eventManager,
		store:    store,
		tracker:  tracker,
		handlers: handlers,
		logger:   logger.With(logging.String(logging.FieldComponent, "workflow")),
		locks:    newRunLocks(),
	}
}

// Running reports whether a run for the event is in flight.
func (o *Orchestrator) Running(eventID string) bool {
	return o.locks.held(eventID)
}

// Run executes the full pipeline for an event synchronously. A second run
// for the same event fails fast with services.ErrAlreadyRunning.
func (o *Orchestrator) Run(ctx context.Context, eventID string, force bool) error {
	if !o.locks.acquire(eventID) {
		return services.Wrap(services.ErrAlreadyRunning, "", "run", fmt.Sprintf("event %s already has a run in progress", eventID), nil)
	}
	defer o.locks.release(eventID)
	return o.runPipeline(ctx, eventID, force)
}

// StartRun launches a full pipeline run in the background. The lock is
// taken before returning so a concurrent caller observes the conflict
// immediately.
func (o *Orchestrator) StartRun(eventID string, force bool) error {
	if !o.locks.acquire(eventID) {
		return services.Wrap(services.ErrAlreadyRunning, "", "run", fmt.Sprintf("event %s already has a run in progress", eventID), nil)
	}
	if _, err := o.events.Load(eventID); err != nil {
		o.locks.release(eventID)
		return err
	}
	go func() {
		defer o.locks.release(eventID)
		if err := o.runPipeline(context.Background(), eventID, force); err != nil {
			o.logger.Error("pipeline run failed",
				logging.String(logging.FieldEventID, eventID),
				logging.Error(err))
		}
	}()
	return nil
}

// RunModule executes a single module for an event, bypassing the event's
// toggle map but honoring the skip rule.
func (o *Orchestrator) RunModule(ctx context.Context, eventID, moduleName string, force bool) error {
	entry, err := registry.Lookup(moduleName)
	if err != nil {
		return err
	}
	if !o.locks.acquire(eventID) {
		return services.Wrap(services.ErrAlreadyRunning, "", "run module", fmt.Sprintf("event %s already has a run in progress", eventID), nil)
	}
	defer o.locks.release(eventID)
	return o.runSingle(ctx, eventID, entry, force)
}

// StartModuleRun launches a single-module run in the background.
func (o *Orchestrator) StartModuleRun(eventID, moduleName string, force bool) error {
	entry, err := registry.Lookup(moduleName)
	if err != nil {
		return err
	}
	if !o.locks.acquire(eventID) {
		return services.Wrap(services.ErrAlreadyRunning, "", "run module", fmt.Sprintf("event %s already has a run in progress", eventID), nil)
	}
	if _, err := o.events.Load(eventID); err != nil {
		o.locks.release(eventID)
		return err
	}
	go func() {
		defer o.locks.release(eventID)
		if err := o.runSingle(context.Background(), eventID, entry, force); err != nil {
			o.logger.Error("module run failed",
				logging.String(logging.FieldEventID, eventID),
				logging.String(logging.FieldModule, entry.Name),
				logging.Error(err))
		}
	}()
	return nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, eventID string, force bool) error {
	ctx = services.WithEventID(ctx, eventID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := o.logger.With(logging.String(logging.FieldEventID, eventID))

	event, err := o.events.Load(eventID)
	if err != nil {
		return err
	}

	enabled := registry.Enabled(event.Modules)
	o.tracker.Begin(eventID, len(enabled))

	if len(enabled) == 0 {
		logger.Info("no modules enabled, nothing to run")
		if _, err := o.store.SetOverall(ctx, eventID, runstate.OverallCompleted); err != nil {
			o.tracker.Finish(eventID, progress.StatusFailed, err.Error())
			return err
		}
		o.tracker.Finish(eventID, progress.StatusCompleted, "")
		return nil
	}

	if err := o.checkEventInputs(enabled, event); err != nil {
		o.tracker.Finish(eventID, progress.StatusFailed, err.Error())
		if _, saveErr := o.store.SetOverall(ctx, eventID, runstate.OverallFailed); saveErr != nil {
			return saveErr
		}
		return err
	}

	logger.Info("starting pipeline run",
		logging.Int("modules", len(enabled)),
		logging.Bool("force", force))

	for _, entry := range enabled {
		done, err := o.executeModule(ctx, event, entry, force)
		if err != nil {
			o.tracker.Finish(eventID, progress.StatusFailed, err.Error())
			return err
		}
		if done {
			o.tracker.CompleteModule(eventID, entry.Name)
		}
	}

	if err := o.finalizeOverall(ctx, eventID, enabled); err != nil {
		o.tracker.Finish(eventID, progress.StatusFailed, err.Error())
		return err
	}
	o.tracker.Finish(eventID, progress.StatusCompleted, "")
	logger.Info("pipeline run completed")
	return nil
}

// finalizeOverall recomputes and persists the overall status against the
// modules in scope for this run. Per-record saves recompute from whatever
// records exist, which is wrong at the run boundary: records left behind by
// modules toggled off since must not count, and enabled modules that never
// produced a record must count as pending.
func (o *Orchestrator) finalizeOverall(ctx context.Context, eventID string, scope []registry.Entry) error {
	state, err := o.store.Load(ctx, eventID)
	if err != nil {
		return err
	}
	names := make([]string, len(scope))
	for i, entry := range scope {
		names[i] = entry.Name
	}
	overall := runstate.ComputeOverallForModules(names, state.Modules)
	_, err = o.store.SetOverall(ctx, eventID, overall)
	return err
}

func (o *Orchestrator) runSingle(ctx context.Context, eventID string, entry registry.Entry, force bool) error {
	ctx = services.WithEventID(ctx, eventID)
	ctx = services.WithRequestID(ctx, uuid.NewString())

	event, err := o.events.Load(eventID)
	if err != nil {
		return err
	}

	o.tracker.Begin(eventID, 1)
	done, err := o.executeModule(ctx, event, entry, force)
	if err != nil {
		o.tracker.Finish(eventID, progress.StatusFailed, err.Error())
		return err
	}
	if done {
		o.tracker.CompleteModule(eventID, entry.Name)
	}

	// The scope is the enabled set plus the requested module, so a lone
	// module run against a wider enabled set settles on partial rather
	// than completed.
	scope := registry.Enabled(event.Modules)
	inScope := false
	for _, enabled := range scope {
		if enabled.Name == entry.Name {
			inScope = true
			break
		}
	}
	if !inScope {
		scope = append(scope, entry)
	}
	if err := o.finalizeOverall(ctx, eventID, scope); err != nil {
		o.tracker.Finish(eventID, progress.StatusFailed, err.Error())
		return err
	}
	o.tracker.Finish(eventID, progress.StatusCompleted, "")
	return nil
}

// checkEventInputs fails a run before any module executes when an enabled
// module depends on an event input that was never attached.
func (o *Orchestrator) checkEventInputs(enabled []registry.Entry, event *events.Event) error {
	for _, entry := range enabled {
		for _, spec := range entry.RequiredInputs {
			if !spec.EventInput || len(spec.Sources) > 0 {
				continue
			}
			if _, ok := event.InputPath(spec.Name); !ok {
				return services.Wrap(services.ErrValidation, entry.Name, "preflight",
					fmt.Sprintf("event input %q not attached", spec.Name), nil)
			}
		}
	}
	return nil
}

// executeModule runs one module with skip and force semantics. It returns
// true when the module counts toward progress (ran or skipped) and an error
// when the pipeline must halt.
func (o *Orchestrator) executeModule(ctx context.Context, event *events.Event, entry registry.Entry, force bool) (bool, error) {
	eventID := event.ID
	ctx = services.WithModule(ctx, entry.Name)
	logger := o.logger.With(
		logging.String(logging.FieldEventID, eventID),
		logging.String(logging.FieldModule, entry.Name),
	)

	state, err := o.store.Load(ctx, eventID)
	if err != nil {
		return false, err
	}
	if !force && state.Record(entry.Name).Status == runstate.StatusSuccess {
		logger.Info("module already succeeded, skipping")
		return true, nil
	}

	inputs, err := o.resolveInputs(entry, event, state, o.events.OutputDir(eventID))
	if err != nil {
		return false, o.failModule(ctx, eventID, entry.Name, force, err)
	}

	started := time.Now().UTC()
	if _, err := o.store.UpdateModule(ctx, eventID, entry.Name, func(rec *runstate.ModuleRecord) {
		rec.Status = runstate.StatusRunning
		rec.StartedAt = &started
		rec.FinishedAt = nil
		rec.Error = ""
		rec.LastRunForced = force
	}); err != nil {
		return false, err
	}

	o.tracker.StartModule(eventID, entry.Name, "starting")
	logger.Info("module started", logging.Bool("force", force))

	result, execErr := o.safeExecute(ctx, entry, modules.Request{
		EventID:   eventID,
		Event:     event,
		Inputs:    inputs,
		OutputDir: o.events.OutputDir(eventID),
		LogsDir:   o.events.LogsDir(eventID),
		Progress: func(step, details string) {
			o.tracker.Step(eventID, step, details)
		},
	})
	if execErr != nil {
		logger.Error("module failed",
			logging.Duration("elapsed", time.Since(started)),
			logging.Error(execErr))
		return false, o.failModule(ctx, eventID, entry.Name, force, execErr)
	}

	finished := time.Now().UTC()
	if _, err := o.store.UpdateModule(ctx, eventID, entry.Name, func(rec *runstate.ModuleRecord) {
		rec.Status = runstate.StatusSuccess
		rec.FinishedAt = &finished
		rec.Error = ""
		if len(result.OutputFiles) > 0 {
			if rec.OutputFiles == nil {
				rec.OutputFiles = make(map[string]string, len(result.OutputFiles))
			}
			for name, path := range result.OutputFiles {
				rec.OutputFiles[name] = path
			}
		}
	}); err != nil {
		return false, err
	}

	logger.Info("module completed", logging.Duration("elapsed", time.Since(started)))
	return true, nil
}

// failModule persists the failure and returns the original error so the
// pipeline halts. A persistence failure while recording takes precedence;
// losing state is worse than losing one error message.
func (o *Orchestrator) failModule(ctx context.Context, eventID, moduleName string, force bool, cause error) error {
	finished := time.Now().UTC()
	if _, err := o.store.UpdateModule(ctx, eventID, moduleName, func(rec *runstate.ModuleRecord) {
		rec.Status = runstate.StatusFailed
		rec.FinishedAt = &finished
		rec.Error = cause.Error()
		rec.LastRunForced = force
	}); err != nil {
		return err
	}
	return cause
}

// safeExecute runs a handler with panic containment so one misbehaving
// module cannot take down the daemon.
func (o *Orchestrator) safeExecute(ctx context.Context, entry registry.Entry, req modules.Request) (result modules.Result, err error) {
	handler, ok := o.handlers[entry.Name]
	if !ok {
		return modules.Result{}, services.Wrap(services.ErrConfiguration, entry.Name, "execute",
			fmt.Sprintf("no handler registered for module %q", entry.Name), nil)
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = services.Wrap(services.ErrTransient, entry.Name, "execute",
				fmt.Sprintf("internal error: %v", recovered), nil)
		}
	}()
	return handler.Execute(ctx, req)
}

// Health runs every handler's readiness probe.
func (o *Orchestrator) Health(ctx context.Context) []modules.Health {
	checks := make([]modules.Health, 0, len(o.handlers))
	for _, entry := range registry.All() {
		handler, ok := o.handlers[entry.Name]
		if !ok {
			continue
		}
		checks = append(checks, handler.HealthCheck(ctx))
	}
	return checks
}
