package api

import (
	"time"

	"parish/internal/events"
	"parish/internal/progress"
	"parish/internal/registry"
	"parish/internal/runstate"
)

// FromEvent converts an event document to its transport form.
func FromEvent(event *events.Event) EventView {
	if event == nil {
		return EventView{}
	}
	view := EventView{
		ID:         event.ID,
		Title:      event.Title,
		Speaker:    event.Speaker,
		Series:     event.Series,
		Scripture:  event.Scripture,
		Date:       event.Date,
		Time:       event.Time,
		Language:   event.Language,
		VideoFiles: append([]string(nil), event.Inputs.VideoFiles...),
		Modules:    make(map[string]bool, len(event.Modules)),
	}
	if view.VideoFiles == nil {
		view.VideoFiles = []string{}
	}
	for name, enabled := range event.Modules {
		view.Modules[name] = enabled
	}
	if !event.CreatedAt.IsZero() {
		view.CreatedAt = event.CreatedAt.Format(time.RFC3339)
	}
	if event.UpdatedAt != nil {
		view.UpdatedAt = event.UpdatedAt.Format(time.RFC3339)
	}
	return view
}

// FromRunState converts persisted run state to its transport form.
func FromRunState(state *runstate.RunState) RunStateView {
	if state == nil {
		return RunStateView{Modules: map[string]ModuleRecordView{}}
	}
	view := RunStateView{
		EventID:       state.EventID,
		OverallStatus: string(state.OverallStatus),
		Modules:       make(map[string]ModuleRecordView, len(state.Modules)),
	}
	if !state.CreatedAt.IsZero() {
		view.CreatedAt = state.CreatedAt.Format(time.RFC3339Nano)
	}
	if !state.UpdatedAt.IsZero() {
		view.UpdatedAt = state.UpdatedAt.Format(time.RFC3339Nano)
	}
	for name, rec := range state.Modules {
		view.Modules[name] = fromModuleRecord(rec)
	}
	return view
}

func fromModuleRecord(rec runstate.ModuleRecord) ModuleRecordView {
	view := ModuleRecordView{
		Status:        string(rec.Status),
		Error:         rec.Error,
		LastRunForced: rec.LastRunForced,
	}
	if rec.StartedAt != nil {
		view.StartedAt = rec.StartedAt.Format(time.RFC3339Nano)
	}
	if rec.FinishedAt != nil {
		view.FinishedAt = rec.FinishedAt.Format(time.RFC3339Nano)
	}
	if len(rec.OutputFiles) > 0 {
		view.OutputFiles = make(map[string]string, len(rec.OutputFiles))
		for name, path := range rec.OutputFiles {
			view.OutputFiles[name] = path
		}
	}
	return view
}

// FromProgress converts a live progress record to its transport form.
func FromProgress(rec progress.Record) ProgressView {
	view := ProgressView{
		Status:           rec.Status,
		CurrentModule:    rec.CurrentModule,
		CurrentStep:      rec.CurrentStep,
		CompletedModules: append([]string(nil), rec.CompletedModules...),
		TotalModules:     rec.TotalModules,
		ProgressPercent:  rec.ProgressPercent,
		Details:          rec.Details,
		Error:            rec.Error,
	}
	if view.CompletedModules == nil {
		view.CompletedModules = []string{}
	}
	if !rec.UpdatedAt.IsZero() {
		view.UpdatedAt = rec.UpdatedAt.Format(time.RFC3339Nano)
	}
	return view
}

// SynthesizeProgress builds a progress view from durable state for events the
// tracker has not seen since daemon start. Completed module names follow
// registry order so the view is stable across calls.
func SynthesizeProgress(event *events.Event, state *runstate.RunState) ProgressView {
	var enabled []registry.Entry
	if event != nil {
		enabled = registry.Enabled(event.Modules)
	}
	view := ProgressView{
		Status:           progress.StatusPending,
		CompletedModules: []string{},
		TotalModules:     len(enabled),
	}
	if state == nil {
		return view
	}

	for _, entry := range enabled {
		rec, ok := state.Modules[entry.Name]
		if !ok {
			continue
		}
		switch rec.Status {
		case runstate.StatusSuccess, runstate.StatusSkipped:
			view.CompletedModules = append(view.CompletedModules, entry.Name)
		case runstate.StatusFailed:
			if view.Error == "" {
				view.Error = rec.Error
			}
		}
	}
	if view.TotalModules > 0 {
		view.ProgressPercent = len(view.CompletedModules) * 100 / view.TotalModules
	}

	switch state.OverallStatus {
	case runstate.OverallCompleted:
		view.Status = progress.StatusCompleted
		view.ProgressPercent = 100
	case runstate.OverallFailed:
		view.Status = progress.StatusFailed
	case runstate.OverallRunning:
		view.Status = progress.StatusRunning
	}
	if !state.UpdatedAt.IsZero() {
		view.UpdatedAt = state.UpdatedAt.Format(time.RFC3339Nano)
	}
	return view
}
