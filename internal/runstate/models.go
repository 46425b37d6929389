package runstate

import "time"

// Status represents the lifecycle of a single module run.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Overall status values for an event's pipeline.
const (
	OverallPending   Status = "pending"
	OverallRunning   Status = "running"
	OverallCompleted Status = "completed"
	OverallFailed    Status = "failed"
	OverallPartial   Status = "partial"
)

// ModuleRecord is the durable outcome of one module execution. OutputFiles
// maps logical output names (srt, summary, thumbnail) to absolute paths so
// later modules can resolve their inputs across runs.
type ModuleRecord struct {
	Status        Status            `json:"status"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty"`
	OutputFiles   map[string]string `json:"output_files,omitempty"`
	Error         string            `json:"error,omitempty"`
	LastRunForced bool              `json:"last_run_forced,omitempty"`
}

// RunState is the persisted pipeline state for one event.
type RunState struct {
	EventID       string
	OverallStatus Status
	Modules       map[string]ModuleRecord
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewRunState returns a fresh pending state with no module records.
func NewRunState(eventID string) *RunState {
	now := time.Now().UTC()
	return &RunState{
		EventID:       eventID,
		OverallStatus: OverallPending,
		Modules:       make(map[string]ModuleRecord),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a deep copy so cached state cannot be mutated through a
// caller's reference.
func (s *RunState) Clone() *RunState {
	if s == nil {
		return nil
	}
	out := &RunState{
		EventID:       s.EventID,
		OverallStatus: s.OverallStatus,
		Modules:       make(map[string]ModuleRecord, len(s.Modules)),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	for name, rec := range s.Modules {
		out.Modules[name] = rec.clone()
	}
	return out
}

func (r ModuleRecord) clone() ModuleRecord {
	out := r
	if r.StartedAt != nil {
		started := *r.StartedAt
		out.StartedAt = &started
	}
	if r.FinishedAt != nil {
		finished := *r.FinishedAt
		out.FinishedAt = &finished
	}
	if r.OutputFiles != nil {
		out.OutputFiles = make(map[string]string, len(r.OutputFiles))
		for name, path := range r.OutputFiles {
			out.OutputFiles[name] = path
		}
	}
	return out
}

// Record returns the record for a module, defaulting to pending when the
// module has never run.
func (s *RunState) Record(module string) ModuleRecord {
	if rec, ok := s.Modules[module]; ok {
		return rec
	}
	return ModuleRecord{Status: StatusPending}
}

// SetRecord replaces a module record and recomputes the overall status.
func (s *RunState) SetRecord(module string, rec ModuleRecord) {
	if s.Modules == nil {
		s.Modules = make(map[string]ModuleRecord)
	}
	s.Modules[module] = rec
	s.OverallStatus = ComputeOverallStatus(s.Modules)
}

// ComputeOverallForModules derives the pipeline status considering only the
// named modules. Records for modules outside the list are ignored, so a stale
// failure from a module that has since been toggled off cannot hold the
// pipeline at failed. Named modules without a record count as pending.
func ComputeOverallForModules(names []string, records map[string]ModuleRecord) Status {
	if len(names) == 0 {
		return OverallCompleted
	}
	scoped := make(map[string]ModuleRecord, len(names))
	for _, name := range names {
		if rec, ok := records[name]; ok {
			scoped[name] = rec
			continue
		}
		scoped[name] = ModuleRecord{Status: StatusPending}
	}
	return ComputeOverallStatus(scoped)
}

// ComputeOverallStatus derives the pipeline status from the module records.
// A failure dominates, then an in-flight module, then full success. A mix of
// finished and pending modules reads as partial.
func ComputeOverallStatus(records map[string]ModuleRecord) Status {
	if len(records) == 0 {
		return OverallPending
	}
	var finished, pending int
	for _, rec := range records {
		switch rec.Status {
		case StatusFailed:
			return OverallFailed
		case StatusRunning:
			return OverallRunning
		case StatusSuccess, StatusSkipped:
			finished++
		default:
			pending++
		}
	}
	if pending == 0 {
		return OverallCompleted
	}
	if finished > 0 {
		return OverallPartial
	}
	return OverallPending
}
