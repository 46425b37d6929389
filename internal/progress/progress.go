package progress

import (
	"encoding/json"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"parish/internal/config"
	"parish/internal/fileutil"
	"parish/internal/logging"
)

// Status values reported while a pipeline run is in flight. Pending is the
// placeholder for events with no tracked run yet.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is the live view of one event's run. It is rebuilt from scratch on
// every run start and never survives a daemon restart.
type Record struct {
	Status           string    `json:"status"`
	CurrentModule    string    `json:"current_module,omitempty"`
	CurrentStep      string    `json:"current_step,omitempty"`
	CompletedModules []string  `json:"completed_modules"`
	TotalModules     int       `json:"total_modules"`
	ProgressPercent  int       `json:"progress_percent"`
	Details          string    `json:"details,omitempty"`
	Error            string    `json:"error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Running reports whether the record describes an active run.
func (r Record) Running() bool {
	return r.Status == StatusRunning
}

// Tracker holds in-memory progress records keyed by event id. When mirroring
// is enabled each update is also written to the event's logs directory for
// external tooling; mirror failures never affect the run.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]Record

	mirrorDir string
	logger    *slog.Logger
}

// NewTracker builds a tracker. Mirroring follows the workflow configuration.
func NewTracker(cfg *config.Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &Tracker{
		records: make(map[string]Record),
		logger:  logger.With(logging.String(logging.FieldComponent, "progress")),
	}
	if cfg != nil && cfg.Workflow.MirrorProgress {
		t.mirrorDir = cfg.Paths.EventsDir
	}
	return t
}

// Begin resets the record for an event at the start of a run.
func (t *Tracker) Begin(eventID string, totalModules int) Record {
	return t.update(eventID, func(rec *Record) {
		*rec = Record{
			Status:           StatusRunning,
			CompletedModules: []string{},
			TotalModules:     totalModules,
		}
	})
}

// StartModule marks a module as the current unit of work.
func (t *Tracker) StartModule(eventID, module, step string) Record {
	return t.update(eventID, func(rec *Record) {
		rec.CurrentModule = module
		rec.CurrentStep = step
		rec.Details = ""
	})
}

// Step updates the current step and optional detail text without changing
// module accounting. Long-running handlers call this as they work.
func (t *Tracker) Step(eventID, step, details string) Record {
	return t.update(eventID, func(rec *Record) {
		rec.CurrentStep = step
		rec.Details = details
	})
}

// CompleteModule adds a module to the completed list and recomputes the
// percentage. Skipped modules count as completed here even though their
// durable records are untouched.
func (t *Tracker) CompleteModule(eventID, module string) Record {
	return t.update(eventID, func(rec *Record) {
		for _, done := range rec.CompletedModules {
			if done == module {
				return
			}
		}
		rec.CompletedModules = append(rec.CompletedModules, module)
		rec.CurrentModule = ""
		rec.CurrentStep = ""
		rec.ProgressPercent = percent(len(rec.CompletedModules), rec.TotalModules)
	})
}

// Finish moves the record to a terminal status. Completed runs always read
// 100 percent, including runs with no enabled modules.
func (t *Tracker) Finish(eventID, status, errMsg string) Record {
	return t.update(eventID, func(rec *Record) {
		rec.Status = status
		rec.CurrentModule = ""
		rec.CurrentStep = ""
		rec.Error = errMsg
		if status == StatusCompleted {
			rec.ProgressPercent = 100
		}
	})
}

// Get returns the record for an event. The boolean reports whether any run
// has been tracked for the event since daemon start.
func (t *Tracker) Get(eventID string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[eventID]
	return rec, ok
}

// Snapshot returns a copy of all tracked records.
func (t *Tracker) Snapshot() map[string]Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Record, len(t.records))
	for id, rec := range t.records {
		out[id] = rec
	}
	return out
}

func (t *Tracker) update(eventID string, mutate func(*Record)) Record {
	t.mu.Lock()
	rec := t.records[eventID]
	mutate(&rec)
	rec.UpdatedAt = time.Now().UTC()
	t.records[eventID] = rec
	t.mu.Unlock()

	t.mirror(eventID, rec)
	return rec
}

func (t *Tracker) mirror(eventID string, rec Record) {
	if t.mirrorDir == "" {
		return
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(t.mirrorDir, eventID, "logs", "progress.json")
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		t.logger.Debug("progress mirror write failed",
			logging.String(logging.FieldEventID, eventID),
			logging.Error(err))
	}
}

// percent is floor(100 * completed / total); a zero total reads as zero
// until the run finishes.
func percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return completed * 100 / total
}
