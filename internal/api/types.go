package api

// EventSummary describes an event in list responses.
type EventSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Speaker       string `json:"speaker,omitempty"`
	Date          string `json:"date"`
	OverallStatus string `json:"overallStatus"`
	Running       bool   `json:"running"`
}

// EventView is the full transport representation of an event document.
type EventView struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Speaker    string          `json:"speaker,omitempty"`
	Series     string          `json:"series,omitempty"`
	Scripture  string          `json:"scripture,omitempty"`
	Date       string          `json:"date"`
	Time       string          `json:"time"`
	Language   string          `json:"language"`
	CreatedAt  string          `json:"createdAt,omitempty"`
	UpdatedAt  string          `json:"updatedAt,omitempty"`
	VideoFiles []string        `json:"videoFiles"`
	Modules    map[string]bool `json:"modules"`
}

// EventDetail pairs an event with its persisted run state and live progress.
type EventDetail struct {
	Event    EventView    `json:"event"`
	State    RunStateView `json:"state"`
	Progress ProgressView `json:"progress"`
}

// ModuleRecordView is the transport form of a durable module record.
type ModuleRecordView struct {
	Status        string            `json:"status"`
	StartedAt     string            `json:"startedAt,omitempty"`
	FinishedAt    string            `json:"finishedAt,omitempty"`
	OutputFiles   map[string]string `json:"outputFiles,omitempty"`
	Error         string            `json:"error,omitempty"`
	LastRunForced bool              `json:"lastRunForced,omitempty"`
}

// RunStateView is the transport form of an event's persisted run state.
type RunStateView struct {
	EventID       string                      `json:"eventId"`
	OverallStatus string                      `json:"overallStatus"`
	Modules       map[string]ModuleRecordView `json:"modules"`
	CreatedAt     string                      `json:"createdAt,omitempty"`
	UpdatedAt     string                      `json:"updatedAt,omitempty"`
}

// ProgressView mirrors the live progress record. For events with no tracked
// run since daemon start the view is synthesized from durable state.
type ProgressView struct {
	Status           string   `json:"status"`
	CurrentModule    string   `json:"current_module,omitempty"`
	CurrentStep      string   `json:"current_step,omitempty"`
	CompletedModules []string `json:"completed_modules"`
	TotalModules     int      `json:"total_modules"`
	ProgressPercent  int      `json:"progress_percent"`
	Details          string   `json:"details,omitempty"`
	Error            string   `json:"error,omitempty"`
	UpdatedAt        string   `json:"updated_at,omitempty"`
}

// ModuleHealth reports one handler's readiness probe result.
type ModuleHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	StateDBPath  string         `json:"stateDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	Events       int            `json:"events"`
	ActiveRuns   []string       `json:"activeRuns,omitempty"`
	ModuleHealth []ModuleHealth `json:"moduleHealth"`
}

// CreateEventRequest carries caller-supplied fields for a new event.
type CreateEventRequest struct {
	Title     string          `json:"title"`
	Speaker   string          `json:"speaker,omitempty"`
	Series    string          `json:"series,omitempty"`
	Scripture string          `json:"scripture,omitempty"`
	Date      string          `json:"date,omitempty"`
	Time      string          `json:"time,omitempty"`
	Language  string          `json:"language,omitempty"`
	Modules   map[string]bool `json:"modules,omitempty"`
}

// AttachVideoRequest names a source video to record on an event.
type AttachVideoRequest struct {
	Path string `json:"path"`
}

// SetModuleRequest toggles one module on an event document.
type SetModuleRequest struct {
	Module  string `json:"module"`
	Enabled bool   `json:"enabled"`
}

// RunAccepted acknowledges a background run request.
type RunAccepted struct {
	EventID string `json:"eventId"`
	Module  string `json:"module,omitempty"`
	Force   bool   `json:"force"`
	Status  string `json:"status"`
}

// EventListResponse wraps a collection of event summaries.
type EventListResponse struct {
	Events []EventSummary `json:"events"`
}
