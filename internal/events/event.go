package events

import "time"

// Event is the configuration document for one recorded session, stored as
// event.json inside the event's directory. The web layer owns most fields;
// the workflow core reads the module toggles, inputs, and directory layout.
type Event struct {
	ID        string          `json:"event_id"`
	Title     string          `json:"title"`
	Speaker   string          `json:"speaker"`
	Series    string          `json:"series,omitempty"`
	Scripture string          `json:"scripture,omitempty"`
	Date      string          `json:"date"`
	Time      string          `json:"time"`
	Language  string          `json:"language"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	Inputs    Inputs          `json:"inputs"`
	Modules   map[string]bool `json:"modules"`
}

// Inputs is the set of source files attached to an event before any module runs.
type Inputs struct {
	VideoFiles []string `json:"video_files"`
}

// InputPath resolves a named event input. The "video" input maps to the
// first attached video file.
func (e *Event) InputPath(name string) (string, bool) {
	if e == nil {
		return "", false
	}
	if name == "video" && len(e.Inputs.VideoFiles) > 0 {
		return e.Inputs.VideoFiles[0], true
	}
	return "", false
}

// ModuleEnabled reports whether the named module is toggled on.
func (e *Event) ModuleEnabled(name string) bool {
	if e == nil || e.Modules == nil {
		return false
	}
	return e.Modules[name]
}

// DefaultModules returns the module toggles assigned to a new event when the
// caller does not supply any.
func DefaultModules() map[string]bool {
	return map[string]bool{
		"subtitles":           true,
		"subtitle_correction": true,
		"content_summary":     true,
		"thumbnail_ai":        true,
		"thumbnail_compose":   true,
		"publish_youtube":     false,
		"publish_website":     false,
		"archive":             false,
	}
}
