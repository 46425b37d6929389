package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"parish/internal/config"
	"parish/internal/fileutil"
	"parish/internal/services"
)

// Manager creates, loads, and updates event documents under the events
// directory. Each event owns input/, output/, and logs/ subdirectories.
type Manager struct {
	eventsDir string
}

// NewManager constructs an event manager rooted at the configured events directory.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{eventsDir: cfg.Paths.EventsDir}
}

// CreateRequest carries the caller-supplied fields for a new event.
type CreateRequest struct {
	Title     string
	Speaker   string
	Series    string
	Scripture string
	Date      string // YYYY-MM-DD, defaults to today
	Time      string // HHMM, defaults to now
	Language  string
	Modules   map[string]bool
}

// Create builds the event directory layout and writes event.json.
func (m *Manager) Create(req CreateRequest) (*Event, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, "", "create event", "title must not be empty", nil)
	}

	now := time.Now()
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = now.Format("2006-01-02")
	}
	clock := strings.TrimSpace(req.Time)
	if clock == "" {
		clock = now.Format("1504")
	}
	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = "auto"
	}
	modules := req.Modules
	if modules == nil {
		modules = DefaultModules()
	}

	event := &Event{
		ID:        fmt.Sprintf("%s_%s_%s", date, clock, Slugify(title)),
		Title:     title,
		Speaker:   strings.TrimSpace(req.Speaker),
		Series:    strings.TrimSpace(req.Series),
		Scripture: strings.TrimSpace(req.Scripture),
		Date:      date,
		Time:      clock,
		Language:  language,
		CreatedAt: now.UTC(),
		Inputs:    Inputs{VideoFiles: []string{}},
		Modules:   modules,
	}

	if _, err := os.Stat(m.Dir(event.ID)); err == nil {
		return nil, services.Wrap(services.ErrValidation, "", "create event", fmt.Sprintf("event %s already exists", event.ID), nil)
	}
	for _, dir := range []string{m.InputDir(event.ID), m.OutputDir(event.ID), m.LogsDir(event.ID)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create event directory %q: %w", dir, err)
		}
	}
	if err := m.Save(event); err != nil {
		return nil, err
	}
	return event, nil
}

// Load reads an event document by identifier.
func (m *Manager) Load(eventID string) (*Event, error) {
	data, err := os.ReadFile(m.configPath(eventID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "", "load event", fmt.Sprintf("event %s not found", eventID), nil)
		}
		return nil, fmt.Errorf("read event %s: %w", eventID, err)
	}
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("parse event %s: %w", eventID, err)
	}
	if event.ID == "" {
		event.ID = eventID
	}
	return &event, nil
}

// Save writes the event document atomically.
func (m *Manager) Save(event *Event) error {
	if event == nil || event.ID == "" {
		return errors.New("event is nil or missing id")
	}
	data, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	if err := fileutil.WriteFileAtomic(m.configPath(event.ID), data, 0o644); err != nil {
		return fmt.Errorf("write event %s: %w", event.ID, err)
	}
	return nil
}

// AttachVideo records a source video on the event's inputs.
func (m *Manager) AttachVideo(eventID, videoPath string) (*Event, error) {
	absolute, err := filepath.Abs(videoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve video path: %w", err)
	}
	info, err := os.Stat(absolute)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "attach video", fmt.Sprintf("video file %s does not exist", absolute), nil)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "", "attach video", fmt.Sprintf("%s is a directory", absolute), nil)
	}

	event, err := m.Load(eventID)
	if err != nil {
		return nil, err
	}
	for _, existing := range event.Inputs.VideoFiles {
		if existing == absolute {
			return event, nil
		}
	}
	event.Inputs.VideoFiles = append(event.Inputs.VideoFiles, absolute)
	now := time.Now().UTC()
	event.UpdatedAt = &now
	if err := m.Save(event); err != nil {
		return nil, err
	}
	return event, nil
}

// SetModule toggles a module on the event document.
func (m *Manager) SetModule(eventID, module string, enabled bool) (*Event, error) {
	event, err := m.Load(eventID)
	if err != nil {
		return nil, err
	}
	if event.Modules == nil {
		event.Modules = map[string]bool{}
	}
	event.Modules[module] = enabled
	now := time.Now().UTC()
	event.UpdatedAt = &now
	if err := m.Save(event); err != nil {
		return nil, err
	}
	return event, nil
}

// List returns all event identifiers sorted lexically, which for the
// date-prefixed id format is chronological order.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.eventsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list events: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(m.configPath(entry.Name())); err != nil {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Dir returns the root directory for an event.
func (m *Manager) Dir(eventID string) string {
	return filepath.Join(m.eventsDir, eventID)
}

// InputDir returns the directory for caller-supplied input files.
func (m *Manager) InputDir(eventID string) string {
	return filepath.Join(m.Dir(eventID), "input")
}

// OutputDir returns the directory modules write their artifacts into.
func (m *Manager) OutputDir(eventID string) string {
	return filepath.Join(m.Dir(eventID), "output")
}

// LogsDir returns the directory for run bookkeeping (progress mirror).
func (m *Manager) LogsDir(eventID string) string {
	return filepath.Join(m.Dir(eventID), "logs")
}

func (m *Manager) configPath(eventID string) string {
	return filepath.Join(m.Dir(eventID), "event.json")
}
