package registry

import (
	"fmt"

	"parish/internal/services"
)

// Canonical module names. Execution order is fixed by the entries table, not
// by the event's toggle map.
const (
	ModuleSubtitles          = "subtitles"
	ModuleSubtitleCorrection = "subtitle_correction"
	ModuleContentSummary     = "content_summary"
	ModuleThumbnailAI        = "thumbnail_ai"
	ModuleThumbnailCompose   = "thumbnail_compose"
	ModulePublishYouTube     = "publish_youtube"
	ModulePublishWebsite     = "publish_website"
	ModuleArchive            = "archive"
)

// InputSpec declares one named input a module requires before it can run.
// Resolution tries, in order: a manual override, the logical output names in
// Sources from earlier modules' records, the event's own inputs (when
// EventInput is set), and finally a static asset fallback when AssetDir is set.
type InputSpec struct {
	Name       string
	Sources    []string
	EventInput bool
	AssetDir   string
}

// Entry describes one module in the fixed pipeline.
type Entry struct {
	Name           string
	ExecutionOrder int
	Label          string
	Description    string
	RequiredInputs []InputSpec
}

// The pipeline is a total order, declared once: later modules consume earlier
// modules' declared outputs (thumbnail_compose uses the background produced
// by thumbnail_ai, content_summary prefers the corrected subtitles). The
// orchestrator is a linear scan over this table, never a topological sort.
var entries = []Entry{
	{
		Name:           ModuleSubtitles,
		ExecutionOrder: 1,
		Label:          "Subtitles",
		Description:    "Transcribe the recording with whisper.cpp",
		RequiredInputs: []InputSpec{{Name: "video", EventInput: true}},
	},
	{
		Name:           ModuleSubtitleCorrection,
		ExecutionOrder: 2,
		Label:          "Subtitle correction",
		Description:    "Correct transcription errors with the AI model",
		RequiredInputs: []InputSpec{{Name: "srt", Sources: []string{"srt"}, EventInput: true}},
	},
	{
		Name:           ModuleContentSummary,
		ExecutionOrder: 3,
		Label:          "Content summary",
		Description:    "Generate summary text and a thumbnail image prompt",
		RequiredInputs: []InputSpec{{Name: "srt", Sources: []string{"corrected_srt", "txt", "srt"}, EventInput: true}},
	},
	{
		Name:           ModuleThumbnailAI,
		ExecutionOrder: 4,
		Label:          "Thumbnail background",
		Description:    "Generate a background image from the summary's prompt",
		RequiredInputs: []InputSpec{{Name: "image_prompt", Sources: []string{"image_prompt"}}},
	},
	{
		Name:           ModuleThumbnailCompose,
		ExecutionOrder: 5,
		Label:          "Thumbnail composition",
		Description:    "Compose the final thumbnail from background and titles",
		RequiredInputs: []InputSpec{{Name: "background", Sources: []string{"background"}, AssetDir: "backgrounds"}},
	},
	{
		Name:           ModulePublishYouTube,
		ExecutionOrder: 6,
		Label:          "YouTube upload",
		Description:    "Upload the recording via the configured upload command",
		RequiredInputs: []InputSpec{{Name: "video", EventInput: true}},
	},
	{
		Name:           ModulePublishWebsite,
		ExecutionOrder: 7,
		Label:          "Website publish",
		Description:    "Publish the summary via the configured publish command",
		RequiredInputs: []InputSpec{{Name: "summary", Sources: []string{"summary"}}},
	},
	{
		Name:           ModuleArchive,
		ExecutionOrder: 8,
		Label:          "Archive",
		Description:    "Copy the recording and artifacts to the archive directory",
		RequiredInputs: []InputSpec{{Name: "video", EventInput: true}},
	},
}

var byName = func() map[string]Entry {
	m := make(map[string]Entry, len(entries))
	for _, entry := range entries {
		m[entry.Name] = entry
	}
	return m
}()

// All returns every entry in execution order.
func All() []Entry {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return cp
}

// Lookup returns the entry for a module name.
func Lookup(name string) (Entry, error) {
	entry, ok := byName[name]
	if !ok {
		return Entry{}, services.Wrap(services.ErrNotFound, name, "lookup", fmt.Sprintf("unknown module %q", name), nil)
	}
	return entry, nil
}

// Known reports whether a module name exists in the catalog.
func Known(name string) bool {
	_, ok := byName[name]
	return ok
}

// Enabled returns the entries toggled on in the provided map, in execution
// order. Modules absent from the map or set to false are excluded entirely.
func Enabled(toggles map[string]bool) []Entry {
	var enabled []Entry
	for _, entry := range entries {
		if toggles[entry.Name] {
			enabled = append(enabled, entry)
		}
	}
	return enabled
}
