package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"parish/internal/events"
	"parish/internal/registry"
	"parish/internal/runstate"
	"parish/internal/services"
)

// resolveInputs maps a module's declared inputs to absolute paths. Each
// input is tried in order: outputs recorded by earlier modules, the event's
// own attached inputs, a scan of the output directory for recognizable
// artifacts, and finally a static asset when the input declares one.
func (o *Orchestrator) resolveInputs(entry registry.Entry, event *events.Event, state *runstate.RunState, outputDir string) (map[string]string, error) {
	inputs := make(map[string]string, len(entry.RequiredInputs))
	for _, spec := range entry.RequiredInputs {
		path := o.resolveInput(spec, event, state, outputDir)
		if path == "" {
			return nil, services.Wrap(services.ErrValidation, entry.Name, "resolve inputs",
				fmt.Sprintf("missing required input %q; run the modules that produce it first", spec.Name), nil)
		}
		inputs[spec.Name] = path
	}
	return inputs, nil
}

func (o *Orchestrator) resolveInput(spec registry.InputSpec, event *events.Event, state *runstate.RunState, outputDir string) string {
	for _, source := range spec.Sources {
		if path := recordedOutput(state, source); path != "" {
			return path
		}
	}
	if spec.EventInput && event != nil {
		if path, ok := event.InputPath(spec.Name); ok {
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	for _, source := range spec.Sources {
		if path := scanOutputDir(outputDir, source); path != "" {
			return path
		}
	}
	if spec.AssetDir != "" {
		if assets := o.cfg.FallbackBackgrounds(); len(assets) > 0 {
			return assets[0]
		}
	}
	return ""
}

// recordedOutput finds a logical output name among all persisted module
// records, ignoring entries whose files have since been deleted.
func recordedOutput(state *runstate.RunState, name string) string {
	if state == nil {
		return ""
	}
	// Map iteration order is random; walk modules in registry order so the
	// same record wins every time.
	for _, entry := range registry.All() {
		rec, ok := state.Modules[entry.Name]
		if !ok {
			continue
		}
		path, ok := rec.OutputFiles[name]
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// scanOutputDir recovers artifacts by naming convention when no record
// mentions them, which happens after manual file drops or a cleared state
// database.
func scanOutputDir(outputDir, name string) string {
	if outputDir == "" {
		return ""
	}
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	match := func(fn func(string) bool) string {
		for _, candidate := range names {
			if fn(candidate) {
				return filepath.Join(outputDir, candidate)
			}
		}
		return ""
	}

	switch name {
	case "corrected_srt":
		return match(func(n string) bool { return strings.HasSuffix(n, "_corrected.srt") })
	case "srt":
		return match(func(n string) bool {
			return strings.HasSuffix(n, ".srt") && !strings.HasSuffix(n, "_corrected.srt")
		})
	case "txt":
		return match(func(n string) bool {
			return strings.HasSuffix(n, ".txt") &&
				!strings.HasSuffix(n, "_summary.txt") &&
				!strings.HasSuffix(n, "_image_prompt.txt")
		})
	case "summary":
		return match(func(n string) bool { return strings.HasSuffix(n, "_summary.txt") })
	case "image_prompt":
		return match(func(n string) bool { return strings.HasSuffix(n, "_image_prompt.txt") })
	case "background":
		return match(func(n string) bool { return n == "background.png" })
	case "thumbnail":
		return match(func(n string) bool { return n == "thumbnail.png" })
	}
	return ""
}
