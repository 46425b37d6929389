package modules

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Cue is one subtitle block: index, timestamp line, and text.
type Cue struct {
	Index     int
	Timestamp string
	Text      string
}

var blockSplit = regexp.MustCompile(`\n{2,}`)

// ParseSRT parses SRT content into cues. Malformed blocks are dropped rather
// than failing the whole file; whisper output occasionally contains stray
// fragments.
func ParseSRT(content string) []Cue {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	blocks := blockSplit.Split(strings.TrimSpace(content), -1)
	var cues []Cue
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 3 {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
		if err != nil {
			continue
		}
		timestamp := strings.TrimSpace(lines[1])
		if !strings.Contains(timestamp, "-->") {
			continue
		}
		cues = append(cues, Cue{
			Index:     index,
			Timestamp: timestamp,
			Text:      strings.Join(lines[2:], "\n"),
		})
	}
	return cues
}

// ReadSRT parses an SRT file from disk.
func ReadSRT(path string) ([]Cue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	return ParseSRT(string(data)), nil
}

// FormatSRT renders cues back to SRT text.
func FormatSRT(cues []Cue) string {
	var b strings.Builder
	for _, cue := range cues {
		fmt.Fprintf(&b, "%d\n%s\n%s\n\n", cue.Index, cue.Timestamp, cue.Text)
	}
	return b.String()
}

// WriteSRT writes cues to an SRT file.
func WriteSRT(path string, cues []Cue) error {
	if err := os.WriteFile(path, []byte(FormatSRT(cues)), 0o644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}

// PlainText joins all cue text into one transcript string.
func PlainText(cues []Cue) string {
	parts := make([]string, 0, len(cues))
	for _, cue := range cues {
		parts = append(parts, strings.ReplaceAll(cue.Text, "\n", " "))
	}
	return strings.Join(parts, " ")
}

// SameTimestamps reports whether two cue lists share identical timestamp
// lines position by position.
func SameTimestamps(a, b []Cue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Timestamp != b[i].Timestamp {
			return false
		}
	}
	return true
}
