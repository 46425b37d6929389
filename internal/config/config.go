package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	EventsDir string `toml:"events_dir"`
	AssetsDir string `toml:"assets_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Whisper contains configuration for whisper.cpp subtitle generation.
type Whisper struct {
	Binary        string `toml:"binary"`
	Model         string `toml:"model"`
	ModelDir      string `toml:"model_dir"`
	Language      string `toml:"language"`
	MaxLineLength int    `toml:"max_line_length"`
	SplitOnWord   bool   `toml:"split_on_word"`
	Threads       int    `toml:"threads"`
}

// AI contains connection settings for the Ollama text model used by the
// subtitle correction and content summary modules.
type AI struct {
	BaseURL          string   `toml:"base_url"`
	Model            string   `toml:"model"`
	SummaryLength    string   `toml:"summary_length"`
	SummaryLanguages []string `toml:"summary_languages"`
	UnloadModelAfter bool     `toml:"unload_model_after"`
	TimeoutSeconds   int      `toml:"timeout_seconds"`
}

// Thumbnail contains configuration for background generation and composition.
type Thumbnail struct {
	Backend          string `toml:"backend"` // comfyui, ollama, or fallback
	ComfyUIURL       string `toml:"comfyui_url"`
	Model            string `toml:"model"`
	Width            int    `toml:"width"`
	Height           int    `toml:"height"`
	Steps            int    `toml:"steps"`
	TitleFontSize    int    `toml:"title_font_size"`
	SubtitleFontSize int    `toml:"subtitle_font_size"`
	FontPath         string `toml:"font_path"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// YouTube contains configuration for the YouTube publish module.
type YouTube struct {
	UploadCommand string `toml:"upload_command"`
	Privacy       string `toml:"privacy"`
	Category      string `toml:"category"`
}

// Website contains configuration for the website publish module.
type Website struct {
	PublishCommand string `toml:"publish_command"`
	BaseURL        string `toml:"base_url"`
}

// Archive contains configuration for the archive module.
type Archive struct {
	Dir string `toml:"dir"`
}

// Workflow contains configuration for orchestrator behavior.
type Workflow struct {
	MirrorProgress bool `toml:"mirror_progress"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for parish.
//
// Configuration sections by subsystem:
//   - Paths: events/assets/log directories and API bind address
//   - Whisper: whisper.cpp transcription settings
//   - AI: Ollama connection for correction and summaries
//   - Thumbnail: background generation backend and composition geometry
//   - YouTube/Website/Archive: publish module settings
//   - Workflow: orchestrator behavior
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Whisper   Whisper   `toml:"whisper"`
	AI        AI        `toml:"ai"`
	Thumbnail Thumbnail `toml:"thumbnail"`
	YouTube   YouTube   `toml:"youtube"`
	Website   Website   `toml:"website"`
	Archive   Archive   `toml:"archive"`
	Workflow  Workflow  `toml:"workflow"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/parish/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("parish.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories required for daemon operation.
// The archive directory is created on a best-effort basis so the daemon can
// run when external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.EventsDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Archive.Dir) != "" {
		_ = os.MkdirAll(c.Archive.Dir, 0o755)
	}
	return nil
}

// WhisperBinary returns the whisper.cpp executable name.
func (c *Config) WhisperBinary() string {
	if strings.TrimSpace(c.Whisper.Binary) != "" {
		return c.Whisper.Binary
	}
	return "whisper-cli"
}

// FFmpegBinary returns the ffmpeg executable name used for thumbnail composition.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FallbackBackgrounds returns candidate static background images under the
// assets directory, used when no generated background is available.
func (c *Config) FallbackBackgrounds() []string {
	dir := filepath.Join(c.Paths.AssetsDir, "backgrounds")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	return paths
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
