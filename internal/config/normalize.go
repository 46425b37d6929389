package config

import "strings"

func (c *Config) normalize() error {
	var err error
	if c.Paths.EventsDir, err = expandPath(c.Paths.EventsDir); err != nil {
		return err
	}
	if c.Paths.AssetsDir, err = expandPath(c.Paths.AssetsDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Whisper.ModelDir, err = expandPath(c.Whisper.ModelDir); err != nil {
		return err
	}
	if strings.TrimSpace(c.Archive.Dir) != "" {
		if c.Archive.Dir, err = expandPath(c.Archive.Dir); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.Thumbnail.FontPath) != "" {
		if c.Thumbnail.FontPath, err = expandPath(c.Thumbnail.FontPath); err != nil {
			return err
		}
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.AI.BaseURL = strings.TrimRight(strings.TrimSpace(c.AI.BaseURL), "/")
	c.Thumbnail.ComfyUIURL = strings.TrimRight(strings.TrimSpace(c.Thumbnail.ComfyUIURL), "/")
	c.Thumbnail.Backend = strings.ToLower(strings.TrimSpace(c.Thumbnail.Backend))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
