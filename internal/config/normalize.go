package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWatch()
	if err := c.normalizeTransformer(); err != nil {
		return err
	}
	if c.Convert.Quality == 0 {
		c.Convert.Quality = defaultConvertQuality
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.RootDir) == "" {
		c.Paths.RootDir = defaultRootDir
	}
	if c.Paths.RootDir, err = expandPath(strings.TrimSpace(c.Paths.RootDir)); err != nil {
		return fmt.Errorf("paths.root_dir: %w", err)
	}
	if value, ok := os.LookupEnv("FACEWATCH_SOURCE_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.SourceDir = value
	}
	if c.Paths.SourceDir, err = expandPath(strings.TrimSpace(c.Paths.SourceDir)); err != nil {
		return fmt.Errorf("paths.source_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.RootDir, defaultLogDirName)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeWatch() {
	if c.Watch.PollInterval == 0 {
		c.Watch.PollInterval = defaultPollInterval
	}
	if c.Watch.StabilizeTimeout == 0 {
		c.Watch.StabilizeTimeout = defaultStabilizeTimeout
	}
	if c.Watch.StabilizePollInterval == 0 {
		c.Watch.StabilizePollInterval = defaultStabilizePollInterval
	}
	c.Watch.VideoExtensions = normalizeExtensions(c.Watch.VideoExtensions)
	c.Watch.ImageExtensions = normalizeExtensions(c.Watch.ImageExtensions)
	c.Watch.ConvertExtensions = normalizeExtensions(c.Watch.ConvertExtensions)
}

func (c *Config) normalizeTransformer() error {
	var err error
	t := &c.Transformer
	if value, ok := os.LookupEnv("FACEWATCH_TRANSFORMER"); ok && strings.TrimSpace(value) != "" {
		t.Executable = value
	}
	t.Executable = strings.TrimSpace(t.Executable)
	// Bare command names are resolved through $PATH at launch time.
	if strings.ContainsRune(t.Executable, filepath.Separator) || strings.HasPrefix(t.Executable, "~") {
		if t.Executable, err = expandPath(t.Executable); err != nil {
			return fmt.Errorf("transformer.executable: %w", err)
		}
	}
	if t.Script, err = expandPath(strings.TrimSpace(t.Script)); err != nil {
		return fmt.Errorf("transformer.script: %w", err)
	}
	t.WorkingDir = strings.TrimSpace(t.WorkingDir)
	switch {
	case t.WorkingDir != "":
		if t.WorkingDir, err = expandPath(t.WorkingDir); err != nil {
			return fmt.Errorf("transformer.working_dir: %w", err)
		}
	case t.Script != "":
		t.WorkingDir = filepath.Dir(t.Script)
	default:
		t.WorkingDir = c.Paths.RootDir
	}
	t.ReferenceAsset = strings.TrimSpace(t.ReferenceAsset)
	if strings.HasPrefix(t.ReferenceAsset, "~") {
		if t.ReferenceAsset, err = expandPath(t.ReferenceAsset); err != nil {
			return fmt.Errorf("transformer.reference_asset: %w", err)
		}
	}
	t.Command = strings.TrimSpace(t.Command)
	if t.Command == "" {
		t.Command = defaultTransformerCommand
	}
	t.TempPath = strings.TrimSpace(t.TempPath)
	if t.TempPath == "" {
		t.TempPath = defaultTransformerTempPath
	}
	t.Processors = trimList(t.Processors)
	t.ExecutionProviders = trimList(t.ExecutionProviders)
	t.FaceSelectorMode = strings.TrimSpace(t.FaceSelectorMode)
	t.FaceSelectorGender = strings.TrimSpace(t.FaceSelectorGender)
	t.FaceSelectorOrder = strings.TrimSpace(t.FaceSelectorOrder)
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// normalizeExtensions lowercases, dot-prefixes and de-duplicates extensions.
func normalizeExtensions(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		ext := strings.ToLower(strings.TrimSpace(value))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
