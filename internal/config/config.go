package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the pipeline root, the watched source and the log directory.
type Paths struct {
	RootDir   string `toml:"root_dir"`
	SourceDir string `toml:"source_dir"`
	LogDir    string `toml:"log_dir"`
}

// Watch contains polling cadence and the supported extension sets.
type Watch struct {
	PollInterval          int      `toml:"poll_interval"`
	SettleDelay           int      `toml:"settle_delay"`
	StabilizeTimeout      int      `toml:"stabilize_timeout"`
	StabilizePollInterval int      `toml:"stabilize_poll_interval"`
	VideoExtensions       []string `toml:"video_extensions"`
	ImageExtensions       []string `toml:"image_extensions"`
	ConvertExtensions     []string `toml:"convert_extensions"`
}

// Transformer describes how the external face-swap tool is launched.
type Transformer struct {
	Executable         string   `toml:"executable"`
	Script             string   `toml:"script"`
	WorkingDir         string   `toml:"working_dir"`
	ReferenceAsset     string   `toml:"reference_asset"`
	Command            string   `toml:"command"`
	Processors         []string `toml:"processors"`
	TempPath           string   `toml:"temp_path"`
	ExecutionProviders []string `toml:"execution_providers"`
	FaceSelectorMode   string   `toml:"face_selector_mode"`
	FaceSelectorGender string   `toml:"face_selector_gender"`
	FaceSelectorOrder  string   `toml:"face_selector_order"`
	ExtraArgs          []string `toml:"extra_args"`
}

// Convert contains raster normalization settings.
type Convert struct {
	Quality int `toml:"quality"`
}

// Retry bounds how often a failing staged entry is handed back to the
// transformer. MaxAttempts of zero means unlimited.
type Retry struct {
	MaxAttempts int `toml:"max_attempts"`
	Backoff     int `toml:"backoff"`
}

// Preflight controls how startup dependency failures are treated.
type Preflight struct {
	Strict bool `toml:"strict"`
}

// Notifications configures ntfy delivery. An empty topic disables it.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	OnSuccess      bool   `toml:"on_success"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for facewatch.
//
// Configuration sections by subsystem:
//   - Paths: pipeline root (work queue, output, ledger), source and logs
//   - Watch: poll/settle/stabilize timing and supported extensions
//   - Transformer: external tool location and fixed invocation flags
//   - Convert: raster normalization quality
//   - Retry: bounded retries for failed transformer runs
//   - Preflight: startup dependency strictness
//   - Notifications: ntfy alerts for failed and exhausted entries
//   - Logging: log format, level, and tool log retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Watch         Watch         `toml:"watch"`
	Transformer   Transformer   `toml:"transformer"`
	Convert       Convert       `toml:"convert"`
	Retry         Retry         `toml:"retry"`
	Preflight     Preflight     `toml:"preflight"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/facewatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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
		decoder.DisallowUnknownFields()
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

	projectPath, err := filepath.Abs("facewatch.toml")
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

// EnsureDirectories creates the directories owned by the pipeline. The source
// directory is deliberately left alone: it belongs to an external writer and
// may live on a volume that is not mounted yet.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RootDir, c.InputDir(), c.OutputDir(), c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// InputDir returns the work queue directory.
func (c *Config) InputDir() string {
	return filepath.Join(c.Paths.RootDir, "input")
}

// OutputDir returns the directory the transformer writes results into.
func (c *Config) OutputDir() string {
	return filepath.Join(c.Paths.RootDir, "output")
}

// LedgerPath returns the append-only processed-set log.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.RootDir, "seen_files.log")
}

// HistoryPath returns the SQLite attempt history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.RootDir, "history.db")
}

// LockPath returns the single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.RootDir, "facewatch.lock")
}

// ToolLogDir returns the directory receiving transformer stdout/stderr.
func (c *Config) ToolLogDir() string {
	return filepath.Join(c.Paths.LogDir, "tool")
}

// ReferenceAssetPath resolves the reference face image. Relative values are
// anchored at the transformer working directory.
func (c *Config) ReferenceAssetPath() string {
	asset := c.Transformer.ReferenceAsset
	if asset == "" || filepath.IsAbs(asset) {
		return asset
	}
	return filepath.Join(c.Transformer.WorkingDir, asset)
}

// PollInterval returns the delay between pipeline cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.PollInterval) * time.Second
}

// SettleDelay returns the pause before a new source entry is measured.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Watch.SettleDelay) * time.Second
}

// StabilizeTimeout returns how long a staged copy may take to reach its size.
func (c *Config) StabilizeTimeout() time.Duration {
	return time.Duration(c.Watch.StabilizeTimeout) * time.Second
}

// StabilizePollInterval returns the size polling cadence.
func (c *Config) StabilizePollInterval() time.Duration {
	return time.Duration(c.Watch.StabilizePollInterval) * time.Second
}

// NotifyTimeout returns the ntfy request timeout.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// RetryBackoff returns the minimum delay between failed transformer attempts.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Retry.Backoff) * time.Second
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
