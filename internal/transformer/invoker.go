package transformer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"facewatch/internal/config"
	"facewatch/internal/logging"
)

var commandContext = exec.CommandContext

// Status is the result class of one Invoke call.
type Status int

const (
	// AlreadyDone means a non-empty output existed and nothing was launched.
	AlreadyDone Status = iota
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case AlreadyDone:
		return "already_done"
	case Succeeded:
		return "succeeded"
	default:
		return "failed"
	}
}

// Outcome describes one Invoke call.
type Outcome struct {
	Status     Status
	ExitCode   int
	OutputPath string
	LogPath    string
	Err        error
	Duration   time.Duration
}

// Settings describes the tool location and its fixed flags.
type Settings struct {
	Executable         string
	Script             string
	WorkingDir         string
	ReferenceAsset     string
	Command            string
	Processors         []string
	TempPath           string
	ExecutionProviders []string
	FaceSelectorMode   string
	FaceSelectorGender string
	FaceSelectorOrder  string
	ExtraArgs          []string
}

// SettingsFromConfig extracts invoker settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	t := cfg.Transformer
	return Settings{
		Executable:         t.Executable,
		Script:             t.Script,
		WorkingDir:         t.WorkingDir,
		ReferenceAsset:     cfg.ReferenceAssetPath(),
		Command:            t.Command,
		Processors:         append([]string(nil), t.Processors...),
		TempPath:           t.TempPath,
		ExecutionProviders: append([]string(nil), t.ExecutionProviders...),
		FaceSelectorMode:   t.FaceSelectorMode,
		FaceSelectorGender: t.FaceSelectorGender,
		FaceSelectorOrder:  t.FaceSelectorOrder,
		ExtraArgs:          append([]string(nil), t.ExtraArgs...),
	}
}

// Option configures the invoker.
type Option func(*Invoker)

// WithLogDir sets the directory receiving per-invocation tool logs.
func WithLogDir(dir string) Option {
	return func(i *Invoker) {
		i.logDir = strings.TrimSpace(dir)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Invoker) {
		i.logger = logging.NewComponentLogger(logger, "transformer")
	}
}

// Invoker runs the external tool. Calls are serialized.
type Invoker struct {
	settings  Settings
	outputDir string
	logDir    string
	logger    *slog.Logger
	mu        sync.Mutex
}

// New constructs an invoker writing results into outputDir.
func New(settings Settings, outputDir string, opts ...Option) *Invoker {
	inv := &Invoker{
		settings:  settings,
		outputDir: outputDir,
		logger:    logging.NewComponentLogger(nil, "transformer"),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// OutputPath returns where the result for stagedPath is written.
func (i *Invoker) OutputPath(stagedPath string) string {
	return filepath.Join(i.outputDir, filepath.Base(stagedPath))
}

// Done reports whether a non-empty output already exists for stagedPath.
func (i *Invoker) Done(stagedPath string) bool {
	info, err := os.Stat(i.OutputPath(stagedPath))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Args returns the argument vector (excluding the executable) for stagedPath.
func (i *Invoker) Args(stagedPath string) []string {
	s := i.settings
	args := make([]string, 0, 24+len(s.Processors)+len(s.ExecutionProviders)+len(s.ExtraArgs))
	if s.Script != "" {
		args = append(args, s.Script)
	}
	if s.Command != "" {
		args = append(args, s.Command)
	}
	if len(s.Processors) > 0 {
		args = append(args, "--processors")
		args = append(args, s.Processors...)
	}
	if s.TempPath != "" {
		args = append(args, "--temp-path", s.TempPath)
	}
	if len(s.ExecutionProviders) > 0 {
		args = append(args, "--execution-providers")
		args = append(args, s.ExecutionProviders...)
	}
	if s.FaceSelectorMode != "" {
		args = append(args, "--face-selector-mode", s.FaceSelectorMode)
	}
	if s.FaceSelectorGender != "" {
		args = append(args, "--face-selector-gender", s.FaceSelectorGender)
	}
	if s.FaceSelectorOrder != "" {
		args = append(args, "--face-selector-order", s.FaceSelectorOrder)
	}
	args = append(args, s.ExtraArgs...)
	args = append(args,
		"-s", s.ReferenceAsset,
		"-t", stagedPath,
		"-o", i.OutputPath(stagedPath),
	)
	return args
}

// Invoke transforms stagedPath unless its output already exists. It blocks
// until the tool exits; there is no internal timeout.
func (i *Invoker) Invoke(ctx context.Context, stagedPath string) Outcome {
	i.mu.Lock()
	defer i.mu.Unlock()

	outputPath := i.OutputPath(stagedPath)
	name := filepath.Base(stagedPath)
	logger := logging.WithContext(ctx, i.logger).With(
		logging.String(logging.FieldEntry, name),
		logging.String(logging.FieldStage, "transform"),
	)

	if i.Done(stagedPath) {
		logger.Debug("output already present",
			logging.String("output", outputPath),
			logging.String(logging.FieldEventType, "transform_skipped"),
		)
		return Outcome{Status: AlreadyDone, OutputPath: outputPath}
	}

	if err := os.MkdirAll(i.outputDir, 0o755); err != nil {
		return Outcome{Status: Failed, ExitCode: -1, OutputPath: outputPath, Err: fmt.Errorf("ensure output directory: %w", err)}
	}

	args := i.Args(stagedPath)
	sink, logPath, closeSink := i.openToolLog(name)
	defer closeSink()
	fmt.Fprintf(sink, "$ %s %s\n", i.settings.Executable, strings.Join(args, " "))

	cmd := commandContext(ctx, i.settings.Executable, args...) //nolint:gosec
	cmd.Dir = i.settings.WorkingDir
	cmd.Stdout = sink
	cmd.Stderr = sink

	logger.Info("transformer started",
		logging.String("output", outputPath),
		logging.String(logging.FieldEventType, "transform_started"),
	)
	start := time.Now()
	runErr := cmd.Run()
	outcome := Outcome{
		OutputPath: outputPath,
		LogPath:    logPath,
		Duration:   time.Since(start),
	}

	switch {
	case runErr == nil:
		outcome.Status = Succeeded
		if !i.Done(stagedPath) {
			logging.WarnWithContext(logger, "transformer exited cleanly without output", "transform_no_output",
				logging.String("output", outputPath),
				logging.String("tool_log", logPath),
				logging.String(logging.FieldErrorHint, "inspect the tool log; no face may have been detected"),
				logging.String(logging.FieldImpact, "entry is treated as processed without a result file"),
			)
		}
		logger.Info("transformer finished",
			logging.Duration("duration", outcome.Duration),
			logging.String(logging.FieldEventType, "transform_succeeded"),
		)
	default:
		outcome.Status = Failed
		outcome.ExitCode = -1
		outcome.Err = runErr
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			outcome.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			outcome.Err = fmt.Errorf("transformer interrupted: %w", ctxErr)
		}
		logging.ErrorWithContext(logger, "transformer failed", "transform_failed",
			logging.Int(logging.FieldExitCode, outcome.ExitCode),
			logging.Error(outcome.Err),
			logging.String("tool_log", logPath),
			logging.Duration("duration", outcome.Duration),
			logging.String(logging.FieldErrorHint, "inspect the tool log for the failure cause"),
		)
	}
	return outcome
}

func (i *Invoker) openToolLog(name string) (io.Writer, string, func()) {
	if i.logDir == "" {
		return io.Discard, "", func() {}
	}
	if err := os.MkdirAll(i.logDir, 0o755); err != nil {
		logging.WarnWithContext(i.logger, "tool log directory unavailable", "tool_log_unavailable",
			logging.String("path", i.logDir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check log_dir permissions"),
			logging.String(logging.FieldImpact, "tool output is discarded"),
		)
		return io.Discard, "", func() {}
	}
	path := filepath.Join(i.logDir, fmt.Sprintf("%s-%s.log", time.Now().Format("20060102T150405"), sanitize(name)))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logging.WarnWithContext(i.logger, "tool log unavailable", "tool_log_unavailable",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check log_dir permissions"),
			logging.String(logging.FieldImpact, "tool output is discarded"),
		)
		return io.Discard, "", func() {}
	}
	return file, path, func() { _ = file.Close() }
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == 0 || r == '\n' || r == '\r':
			return '_'
		default:
			return r
		}
	}, name)
}
