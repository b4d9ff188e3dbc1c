package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"facewatch/internal/config"
	"facewatch/internal/convert"
	"facewatch/internal/daemon"
	"facewatch/internal/history"
	"facewatch/internal/ledger"
	"facewatch/internal/logging"
	"facewatch/internal/media"
	"facewatch/internal/notifications"
	"facewatch/internal/pipeline"
	"facewatch/internal/preflight"
	"facewatch/internal/staging"
	"facewatch/internal/transformer"
)

// stalePartialAge is how old an abandoned staging copy must be before
// startup removes it.
const stalePartialAge = time.Hour

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	// Once runs a single cycle and exits instead of polling.
	Once bool
}

// Runtime holds the opened stores and the assembled pipeline.
type Runtime struct {
	Pipeline   *pipeline.Pipeline
	Ledger     *ledger.Ledger
	History    *history.Store
	Invoker    *transformer.Invoker
	Mover      *staging.Mover
	Converter  *convert.Converter
	Classifier media.Classifier
}

// Assemble opens the ledger and attempt history and builds a pipeline for cfg.
// Callers must Close the runtime.
func Assemble(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	seen, err := ledger.Open(cfg.LedgerPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		_ = seen.Close()
		return nil, fmt.Errorf("open attempt history: %w", err)
	}

	classifier := media.NewClassifier(cfg.Watch.VideoExtensions, cfg.Watch.ImageExtensions, cfg.Watch.ConvertExtensions)
	mover := staging.NewMover(cfg.InputDir(), logger)
	converter := convert.New(cfg.Convert.Quality, cfg.Watch.ConvertExtensions, logger)
	invoker := transformer.New(transformer.SettingsFromConfig(cfg), cfg.OutputDir(),
		transformer.WithLogDir(cfg.ToolLogDir()),
		transformer.WithLogger(logger),
	)
	p, err := pipeline.New(pipeline.Options{
		SourceDir:             cfg.Paths.SourceDir,
		WorkDir:               cfg.InputDir(),
		Classifier:            classifier,
		SettleDelay:           cfg.SettleDelay(),
		StabilizeTimeout:      cfg.StabilizeTimeout(),
		StabilizePollInterval: cfg.StabilizePollInterval(),
		Retry:                 history.RetryPolicy{MaxAttempts: cfg.Retry.MaxAttempts, Backoff: cfg.RetryBackoff()},
	}, pipeline.Dependencies{
		Ledger:     seen,
		Stager:     mover,
		Normalizer: converter,
		Invoker:    invoker,
		History:    store,
		Notifier:   notifications.NewService(cfg),
	}, logger)
	if err != nil {
		_ = store.Close()
		_ = seen.Close()
		return nil, fmt.Errorf("assemble pipeline: %w", err)
	}

	return &Runtime{
		Pipeline:   p,
		Ledger:     seen,
		History:    store,
		Invoker:    invoker,
		Mover:      mover,
		Converter:  converter,
		Classifier: classifier,
	}, nil
}

// Close releases the ledger and history handles.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.History != nil {
		errs = append(errs, r.History.Close())
	}
	if r.Ledger != nil {
		errs = append(errs, r.Ledger.Close())
	}
	return errors.Join(errs...)
}

// Run starts the facewatch monitor loop and blocks until SIGINT/SIGTERM, or
// until the single cycle finishes when opts.Once is set.
//
// The instance lock is taken before anything touches shared state, so a
// rejected second instance leaves the running monitor's logs, pid file and
// partial copies alone.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	releaseLock, err := daemon.AcquireLock(cfg.LockPath())
	if err != nil {
		return err
	}
	pidPath := PIDPath(cfg)
	release := func() error {
		_ = os.Remove(pidPath)
		return releaseLock()
	}
	handedOff := false
	defer func() {
		if !handedOff {
			_ = release()
		}
	}()

	logPath := logging.RunLogPath(cfg.Paths.LogDir, time.Now())
	logger, err := logging.NewFromConfig(cfg, opts.LogLevel, logPath)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := logging.LinkCurrentLog(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update facewatch.log link: %v\n", err)
	}
	logging.PruneLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logPath)

	if err := runPreflight(signalCtx, cfg, logger); err != nil {
		return err
	}

	staging.CleanStale(signalCtx, cfg.InputDir(), stalePartialAge, logger)

	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	rt, err := Assemble(cfg, logger)
	if err != nil {
		logger.Error("assemble runtime", logging.Error(err))
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			logger.Warn("close runtime", logging.Error(closeErr))
		}
	}()

	var scheduler pipeline.Scheduler = pipeline.PollScheduler{Interval: cfg.PollInterval()}
	if opts.Once {
		scheduler = pipeline.OnceScheduler{}
	}

	d, err := daemon.New(cfg.LockPath(), rt.Pipeline, scheduler, logger, daemon.WithHeldLock(release))
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	logger.Info("facewatch monitor starting",
		logging.String("source_dir", cfg.Paths.SourceDir),
		logging.String("work_dir", cfg.InputDir()),
		logging.String("output_dir", cfg.OutputDir()),
		logging.String("log_file", logPath),
		logging.Int("ledger_entries", rt.Ledger.Len()),
		logging.Duration("poll_interval", cfg.PollInterval()),
		logging.Bool("once", opts.Once),
		logging.String(logging.FieldEventType, "monitor_starting"),
	)

	handedOff = true
	if err := d.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("facewatch monitor shutting down", logging.String(logging.FieldEventType, "monitor_stopped"))
	return nil
}

// PIDPath returns the file holding the running monitor's process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "facewatch.pid")
}

// ReadPID returns the process id recorded by a running monitor.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(PIDPath(cfg))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}

func runPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	results := preflight.RunAll(ctx, cfg)
	for _, r := range results {
		switch {
		case r.Passed:
			logger.Debug("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
		case r.Required:
			logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldErrorHint, "fix the path or set preflight.strict = false"),
				logging.String(logging.FieldImpact, "transformer runs will fail until resolved"),
			)
		default:
			logging.WarnWithContext(logger, "preflight check degraded", "preflight_degraded",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldImpact, "discovery will retry every cycle"),
			)
		}
	}
	if err := preflight.Evaluate(results, cfg.Preflight.Strict); err != nil {
		logging.ErrorWithContext(logger, "refusing to start", "preflight_strict_abort",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set preflight.strict = false to start anyway"),
		)
		return err
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
