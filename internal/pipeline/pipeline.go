package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"facewatch/internal/fileutil"
	"facewatch/internal/history"
	"facewatch/internal/logging"
	"facewatch/internal/notifications"
	"facewatch/internal/transformer"
)

// Pipeline owns the per-cycle processing state.
type Pipeline struct {
	opts   Options
	deps   Dependencies
	logger *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool

	// ignored holds source names that can never be written to the ledger.
	// They are reported once per process.
	ignored map[string]struct{}

	mu      sync.RWMutex
	last    CycleReport
	hasLast bool
}

// New constructs a pipeline.
func New(opts Options, deps Dependencies, logger *slog.Logger) (*Pipeline, error) {
	switch {
	case deps.Ledger == nil:
		return nil, errors.New("pipeline: ledger is required")
	case deps.Stager == nil:
		return nil, errors.New("pipeline: stager is required")
	case deps.Normalizer == nil:
		return nil, errors.New("pipeline: normalizer is required")
	case deps.Invoker == nil:
		return nil, errors.New("pipeline: invoker is required")
	}
	return &Pipeline{
		opts:    opts,
		deps:    deps,
		logger:  logging.NewComponentLogger(logger, "pipeline"),
		now:     time.Now,
		sleep:   sleepContext,
		ignored: make(map[string]struct{}),
	}, nil
}

// RunCycle runs Phase A then Phase B and returns their summary.
func (p *Pipeline) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{CycleID: uuid.NewString(), StartedAt: p.now()}
	ctx = logging.WithCycleID(ctx, report.CycleID)
	logger := logging.WithContext(ctx, p.logger)

	logger.Debug("cycle started", logging.String(logging.FieldEventType, "cycle_started"))

	report.Drain = p.DrainQueue(ctx)
	if ctx.Err() == nil {
		report.Discover = p.Discover(ctx)
	}
	report.FinishedAt = p.now()

	p.mu.Lock()
	p.last = report
	p.hasLast = true
	p.mu.Unlock()

	level := slog.LevelDebug
	if report.Drain.Succeeded+report.Drain.Failed+report.Discover.New > 0 {
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, "cycle finished",
		logging.Int("queue_listed", report.Drain.Listed),
		logging.Int("queue_succeeded", report.Drain.Succeeded),
		logging.Int("queue_failed", report.Drain.Failed),
		logging.Int("queue_deferred", report.Drain.Deferred),
		logging.Int("queue_exhausted", report.Drain.Exhausted),
		logging.Int("discovered", report.Discover.New),
		logging.Int("staged", report.Discover.Staged),
		logging.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
		logging.String(logging.FieldEventType, "cycle_finished"),
	)
	return report
}

// Run drives RunCycle with scheduler until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, scheduler Scheduler) error {
	return scheduler.Run(ctx, func(ctx context.Context) {
		p.RunCycle(ctx)
	})
}

// LastReport returns the most recent cycle summary.
func (p *Pipeline) LastReport() (CycleReport, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.hasLast
}

// stagedRef names a staged file together with the identity of the bytes it
// held when the transformer ran.
type stagedRef struct {
	name       string
	generation string
}

// refFor identifies the staged file at path. A file that cannot be stat'ed
// gets an empty generation, which matches every attempt under its name.
func refFor(logger *slog.Logger, path string) stagedRef {
	ref := stagedRef{name: filepath.Base(path)}
	generation, err := fileutil.Identity(path)
	if err != nil {
		logger.Debug("staged file identity unavailable", logging.Error(err))
		return ref
	}
	ref.generation = generation
	return ref
}

func (p *Pipeline) recordAttempt(ctx context.Context, logger *slog.Logger, phase history.Phase, staged stagedRef, sourceID string, started time.Time, outcome transformer.Outcome) {
	if outcome.Status == transformer.AlreadyDone {
		return
	}
	// The attempt happened even if ctx was cancelled meanwhile.
	ctx = context.WithoutCancel(ctx)
	if p.deps.History != nil {
		attempt := history.Attempt{
			StagedName: staged.name,
			Generation: staged.generation,
			SourceID:   sourceID,
			Phase:      phase,
			Outcome:    history.OutcomeSucceeded,
			ExitCode:   outcome.ExitCode,
			StartedAt:  started,
			FinishedAt: p.now(),
		}
		if id, ok := logging.CycleIDFromContext(ctx); ok {
			attempt.CycleID = id
		}
		if outcome.Status == transformer.Failed {
			attempt.Outcome = history.OutcomeFailed
			if outcome.Err != nil {
				attempt.Error = outcome.Err.Error()
			}
		}
		if _, err := p.deps.History.RecordAttempt(ctx, attempt); err != nil {
			logging.WarnWithContext(logger, "attempt history write failed", "history_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check history.db permissions and disk space"),
				logging.String(logging.FieldImpact, "retry policy may allow an extra attempt for this entry"),
			)
		}
	}
	p.notifyAttempt(ctx, logger, staged, outcome)
}

func (p *Pipeline) notifyAttempt(ctx context.Context, logger *slog.Logger, staged stagedRef, outcome transformer.Outcome) {
	if p.deps.Notifier == nil {
		return
	}
	payload := notifications.Payload{"entry": staged.name}
	if outcome.Status == transformer.Succeeded {
		payload["output"] = outcome.OutputPath
		p.publish(ctx, logger, notifications.EventEntryCompleted, payload)
		return
	}

	payload["exitCode"] = strconv.Itoa(outcome.ExitCode)
	payload["log"] = outcome.LogPath
	if outcome.Err != nil {
		payload["error"] = outcome.Err.Error()
	}
	p.publish(ctx, logger, notifications.EventEntryFailed, payload)

	if p.deps.History == nil || p.opts.Retry.MaxAttempts <= 0 {
		return
	}
	summary, err := p.deps.History.Summary(ctx, staged.name, staged.generation)
	if err != nil {
		return
	}
	if p.opts.Retry.Decide(summary, p.now()) == history.Exhausted {
		p.publish(ctx, logger, notifications.EventRetriesExhausted, notifications.Payload{
			"entry":    staged.name,
			"attempts": strconv.Itoa(summary.Attempts),
			"error":    summary.LastError,
		})
	}
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := p.deps.Notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network reachability"),
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
