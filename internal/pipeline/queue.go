package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"facewatch/internal/history"
	"facewatch/internal/logging"
	"facewatch/internal/staging"
	"facewatch/internal/transformer"
)

// EntryState is the derived state of a staged work-queue entry.
type EntryState string

const (
	StatePending   EntryState = "pending"
	StateDone      EntryState = "done"
	StateFailed    EntryState = "failed"
	StateDeferred  EntryState = "deferred"
	StateExhausted EntryState = "exhausted"
)

// QueueEntry describes one staged file and what the next cycle will do with it.
type QueueEntry struct {
	Name     string
	Path     string
	Size     int64
	ModTime  time.Time
	State    EntryState
	Attempts int
	LastExit int
	LastErr  string
}

// Queue lists the supported entries of the work queue with their state.
// Nothing is invoked.
func (p *Pipeline) Queue(ctx context.Context) ([]QueueEntry, error) {
	entries, err := staging.ListEntries(p.opts.WorkDir)
	if err != nil {
		return nil, err
	}
	out := make([]QueueEntry, 0, len(entries))
	for _, entry := range entries {
		if !p.opts.Classifier.Classify(entry.Name).Supported() {
			continue
		}
		item := QueueEntry{
			Name:    entry.Name,
			Path:    entry.Path,
			Size:    entry.Size,
			ModTime: entry.ModTime,
			State:   StatePending,
		}
		if p.deps.History != nil {
			ref := refFor(p.logger, entry.Path)
			summary, err := p.deps.History.Summary(ctx, ref.name, ref.generation)
			if err != nil {
				return nil, fmt.Errorf("summarize %s: %w", entry.Name, err)
			}
			item.Attempts = summary.Attempts
			item.LastExit = summary.LastExitCode
			item.LastErr = summary.LastError
			item.State = stateFor(p.opts.Retry.Decide(summary, p.now()), summary)
		}
		if p.deps.Invoker.Done(entry.Path) {
			item.State = StateDone
		}
		out = append(out, item)
	}
	return out, nil
}

func stateFor(decision history.Decision, summary history.Summary) EntryState {
	switch {
	case decision == history.Exhausted:
		return StateExhausted
	case decision == history.Deferred:
		return StateDeferred
	case summary.LastOutcome == history.OutcomeFailed:
		return StateFailed
	default:
		return StatePending
	}
}

// ProcessStaged runs the transformer on one work-queue entry outside the
// cycle. The retry policy is not consulted; the attempt is recorded as
// manual.
func (p *Pipeline) ProcessStaged(ctx context.Context, stagedPath string) transformer.Outcome {
	logger := logging.WithContext(ctx, p.logger).With(
		logging.String(logging.FieldStage, "manual"),
		logging.String(logging.FieldEntry, filepath.Base(stagedPath)),
	)
	ref := refFor(logger, stagedPath)
	started := p.now()
	outcome := p.deps.Invoker.Invoke(ctx, stagedPath)
	p.recordAttempt(ctx, logger, history.PhaseManual, ref, "", started, outcome)
	return outcome
}
