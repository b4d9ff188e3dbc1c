package pipeline

import (
	"context"

	"facewatch/internal/history"
	"facewatch/internal/logging"
	"facewatch/internal/staging"
	"facewatch/internal/transformer"
)

// DrainQueue hands every supported entry in the work queue to the
// transformer. It does not depend on the source location.
func (p *Pipeline) DrainQueue(ctx context.Context) DrainReport {
	var report DrainReport
	logger := logging.WithContext(ctx, p.logger).With(logging.String(logging.FieldStage, "drain"))

	entries, err := staging.ListEntries(p.opts.WorkDir)
	if err != nil {
		report.Err = err
		logging.WarnWithContext(logger, "work queue listing failed", "queue_list_failed",
			logging.String("path", p.opts.WorkDir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the work directory exists and is readable"),
			logging.String(logging.FieldImpact, "queued entries wait for the next cycle"),
		)
		return report
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !p.opts.Classifier.Classify(entry.Name).Supported() {
			continue
		}
		report.Listed++
		entryLogger := logger.With(logging.String(logging.FieldEntry, entry.Name))

		if p.deps.Invoker.Done(entry.Path) {
			report.AlreadyDone++
			continue
		}

		ref := refFor(entryLogger, entry.Path)
		if p.deps.History != nil {
			summary, err := p.deps.History.Summary(ctx, ref.name, ref.generation)
			if err != nil {
				logging.WarnWithContext(entryLogger, "attempt history unavailable", "history_read_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check history.db"),
					logging.String(logging.FieldImpact, "entry is retried without consulting the retry policy"),
				)
			} else {
				switch p.opts.Retry.Decide(summary, p.now()) {
				case history.Exhausted:
					report.Exhausted++
					entryLogger.Debug("retry budget exhausted",
						logging.Int("attempts", summary.Attempts),
						logging.Int(logging.FieldExitCode, summary.LastExitCode),
						logging.String(logging.FieldEventType, "queue_entry_exhausted"),
					)
					continue
				case history.Deferred:
					report.Deferred++
					entryLogger.Debug("retry deferred",
						logging.Int("attempts", summary.Attempts),
						logging.Duration("backoff", p.opts.Retry.Backoff),
						logging.String(logging.FieldEventType, "queue_entry_deferred"),
					)
					continue
				}
			}
		}

		started := p.now()
		outcome := p.deps.Invoker.Invoke(ctx, entry.Path)
		p.recordAttempt(ctx, entryLogger, history.PhaseDrain, ref, "", started, outcome)
		switch outcome.Status {
		case transformer.AlreadyDone:
			report.AlreadyDone++
		case transformer.Succeeded:
			report.Succeeded++
		default:
			report.Failed++
		}
	}
	return report
}
