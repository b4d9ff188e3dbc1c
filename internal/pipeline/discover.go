package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"facewatch/internal/fileutil"
	"facewatch/internal/history"
	"facewatch/internal/ledger"
	"facewatch/internal/logging"
	"facewatch/internal/media"
	"facewatch/internal/transformer"
)

// Discover lists the source location and processes every entry the ledger
// has not seen. A listing failure is logged and ends the phase.
func (p *Pipeline) Discover(ctx context.Context) DiscoverReport {
	var report DiscoverReport
	logger := logging.WithContext(ctx, p.logger).With(logging.String(logging.FieldStage, "discover"))

	entries, err := os.ReadDir(p.opts.SourceDir)
	if err != nil {
		report.Err = err
		logging.WarnWithContext(logger, "source location unavailable", "source_list_failed",
			logging.String("path", p.opts.SourceDir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the source volume is mounted and readable"),
			logging.String(logging.FieldImpact, "new files are picked up once the source is reachable"),
		)
		return report
	}
	report.Listed = len(entries)

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		name := entry.Name()
		if err := ledger.Validate(name); err != nil {
			p.ignoreOnce(logger, name, err)
			continue
		}
		id := ledger.Normalize(name)
		if p.deps.Ledger.Contains(id) {
			continue
		}
		report.New++
		p.processEntry(ctx, logger.With(logging.String(logging.FieldEntry, id)), name, id, &report)
	}
	return report
}

func (p *Pipeline) processEntry(ctx context.Context, logger *slog.Logger, name, id string, report *DiscoverReport) {
	path := filepath.Join(p.opts.SourceDir, name)
	kind := p.opts.Classifier.Classify(name)

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		report.Vanished++
		logger.Debug("entry vanished before inspection", logging.String(logging.FieldEventType, "entry_vanished"))
		return
	case err != nil:
		p.skip(logger, id, report, "stat failed", logging.Error(err))
		return
	case !info.Mode().IsRegular():
		p.skip(logger, id, report, "not a regular file")
		return
	case !kind.Supported():
		p.skip(logger, id, report, "unsupported extension")
		return
	}

	if !p.sleep(ctx, p.opts.SettleDelay) {
		return
	}

	info, err = os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		report.Vanished++
		logger.Info("entry vanished during settle delay",
			logging.String(logging.FieldEventType, "entry_vanished"),
		)
		return
	case err != nil:
		p.skip(logger, id, report, "stat failed", logging.Error(err))
		return
	case info.Size() == 0:
		p.skip(logger, id, report, "zero-byte file")
		return
	}
	size := info.Size()

	if kind == media.RasterConvert {
		result, err := p.deps.Normalizer.Normalize(path)
		switch {
		case err != nil:
			logging.WarnWithContext(logger, "image conversion failed", "convert_failed",
				logging.String(logging.FieldStage, "convert"),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the file is a valid image"),
				logging.String(logging.FieldImpact, "entry is marked seen and not processed"),
			)
			p.markSeen(logger, id)
			report.Skipped++
			return
		case result.Superseded:
			logger.Info("image superseded by existing jpeg",
				logging.String(logging.FieldStage, "convert"),
				logging.String(logging.FieldEventType, "convert_superseded"),
			)
			p.markSeen(logger, id)
			report.Skipped++
			return
		case result.Converted:
			report.Converted++
			p.markSeen(logger, id)
			path = result.Path
			id = ledger.Normalize(filepath.Base(path))
			logger = logger.With(logging.String("converted_to", id))
			converted, err := os.Stat(path)
			if err != nil {
				p.skip(logger, id, report, "converted image unreadable", logging.Error(err))
				return
			}
			size = converted.Size()
		}
	}

	staged, err := p.deps.Stager.Stage(path)
	if err != nil {
		logging.ErrorWithContext(logger, "staging failed", "stage_failed",
			logging.String(logging.FieldStage, "stage"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check free space and permissions in the work directory"),
		)
		p.markSeen(logger, id)
		report.Skipped++
		return
	}
	report.Staged++

	if !fileutil.AwaitStable(ctx, staged, size, p.opts.StabilizeTimeout, p.opts.StabilizePollInterval) {
		if ctx.Err() == nil {
			report.StabilizeTimeouts++
			logging.WarnWithContext(logger, "staged copy did not stabilize", "stabilize_timeout",
				logging.String(logging.FieldStage, "stabilize"),
				logging.String("staged", staged),
				logging.Int64("expected_size", size),
				logging.Duration("timeout", p.opts.StabilizeTimeout),
				logging.String(logging.FieldErrorHint, "the source may still be growing; re-add it with 'facewatch queue add'"),
				logging.String(logging.FieldImpact, "entry is marked seen; the staged copy stays in the queue"),
			)
		} else {
			logger.Info("shutdown while awaiting staged copy; queue drain will pick it up",
				logging.String(logging.FieldStage, "stabilize"),
				logging.String("staged", staged),
				logging.String(logging.FieldEventType, "stabilize_interrupted"),
			)
		}
		// Stage only publishes finished copies, so the staged entry is owned
		// by the queue from here on. Recording the source keeps the next run
		// from staging it a second time.
		p.markSeen(logger, id)
		return
	}

	ref := refFor(logger, staged)
	started := p.now()
	outcome := p.deps.Invoker.Invoke(ctx, staged)
	p.recordAttempt(ctx, logger, history.PhaseDiscover, ref, id, started, outcome)
	switch outcome.Status {
	case transformer.AlreadyDone:
		report.AlreadyDone++
	case transformer.Succeeded:
		report.Succeeded++
	default:
		report.Failed++
	}
	p.markSeen(logger, id)
}

func (p *Pipeline) skip(logger *slog.Logger, id string, report *DiscoverReport, reason string, attrs ...logging.Attr) {
	report.Skipped++
	attrs = append(attrs,
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "entry_skipped"),
	)
	logger.Info("entry skipped permanently", logging.Args(attrs...)...)
	p.markSeen(logger, id)
}

func (p *Pipeline) markSeen(logger *slog.Logger, id string) {
	if err := p.deps.Ledger.Record(id); err != nil {
		logging.ErrorWithContext(logger, "ledger append failed", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check seen_files.log permissions and disk space"),
		)
	}
}

func (p *Pipeline) ignoreOnce(logger *slog.Logger, name string, err error) {
	if _, ok := p.ignored[name]; ok {
		return
	}
	p.ignored[name] = struct{}{}
	logging.WarnWithContext(logger, "source name cannot be tracked", "entry_name_invalid",
		logging.String(logging.FieldEntry, name),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "rename the file without line breaks or NUL characters"),
		logging.String(logging.FieldImpact, "entry is ignored until renamed"),
	)
}
