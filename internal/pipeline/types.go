package pipeline

import (
	"context"
	"time"

	"facewatch/internal/convert"
	"facewatch/internal/history"
	"facewatch/internal/media"
	"facewatch/internal/notifications"
	"facewatch/internal/transformer"
)

// Ledger is the processed-set used for discovery.
type Ledger interface {
	Contains(id string) bool
	Record(id string) error
}

// Stager copies a source file into the work queue.
type Stager interface {
	Stage(sourcePath string) (string, error)
}

// Normalizer converts non-canonical raster images.
type Normalizer interface {
	Normalize(sourcePath string) (convert.Result, error)
}

// Invoker runs the external transformer.
type Invoker interface {
	Invoke(ctx context.Context, stagedPath string) transformer.Outcome
	Done(stagedPath string) bool
}

// History stores and summarizes transformer attempts.
type History interface {
	RecordAttempt(ctx context.Context, a history.Attempt) (int64, error)
	Summary(ctx context.Context, stagedName, generation string) (history.Summary, error)
}

// Notifier publishes attempt outcomes.
type Notifier interface {
	Publish(ctx context.Context, event notifications.Event, payload notifications.Payload) error
}

// Options carries static pipeline settings.
type Options struct {
	SourceDir             string
	WorkDir               string
	Classifier            media.Classifier
	SettleDelay           time.Duration
	StabilizeTimeout      time.Duration
	StabilizePollInterval time.Duration
	Retry                 history.RetryPolicy
}

// Dependencies groups the collaborators a pipeline drives. History and
// Notifier are optional.
type Dependencies struct {
	Ledger     Ledger
	Stager     Stager
	Normalizer Normalizer
	Invoker    Invoker
	History    History
	Notifier   Notifier
}

// DrainReport summarizes Phase A.
type DrainReport struct {
	Listed      int
	AlreadyDone int
	Succeeded   int
	Failed      int
	Deferred    int
	Exhausted   int
	Err         error
}

// DiscoverReport summarizes Phase B.
type DiscoverReport struct {
	Listed            int
	New               int
	Skipped           int
	Vanished          int
	Converted         int
	Staged            int
	StabilizeTimeouts int
	AlreadyDone       int
	Succeeded         int
	Failed            int
	Err               error
}

// CycleReport summarizes one full cycle.
type CycleReport struct {
	CycleID    string
	StartedAt  time.Time
	FinishedAt time.Time
	Drain      DrainReport
	Discover   DiscoverReport
}
