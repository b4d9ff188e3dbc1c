package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"facewatch/internal/logging"
	"facewatch/internal/pipeline"
)

// ErrLocked is returned when another facewatch process holds the lock.
var ErrLocked = errors.New("another facewatch instance is already running")

// Runner is the loop a daemon drives.
type Runner interface {
	Run(ctx context.Context, scheduler pipeline.Scheduler) error
}

// Daemon runs a pipeline under an exclusive process lock.
type Daemon struct {
	logger    *slog.Logger
	runner    Runner
	scheduler pipeline.Scheduler

	lockPath string
	lock     *flock.Flock
	held     func() error
	unlock   func() error

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	running   atomic.Bool
	startedAt time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	StartedAt    time.Time
	LockFilePath string
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithHeldLock hands the daemon a lock the caller already took with
// AcquireLock. The first Start skips TryLock and calls release when the loop
// exits.
func WithHeldLock(release func() error) Option {
	return func(d *Daemon) { d.held = release }
}

// New constructs a daemon. The lock is not taken until Run or Start.
func New(lockPath string, runner Runner, scheduler pipeline.Scheduler, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if lockPath == "" || runner == nil || scheduler == nil {
		return nil, errors.New("daemon requires lock path, runner, and scheduler")
	}
	d := &Daemon{
		logger:    logging.NewComponentLogger(logger, "daemon"),
		runner:    runner,
		scheduler: scheduler,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run acquires the lock and blocks until the scheduler returns.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	return d.Wait()
}

// Start acquires the lock and runs the scheduler in the background.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	unlock := d.held
	d.held = nil
	if unlock == nil {
		ok, err := d.lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w (lock %s)", ErrLocked, d.lockPath)
		}
		unlock = d.lock.Unlock
	}
	d.unlock = unlock

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.err = nil
	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("facewatch daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)

	go d.loop(runCtx, d.done)
	return nil
}

func (d *Daemon) loop(ctx context.Context, done chan struct{}) {
	err := d.runner.Run(ctx, d.scheduler)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	d.mu.Lock()
	d.err = err
	d.cancel()
	if unlockErr := d.unlock(); unlockErr != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(unlockErr),
			logging.String(logging.FieldErrorHint, "remove the lock file if no facewatch process is running"),
		)
	}
	d.running.Store(false)
	d.mu.Unlock()

	d.logger.Info("facewatch daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	close(done)
}

// Wait blocks until the background loop exits and returns its error.
func (d *Daemon) Wait() error {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Stop cancels the loop, waits for the in-flight cycle to return, and
// releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	_ = d.Wait()
}

// Status reports the current daemon state.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	status := Status{Running: d.running.Load(), LockFilePath: d.lockPath}
	if status.Running {
		status.StartedAt = d.startedAt
	}
	return status
}

// AcquireLock takes the lock at path for a one-off operation that must not
// overlap a running daemon. The returned func releases it.
func AcquireLock(path string) (func() error, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, path)
	}
	return lock.Unlock, nil
}

// IsLocked reports whether some process currently holds the lock at path.
func IsLocked(path string) (bool, error) {
	check := flock.New(path)
	ok, err := check.TryLock()
	if err != nil {
		return false, fmt.Errorf("test lock: %w", err)
	}
	if !ok {
		return true, nil
	}
	if err := check.Unlock(); err != nil {
		return false, fmt.Errorf("release test lock: %w", err)
	}
	return false, nil
}
