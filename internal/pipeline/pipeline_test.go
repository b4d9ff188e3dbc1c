package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"facewatch/internal/convert"
	"facewatch/internal/history"
	"facewatch/internal/ledger"
	"facewatch/internal/logging"
	"facewatch/internal/media"
	"facewatch/internal/staging"
	"facewatch/internal/transformer"
)

type fakeInvoker struct {
	outputDir string
	fail      bool
	calls     []string
}

func (f *fakeInvoker) outputPath(staged string) string {
	return filepath.Join(f.outputDir, filepath.Base(staged))
}

func (f *fakeInvoker) Done(staged string) bool {
	info, err := os.Stat(f.outputPath(staged))
	return err == nil && info.Size() > 0
}

func (f *fakeInvoker) Invoke(_ context.Context, staged string) transformer.Outcome {
	out := f.outputPath(staged)
	if f.Done(staged) {
		return transformer.Outcome{Status: transformer.AlreadyDone, OutputPath: out}
	}
	f.calls = append(f.calls, filepath.Base(staged))
	if f.fail {
		return transformer.Outcome{Status: transformer.Failed, ExitCode: 1, OutputPath: out, Err: errors.New("exit status 1")}
	}
	if err := os.WriteFile(out, []byte("swapped"), 0o644); err != nil {
		return transformer.Outcome{Status: transformer.Failed, ExitCode: -1, Err: err}
	}
	return transformer.Outcome{Status: transformer.Succeeded, OutputPath: out}
}

type env struct {
	t          *testing.T
	root       string
	sourceDir  string
	workDir    string
	outputDir  string
	ledgerPath string
	ledger     *ledger.Ledger
	invoker    *fakeInvoker
	history    *history.Store
	notifier   Notifier
	pipeline   *Pipeline
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	e := &env{
		t:          t,
		root:       root,
		sourceDir:  filepath.Join(root, "source"),
		workDir:    filepath.Join(root, "input"),
		outputDir:  filepath.Join(root, "output"),
		ledgerPath: filepath.Join(root, "seen_files.log"),
	}
	for _, dir := range []string{e.sourceDir, e.workDir, e.outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	e.invoker = &fakeInvoker{outputDir: e.outputDir}
	e.reopen(history.RetryPolicy{})
	return e
}

// reopen simulates a process restart: the ledger is replayed from disk.
func (e *env) reopen(policy history.RetryPolicy) {
	e.t.Helper()
	if e.ledger != nil {
		_ = e.ledger.Close()
	}
	l, err := ledger.Open(e.ledgerPath, logging.NewNop())
	if err != nil {
		e.t.Fatal(err)
	}
	e.ledger = l
	e.t.Cleanup(func() { _ = l.Close() })

	deps := Dependencies{
		Ledger:     l,
		Stager:     staging.NewMover(e.workDir, logging.NewNop()),
		Normalizer: convert.New(90, []string{".png"}, logging.NewNop()),
		Invoker:    e.invoker,
	}
	if e.history != nil {
		deps.History = e.history
	}
	if e.notifier != nil {
		deps.Notifier = e.notifier
	}
	p, err := New(Options{
		SourceDir:             e.sourceDir,
		WorkDir:               e.workDir,
		Classifier:            media.NewClassifier(media.DefaultVideoExtensions, media.DefaultImageExtensions, media.DefaultConvertExtensions),
		StabilizeTimeout:      time.Second,
		StabilizePollInterval: 10 * time.Millisecond,
		Retry:                 policy,
	}, deps, logging.NewNop())
	if err != nil {
		e.t.Fatal(err)
	}
	e.pipeline = p
}

func (e *env) withHistory(policy history.RetryPolicy) {
	e.t.Helper()
	store, err := history.Open(filepath.Join(e.root, "history.db"))
	if err != nil {
		e.t.Fatal(err)
	}
	e.t.Cleanup(func() { _ = store.Close() })
	e.history = store
	e.reopen(policy)
}

func (e *env) writeSource(name string, data []byte) string {
	e.t.Helper()
	path := filepath.Join(e.sourceDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		e.t.Fatal(err)
	}
	return path
}

func (e *env) ledgerLines() []string {
	e.t.Helper()
	data, err := os.ReadFile(e.ledgerPath)
	if err != nil {
		e.t.Fatal(err)
	}
	return strings.Fields(string(data))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestDiscoverStagesAndTransforms(t *testing.T) {
	e := newEnv(t)
	e.writeSource("clip.mp4", []byte("frames"))

	report := e.pipeline.RunCycle(context.Background())

	if report.CycleID == "" {
		t.Fatal("expected cycle id")
	}
	if report.Discover.New != 1 || report.Discover.Staged != 1 || report.Discover.Succeeded != 1 {
		t.Fatalf("unexpected discover report %+v", report.Discover)
	}
	if len(e.invoker.calls) != 1 || e.invoker.calls[0] != "clip.mp4" {
		t.Fatalf("unexpected invocations %v", e.invoker.calls)
	}
	if !e.ledger.Contains("clip.mp4") {
		t.Fatal("source should be recorded")
	}
	if !exists(filepath.Join(e.workDir, "clip.mp4")) || !exists(filepath.Join(e.outputDir, "clip.mp4")) {
		t.Fatal("expected staged copy and output")
	}
	if !exists(filepath.Join(e.sourceDir, "clip.mp4")) {
		t.Fatal("source files are never removed")
	}
	if last, ok := e.pipeline.LastReport(); !ok || last.CycleID != report.CycleID {
		t.Fatalf("LastReport = %+v, %v", last, ok)
	}
}

func TestCycleIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.writeSource("a.mp4", []byte("aaa"))
	e.writeSource("b.jpg", []byte("bbb"))

	e.pipeline.RunCycle(context.Background())
	calls := len(e.invoker.calls)
	lines := len(e.ledgerLines())

	report := e.pipeline.RunCycle(context.Background())
	if len(e.invoker.calls) != calls {
		t.Fatalf("second cycle invoked the transformer: %v", e.invoker.calls)
	}
	if got := len(e.ledgerLines()); got != lines {
		t.Fatalf("ledger grew from %d to %d", lines, got)
	}
	if report.Discover.New != 0 || report.Drain.AlreadyDone != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestAtMostOnceAcrossRestarts(t *testing.T) {
	e := newEnv(t)
	e.writeSource("clip.mp4", []byte("frames"))
	e.pipeline.RunCycle(context.Background())

	for i := 0; i < 3; i++ {
		e.reopen(history.RetryPolicy{})
		e.pipeline.RunCycle(context.Background())
	}
	if len(e.invoker.calls) != 1 {
		t.Fatalf("transformer invoked %d times, want 1", len(e.invoker.calls))
	}
	entries, _ := staging.ListEntries(e.workDir)
	if len(entries) != 1 {
		t.Fatalf("expected a single staged copy, got %+v", entries)
	}
}

func TestZeroByteEntryIsPermanentlySkipped(t *testing.T) {
	e := newEnv(t)
	e.writeSource("empty.mp4", nil)

	report := e.pipeline.RunCycle(context.Background())
	if report.Discover.Skipped != 1 || report.Discover.Staged != 0 {
		t.Fatalf("unexpected report %+v", report.Discover)
	}
	if !e.ledger.Contains("empty.mp4") {
		t.Fatal("zero-byte entry should be recorded")
	}

	// Content arriving later does not bring it back.
	e.writeSource("empty.mp4", []byte("late"))
	report = e.pipeline.RunCycle(context.Background())
	if report.Discover.New != 0 {
		t.Fatalf("zero-byte entry reappeared in discovery: %+v", report.Discover)
	}
	if len(e.invoker.calls) != 0 {
		t.Fatalf("unexpected invocations %v", e.invoker.calls)
	}
	entries, _ := staging.ListEntries(e.workDir)
	if len(entries) != 0 {
		t.Fatalf("nothing should be staged, got %+v", entries)
	}
}

func TestUnsupportedAndDirectoriesAreRecorded(t *testing.T) {
	e := newEnv(t)
	e.writeSource("notes.txt", []byte("text"))
	if err := os.Mkdir(filepath.Join(e.sourceDir, "album.mp4"), 0o755); err != nil {
		t.Fatal(err)
	}

	report := e.pipeline.RunCycle(context.Background())
	if report.Discover.Skipped != 2 {
		t.Fatalf("unexpected report %+v", report.Discover)
	}
	if !e.ledger.Contains("notes.txt") || !e.ledger.Contains("album.mp4") {
		t.Fatal("permanent skips must be recorded")
	}
	if len(e.invoker.calls) != 0 {
		t.Fatal("no invocation expected")
	}
}

func TestPNGScenario(t *testing.T) {
	e := newEnv(t)
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: 90, A: 200})
		}
	}
	f, err := os.Create(filepath.Join(e.sourceDir, "photo.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	report := e.pipeline.RunCycle(context.Background())

	if report.Discover.Converted != 1 || report.Discover.Succeeded != 1 {
		t.Fatalf("unexpected report %+v", report.Discover)
	}
	if exists(filepath.Join(e.sourceDir, "photo.png")) {
		t.Fatal("photo.png should be deleted")
	}
	if !exists(filepath.Join(e.sourceDir, "photo.jpg")) {
		t.Fatal("photo.jpg should exist at the source location")
	}
	lines := e.ledgerLines()
	if len(lines) != 2 || lines[0] != "photo.png" || lines[1] != "photo.jpg" {
		t.Fatalf("unexpected ledger %v", lines)
	}
	entries, _ := staging.ListEntries(e.workDir)
	if len(entries) != 1 || entries[0].Name != "photo.jpg" {
		t.Fatalf("unexpected staged entries %+v", entries)
	}
	info, err := os.Stat(filepath.Join(e.outputDir, entries[0].Name))
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected non-empty output, err=%v", err)
	}
}

func TestSupersededPNGIsRecorded(t *testing.T) {
	e := newEnv(t)
	e.writeSource("shot.jpg", []byte("jpeg"))
	e.pipeline.RunCycle(context.Background())

	e.writeSource("shot.png", []byte("png bytes"))
	report := e.pipeline.RunCycle(context.Background())
	if report.Discover.New != 1 || report.Discover.Skipped != 1 || report.Discover.Staged != 0 {
		t.Fatalf("unexpected report %+v", report.Discover)
	}
	if exists(filepath.Join(e.sourceDir, "shot.png")) {
		t.Fatal("superseded png should be removed")
	}
	if !e.ledger.Contains("shot.png") {
		t.Fatal("superseded png should be recorded")
	}
}

func TestAlreadyDoneScenario(t *testing.T) {
	e := newEnv(t)
	if err := os.WriteFile(filepath.Join(e.workDir, "clip_2.mp4"), []byte("staged"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(e.outputDir, "clip_2.mp4"), []byte("done"), 0o644); err != nil {
		t.Fatal(err)
	}

	report := e.pipeline.DrainQueue(context.Background())
	if report.Listed != 1 || report.AlreadyDone != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(e.invoker.calls) != 0 {
		t.Fatalf("no subprocess call expected, got %v", e.invoker.calls)
	}
}

func TestCollisionFreeStaging(t *testing.T) {
	e := newEnv(t)

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		dir := filepath.Join(e.root, fmt.Sprintf("camera%d", i))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		src := filepath.Join(dir, "clip.mp4")
		if err := os.WriteFile(src, []byte{byte(i + 1)}, 0o644); err != nil {
			t.Fatal(err)
		}
		staged, err := e.pipeline.deps.Stager.Stage(src)
		if err != nil {
			t.Fatal(err)
		}
		if seen[staged] {
			t.Fatalf("staged path %s reused", staged)
		}
		seen[staged] = true
		data, err := os.ReadFile(staged)
		if err != nil || len(data) != 1 || data[0] != byte(i+1) {
			t.Fatalf("staged copy %s was overwritten: %v %v", staged, data, err)
		}
	}
	for _, want := range []string{"clip.mp4", "clip_2.mp4", "clip_3.mp4"} {
		if !seen[filepath.Join(e.workDir, want)] {
			t.Fatalf("missing staged entry %s in %v", want, seen)
		}
	}
}

func TestNewSourceCollidingWithPendingEntry(t *testing.T) {
	e := newEnv(t)
	if err := os.WriteFile(filepath.Join(e.workDir, "clip.mp4"), []byte("older"), 0o644); err != nil {
		t.Fatal(err)
	}
	e.withHistory(history.RetryPolicy{MaxAttempts: 1})
	if _, err := e.history.RecordAttempt(context.Background(), history.Attempt{StagedName: "clip.mp4", Outcome: history.OutcomeFailed}); err != nil {
		t.Fatal(err)
	}
	e.writeSource("clip.mp4", []byte("newer"))

	report := e.pipeline.RunCycle(context.Background())
	if report.Drain.Exhausted != 1 || report.Discover.Succeeded != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(e.invoker.calls) != 1 || e.invoker.calls[0] != "clip_2.mp4" {
		t.Fatalf("unexpected invocations %v", e.invoker.calls)
	}
	older, _ := os.ReadFile(filepath.Join(e.workDir, "clip.mp4"))
	if string(older) != "older" {
		t.Fatal("pending entry was overwritten")
	}
}

func TestSourceUnavailableStillDrainsQueue(t *testing.T) {
	e := newEnv(t)
	if err := os.WriteFile(filepath.Join(e.workDir, "pending.mp4"), []byte("staged"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(e.sourceDir); err != nil {
		t.Fatal(err)
	}

	report := e.pipeline.RunCycle(context.Background())
	if report.Discover.Err == nil {
		t.Fatal("expected discover error for missing source")
	}
	if report.Drain.Succeeded != 1 || len(e.invoker.calls) != 1 {
		t.Fatalf("queue should drain without the source: %+v", report.Drain)
	}
}

func TestVanishedDuringSettleIsNotRecorded(t *testing.T) {
	e := newEnv(t)
	path := e.writeSource("clip.mp4", []byte("frames"))
	e.pipeline.opts.SettleDelay = time.Millisecond
	e.pipeline.sleep = func(ctx context.Context, d time.Duration) bool {
		_ = os.Remove(path)
		return true
	}

	report := e.pipeline.RunCycle(context.Background())
	if report.Discover.Vanished != 1 {
		t.Fatalf("unexpected report %+v", report.Discover)
	}
	if e.ledger.Contains("clip.mp4") {
		t.Fatal("vanished entry must stay eligible")
	}
}

type failingStager struct{}

func (failingStager) Stage(string) (string, error) { return "", errors.New("disk full") }

func TestStageFailureIsRecorded(t *testing.T) {
	e := newEnv(t)
	e.writeSource("clip.mp4", []byte("frames"))
	e.pipeline.deps.Stager = failingStager{}

	report := e.pipeline.RunCycle(context.Background())
	if report.Discover.Skipped != 1 || len(e.invoker.calls) != 0 {
		t.Fatalf("unexpected report %+v", report.Discover)
	}
	if !e.ledger.Contains("clip.mp4") {
		t.Fatal("copy failures are permanent skips")
	}
}

type truncatingStager struct{ dir string }

func (s truncatingStager) Stage(src string) (string, error) {
	dest := filepath.Join(s.dir, filepath.Base(src))
	return dest, os.WriteFile(dest, []byte("x"), 0o644)
}

func TestStabilizeTimeoutIsRecorded(t *testing.T) {
	e := newEnv(t)
	e.writeSource("clip.mp4", []byte("frames"))
	e.pipeline.deps.Stager = truncatingStager{dir: e.workDir}
	e.pipeline.opts.StabilizeTimeout = 50 * time.Millisecond

	report := e.pipeline.Discover(context.Background())
	if report.StabilizeTimeouts != 1 || len(e.invoker.calls) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !e.ledger.Contains("clip.mp4") {
		t.Fatal("stabilization timeout is a permanent skip")
	}
}

type cancellingStager struct {
	truncatingStager
	cancel context.CancelFunc
}

func (s cancellingStager) Stage(src string) (string, error) {
	dest, err := s.truncatingStager.Stage(src)
	s.cancel()
	return dest, err
}

func TestShutdownDuringStabilizeHandsEntryToQueue(t *testing.T) {
	e := newEnv(t)
	e.writeSource("clip.mp4", []byte("frames"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.pipeline.deps.Stager = cancellingStager{truncatingStager: truncatingStager{dir: e.workDir}, cancel: cancel}
	e.pipeline.opts.StabilizeTimeout = time.Minute

	report := e.pipeline.Discover(ctx)
	if report.StabilizeTimeouts != 0 || report.Staged != 1 || len(e.invoker.calls) != 0 {
		t.Fatalf("unexpected report %+v calls=%v", report, e.invoker.calls)
	}
	if !e.ledger.Contains("clip.mp4") {
		t.Fatal("source must be recorded so a restart does not stage it twice")
	}
	if !exists(filepath.Join(e.workDir, "clip.mp4")) {
		t.Fatal("staged copy must stay in the queue")
	}

	next := e.pipeline.RunCycle(context.Background())
	if next.Drain.Succeeded != 1 || next.Discover.New != 0 {
		t.Fatalf("expected queue drain to take the entry, got drain=%+v discover=%+v", next.Drain, next.Discover)
	}
}

func TestTransformerFailureRecordsSourceAndRetriesInQueue(t *testing.T) {
	e := newEnv(t)
	e.invoker.fail = true
	e.withHistory(history.RetryPolicy{MaxAttempts: 2})
	e.writeSource("clip.mp4", []byte("frames"))

	first := e.pipeline.RunCycle(context.Background())
	if first.Discover.Failed != 1 || !e.ledger.Contains("clip.mp4") {
		t.Fatalf("unexpected first cycle %+v", first.Discover)
	}

	second := e.pipeline.RunCycle(context.Background())
	if second.Drain.Failed != 1 {
		t.Fatalf("expected queue retry, got %+v", second.Drain)
	}

	third := e.pipeline.RunCycle(context.Background())
	if third.Drain.Exhausted != 1 {
		t.Fatalf("expected exhausted entry, got %+v", third.Drain)
	}
	if len(e.invoker.calls) != 2 {
		t.Fatalf("transformer invoked %d times, want 2", len(e.invoker.calls))
	}

	summary, err := e.history.Summary(context.Background(), "clip.mp4", "")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Attempts != 2 || summary.Failures != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	recent, err := e.history.Recent(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if recent[1].Phase != history.PhaseDiscover || recent[1].SourceID != "clip.mp4" || recent[0].Phase != history.PhaseDrain {
		t.Fatalf("unexpected attempt phases %+v", recent)
	}
	if recent[0].CycleID == "" || recent[0].CycleID == recent[1].CycleID {
		t.Fatalf("expected distinct cycle ids, got %+v", recent)
	}
}

func TestRetryBackoffDefersQueueEntry(t *testing.T) {
	e := newEnv(t)
	e.invoker.fail = true
	e.withHistory(history.RetryPolicy{Backoff: time.Hour})
	e.writeSource("clip.mp4", []byte("frames"))

	e.pipeline.RunCycle(context.Background())
	report := e.pipeline.RunCycle(context.Background())
	if report.Drain.Deferred != 1 || len(e.invoker.calls) != 1 {
		t.Fatalf("expected deferred retry, got %+v calls=%v", report.Drain, e.invoker.calls)
	}

	e.pipeline.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	report = e.pipeline.RunCycle(context.Background())
	if report.Drain.Failed != 1 || len(e.invoker.calls) != 2 {
		t.Fatalf("expected retry after backoff, got %+v", report.Drain)
	}
}

func TestInvalidNameIsIgnored(t *testing.T) {
	e := newEnv(t)
	e.writeSource("bad\nname.mp4", []byte("frames"))

	report := e.pipeline.RunCycle(context.Background())
	if report.Discover.New != 0 || len(e.invoker.calls) != 0 {
		t.Fatalf("unexpected report %+v", report.Discover)
	}
	if e.ledger.Len() != 0 {
		t.Fatal("invalid names cannot be recorded")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Options{}, Dependencies{}, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
