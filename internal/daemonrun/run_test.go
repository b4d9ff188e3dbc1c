package daemonrun_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"facewatch/internal/daemon"
	"facewatch/internal/daemonrun"
	"facewatch/internal/logging"
	"facewatch/internal/testsupport"
)

func TestRunOnceProcessesNewSourceFile(t *testing.T) {
	env := testsupport.NewEnv(t)
	cfg := env.Config
	testsupport.WriteFile(t, filepath.Join(env.SourceDir, "IMG_0001.jpg"), []byte("pixels"))

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{Once: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(env.OutputDir(), "IMG_0001.jpg"))
	if err != nil {
		t.Fatalf("expected transformer output: %v", err)
	}
	if string(out) != "pixels" {
		t.Fatalf("unexpected output contents %q", out)
	}
	ledgerData, err := os.ReadFile(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if string(ledgerData) != "IMG_0001.jpg\n" {
		t.Fatalf("unexpected ledger contents %q", ledgerData)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "facewatch.pid")); !os.IsNotExist(err) {
		t.Fatalf("expected pid file to be removed, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(env.SourceDir, "IMG_0001.jpg")); err != nil {
		t.Fatalf("source file must be left in place: %v", err)
	}

	rt, err := daemonrun.Assemble(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer rt.Close()
	stats, err := rt.History.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Attempts != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected history stats %+v", stats)
	}
}

func TestRunOnceIsIdempotent(t *testing.T) {
	env := testsupport.NewEnv(t)
	cfg := env.Config
	testsupport.WriteFile(t, filepath.Join(env.SourceDir, "clip.mp4"), []byte("frames"))

	for i := 0; i < 2; i++ {
		if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{Once: true}); err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
	}

	entries, err := os.ReadDir(env.InputDir())
	if err != nil {
		t.Fatalf("read input: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "clip.mp4" {
		t.Fatalf("expected a single staged copy, got %v", entries)
	}

	rt, err := daemonrun.Assemble(cfg, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer rt.Close()
	if rt.Ledger.Len() != 1 {
		t.Fatalf("expected one ledger entry, got %d", rt.Ledger.Len())
	}
	stats, err := rt.History.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Attempts != 1 {
		t.Fatalf("second cycle must not re-invoke the transformer, got %d attempts", stats.Attempts)
	}
}

func TestRunOnceRetriesFailedEntryFromQueue(t *testing.T) {
	env := testsupport.NewEnv(t, testsupport.WithRetry(2, 0))
	cfg := env.Config
	testsupport.WriteFile(t, filepath.Join(env.SourceDir, "fail.jpg"), []byte("pixels"))

	for i := 0; i < 3; i++ {
		if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{Once: true}); err != nil {
			t.Fatalf("Run #%d: %v", i+1, err)
		}
	}

	rt, err := daemonrun.Assemble(cfg, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer rt.Close()
	if !rt.Ledger.Contains("fail.jpg") {
		t.Fatal("failed source must still be recorded")
	}
	summary, err := rt.History.Summary(context.Background(), "fail.jpg", "")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Attempts != 2 || summary.LastExitCode != 3 {
		t.Fatalf("expected two failed attempts with exit 3, got %+v", summary)
	}
	toolLogs, err := filepath.Glob(filepath.Join(cfg.ToolLogDir(), "*-fail.jpg.log"))
	if err != nil || len(toolLogs) == 0 {
		t.Fatalf("expected tool logs for failed runs, got %v (err=%v)", toolLogs, err)
	}
}

func TestRunStrictPreflightRefusesMissingAsset(t *testing.T) {
	base := t.TempDir()
	env := testsupport.NewEnv(t, testsupport.WithReferenceAsset(filepath.Join(base, "missing.jpg")))
	cfg := env.Config

	err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{Once: true})
	if err == nil {
		t.Fatal("expected strict preflight to refuse startup")
	}
	if !strings.Contains(err.Error(), "Reference asset") {
		t.Fatalf("expected error to name the reference asset, got %v", err)
	}
	if _, statErr := os.Stat(cfg.LedgerPath()); !os.IsNotExist(statErr) {
		t.Fatalf("ledger must not be created when startup is refused, stat err=%v", statErr)
	}
}

func TestRunLenientPreflightContinues(t *testing.T) {
	base := t.TempDir()
	env := testsupport.NewEnv(t,
		testsupport.WithReferenceAsset(filepath.Join(base, "missing.jpg")),
		testsupport.WithStrictPreflight(false),
	)

	if err := daemonrun.Run(context.Background(), env.Config, daemonrun.Options{Once: true}); err != nil {
		t.Fatalf("expected lenient preflight to continue, got %v", err)
	}
}

func TestRunRejectedInstanceLeavesRunningStateAlone(t *testing.T) {
	env := testsupport.NewEnv(t)
	cfg := env.Config
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	release, err := daemon.AcquireLock(cfg.LockPath())
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer release()

	pidPath := daemonrun.PIDPath(cfg)
	testsupport.WriteFile(t, pidPath, []byte("4242\n"))
	partial := testsupport.WriteFile(t, filepath.Join(env.InputDir(), ".clip.mp4.partial"), []byte("half"))
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(partial, old, old); err != nil {
		t.Fatal(err)
	}
	testsupport.WriteFile(t, filepath.Join(env.SourceDir, "IMG_0002.jpg"), []byte("pixels"))

	err = daemonrun.Run(context.Background(), cfg, daemonrun.Options{Once: true})
	if !errors.Is(err, daemon.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if pid, err := daemonrun.ReadPID(cfg); err != nil || pid != 4242 {
		t.Fatalf("running instance pid file changed: pid=%d err=%v", pid, err)
	}
	if _, err := os.Stat(partial); err != nil {
		t.Fatalf("running instance partial copy removed: %v", err)
	}
	if _, err := os.Stat(cfg.LedgerPath()); !os.IsNotExist(err) {
		t.Fatalf("rejected instance must not open the ledger, stat err=%v", err)
	}
	if runLogs, _ := filepath.Glob(filepath.Join(cfg.Paths.LogDir, "facewatch-*.log")); len(runLogs) != 0 {
		t.Fatalf("rejected instance must not start a run log, got %v", runLogs)
	}
}

func TestRunWritesPIDWhileRunningAndLinksCurrentLog(t *testing.T) {
	env := testsupport.NewEnv(t)
	cfg := env.Config

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{Once: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := daemonrun.ReadPID(cfg); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed after exit, got err=%v", err)
	}
	if _, err := os.Stat(logging.CurrentLogPath(cfg.Paths.LogDir)); err != nil {
		t.Fatalf("expected facewatch.log pointer: %v", err)
	}
	locked, err := daemon.IsLocked(cfg.LockPath())
	if err != nil || locked {
		t.Fatalf("expected lock released, locked=%v err=%v", locked, err)
	}
}

func TestAssembleRequiresConfig(t *testing.T) {
	if _, err := daemonrun.Assemble(nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}
