package testsupport_test

import (
	"os"
	"path/filepath"
	"testing"

	"facewatch/internal/testsupport"
)

func TestNewEnvLoadsConfig(t *testing.T) {
	env := testsupport.NewEnv(t, testsupport.WithRetry(5, 30), testsupport.WithStrictPreflight(false))

	cfg := env.Config
	if cfg.Paths.RootDir != env.RootDir || cfg.Paths.SourceDir != env.SourceDir {
		t.Fatalf("unexpected paths %+v", cfg.Paths)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.Backoff != 30 {
		t.Fatalf("unexpected retry %+v", cfg.Retry)
	}
	if cfg.Preflight.Strict {
		t.Fatal("expected lenient preflight")
	}
	if _, err := os.Stat(cfg.ReferenceAssetPath()); err != nil {
		t.Fatalf("reference asset missing: %v", err)
	}
	if _, err := os.Stat(cfg.Transformer.Script); err != nil {
		t.Fatalf("fake transformer missing: %v", err)
	}
}

func TestWriteSized(t *testing.T) {
	path := testsupport.WriteSized(t, filepath.Join(t.TempDir(), "nested", "clip.mp4"), 100_000)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 100_000 {
		t.Fatalf("unexpected size %d", info.Size())
	}
}
