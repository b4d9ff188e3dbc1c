// Package testsupport builds throwaway facewatch environments for tests.
package testsupport

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"facewatch/internal/config"
)

// FakeTransformerScript copies the -t target to the -o output, standing in
// for the face-swap tool. It exits 3 without writing when the target's base
// name contains "fail".
const FakeTransformerScript = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    -t) target="$2"; shift 2 ;;
    -o) output="$2"; shift 2 ;;
    *) shift ;;
  esac
done
case "$(basename "$target")" in
  *fail*) echo "no face detected" >&2; exit 3 ;;
esac
cp "$target" "$output"
`

// Env is a temp directory tree with a config file pointing into it.
type Env struct {
	BaseDir    string
	RootDir    string
	SourceDir  string
	ConfigPath string
	Config     *config.Config
}

// Option customizes the generated config.
type Option func(*builder)

type builder struct {
	t        testing.TB
	env      *Env
	asset    string
	strict   bool
	retryMax int
	backoff  int
	ntfy     string
}

// NewEnv writes a config under a fresh temp dir, loads it through
// config.Load, and creates the source directory, the reference asset, and
// the fake transformer script. HOME and the FACEWATCH_* overrides are
// isolated for the duration of the test.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("FACEWATCH_SOURCE_DIR", "")
	t.Setenv("FACEWATCH_TRANSFORMER", "")

	env := &Env{
		BaseDir:    base,
		RootDir:    filepath.Join(base, "root"),
		SourceDir:  filepath.Join(base, "camera"),
		ConfigPath: filepath.Join(base, "facewatch.toml"),
	}
	toolDir := filepath.Join(base, "tool")
	b := &builder{
		t:        t,
		env:      env,
		asset:    filepath.Join(toolDir, "faces", "1.jpg"),
		strict:   true,
		retryMax: 3,
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, dir := range []string{env.SourceDir, filepath.Join(toolDir, "faces"), filepath.Dir(env.ConfigPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	script := filepath.Join(toolDir, "fake.sh")
	if err := os.WriteFile(script, []byte(FakeTransformerScript), 0o755); err != nil {
		t.Fatalf("write fake transformer: %v", err)
	}
	if err := os.WriteFile(filepath.Join(toolDir, "faces", "1.jpg"), []byte("face"), 0o644); err != nil {
		t.Fatalf("write reference asset: %v", err)
	}

	content := fmt.Sprintf(`[paths]
root_dir = %q
source_dir = %q

[watch]
poll_interval = 1
settle_delay = 0
stabilize_timeout = 2
stabilize_poll_interval = 1

[transformer]
executable = "sh"
script = %q
reference_asset = %q

[retry]
max_attempts = %d
backoff = %d

[preflight]
strict = %t

[notifications]
ntfy_topic = %q

[logging]
level = "error"
`, env.RootDir, env.SourceDir, script, b.asset, b.retryMax, b.backoff, b.strict, b.ntfy)
	if err := os.WriteFile(env.ConfigPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(env.ConfigPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	env.Config = cfg
	return env
}

// WithReferenceAsset points the transformer at asset instead of the
// generated one.
func WithReferenceAsset(asset string) Option {
	return func(b *builder) { b.asset = asset }
}

// WithStrictPreflight sets preflight.strict.
func WithStrictPreflight(strict bool) Option {
	return func(b *builder) { b.strict = strict }
}

// WithRetry sets the retry budget and backoff in seconds.
func WithRetry(maxAttempts, backoffSeconds int) Option {
	return func(b *builder) {
		b.retryMax = maxAttempts
		b.backoff = backoffSeconds
	}
}

// WithNtfyTopic enables notifications against topic.
func WithNtfyTopic(topic string) Option {
	return func(b *builder) { b.ntfy = topic }
}

// InputDir returns the work queue directory.
func (e *Env) InputDir() string { return e.Config.InputDir() }

// OutputDir returns the transformer output directory.
func (e *Env) OutputDir() string { return e.Config.OutputDir() }
