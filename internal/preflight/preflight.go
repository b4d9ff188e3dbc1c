package preflight

import (
	"context"
	"fmt"
	"strings"

	"facewatch/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Required bool
	Detail   string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		required(CheckTransformer(cfg)),
	}
	if strings.TrimSpace(cfg.Transformer.Script) != "" {
		results = append(results, required(CheckReadableFile("Transformer script", cfg.Transformer.Script)))
	}
	results = append(results,
		required(CheckReadableFile("Reference asset", cfg.ReferenceAssetPath())),
		required(CheckDirectoryAccess("Work queue", cfg.InputDir())),
		required(CheckDirectoryAccess("Output directory", cfg.OutputDir())),
		CheckSourceDir("Source directory", cfg.Paths.SourceDir),
	)
	return results
}

func required(r Result) Result {
	r.Required = true
	return r
}

// Failures returns the failed required checks.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Required && !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Evaluate turns failed required checks into a startup error when strict is
// set. It returns nil otherwise.
func Evaluate(results []Result, strict bool) error {
	failed := Failures(results)
	if !strict || len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
}
