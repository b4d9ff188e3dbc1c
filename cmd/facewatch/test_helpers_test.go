package main

import (
	"bytes"
	"strings"
	"testing"

	"facewatch/internal/testsupport"
)

type cliTestEnv struct {
	*testsupport.Env
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	return &cliTestEnv{Env: testsupport.NewEnv(t, testsupport.WithRetry(2, 0))}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	return testsupport.WriteFile(t, path, data)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
