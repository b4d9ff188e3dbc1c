package main

import (
	"bytes"
	"strings"
	"testing"

	"facewatch/internal/pipeline"
	"facewatch/internal/preflight"
)

func TestRenderStatusLine(t *testing.T) {
	plain := renderStatusLine("Monitor", statusOK, "running", false)
	if !strings.Contains(plain, "Monitor:") || !strings.Contains(plain, "[OK] running") {
		t.Fatalf("unexpected plain line %q", plain)
	}
	if strings.Contains(plain, "\x1b[") {
		t.Fatalf("plain line must not contain escapes: %q", plain)
	}

	colored := renderStatusLine("Monitor", statusError, "", true)
	if !strings.HasPrefix(colored, ansiRed) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected red line, got %q", colored)
	}
	if !strings.Contains(colored, "[ERROR]") {
		t.Fatalf("expected error badge, got %q", colored)
	}
}

func TestShouldColorizeRejectsBuffers(t *testing.T) {
	if shouldColorize(&bytes.Buffer{}) {
		t.Fatal("buffers are never terminals")
	}
}

func TestPreflightKind(t *testing.T) {
	cases := []struct {
		result preflight.Result
		want   statusKind
	}{
		{preflight.Result{Passed: true, Required: true}, statusOK},
		{preflight.Result{Required: true}, statusError},
		{preflight.Result{}, statusWarn},
	}
	for _, tc := range cases {
		if got := preflightKind(tc.result); got != tc.want {
			t.Fatalf("preflightKind(%+v) = %v, want %v", tc.result, got, tc.want)
		}
	}
}

func TestQueueSummaryLinesCountsStates(t *testing.T) {
	lines := queueSummaryLines([]pipeline.QueueEntry{
		{Name: "a", State: pipeline.StatePending},
		{Name: "b", State: pipeline.StateExhausted},
		{Name: "c", State: pipeline.StateExhausted},
	}, false)
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "Exhausted:") || !strings.Contains(joined, "[ERROR] 2") {
		t.Fatalf("unexpected summary %q", joined)
	}
	if !strings.Contains(joined, "Done:") || !strings.Contains(joined, "[INFO] 0") {
		t.Fatalf("expected zero counts to render as info, got %q", joined)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		0:       "0 B",
		1023:    "1023 B",
		1024:    "1.0 KiB",
		1536:    "1.5 KiB",
		1048576: "1.0 MiB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Fatalf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
