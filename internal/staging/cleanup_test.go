package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"facewatch/internal/logging"
)

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldPartials(t *testing.T) {
	tmpDir := t.TempDir()

	oldPartial := filepath.Join(tmpDir, ".clip.mp4.partial")
	recentPartial := filepath.Join(tmpDir, ".other.mp4.partial")
	staged := filepath.Join(tmpDir, "old.mp4")
	for _, path := range []string{oldPartial, recentPartial, staged} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	oldTime := time.Now().Add(-2 * time.Hour)
	for _, path := range []string{oldPartial, staged} {
		if err := os.Chtimes(path, oldTime, oldTime); err != nil {
			t.Fatalf("set old time: %v", err)
		}
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())

	if len(result.Removed) != 1 || result.Removed[0] != oldPartial {
		t.Fatalf("expected only %s removed, got %v", oldPartial, result.Removed)
	}
	if _, err := os.Stat(recentPartial); err != nil {
		t.Error("recent partial should still exist")
	}
	if _, err := os.Stat(staged); err != nil {
		t.Error("staged entries must never be removed")
	}
}

func TestListEntriesSkipsHiddenAndDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmpDir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range map[string]string{
		"a.mp4":          "12345",
		"b.jpg":          "1",
		".a.mp4.partial": "12",
		".DS_Store":      "",
	} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := ListEntries(tmpDir)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].Name != "a.mp4" || entries[0].Size != 5 || entries[0].Path != filepath.Join(tmpDir, "a.mp4") {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Name != "b.jpg" {
		t.Errorf("unexpected second entry %+v", entries[1])
	}
}

func TestListEntriesMissingDir(t *testing.T) {
	if _, err := ListEntries(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing work dir")
	}
	entries, err := ListEntries("  ")
	if err != nil || entries != nil {
		t.Fatalf("expected nil result for empty path, got %v %v", entries, err)
	}
}
