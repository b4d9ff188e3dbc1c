package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	currentLogName = "facewatch.log"
	runLogPattern  = "facewatch-*.log"
	toolLogDirName = "tool"
)

// RunLogPath returns the daemon log for one run under logDir.
func RunLogPath(logDir string, started time.Time) string {
	return filepath.Join(logDir, "facewatch-"+started.UTC().Format("20060102T150405")+".log")
}

// CurrentLogPath returns the stable pointer to the newest run log.
func CurrentLogPath(logDir string) string {
	return filepath.Join(logDir, currentLogName)
}

// LinkCurrentLog points <logDir>/facewatch.log at target. A hard link is used
// when the filesystem refuses symlinks.
func LinkCurrentLog(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := CurrentLogPath(logDir)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

// PruneLogs removes run logs (facewatch-*.log) and tool logs (tool/*.log)
// under logDir whose last write is older than retentionDays. The
// facewatch.log pointer and every path in keep survive. A retentionDays value
// of 0 disables pruning. It returns the removed paths.
func PruneLogs(logger *slog.Logger, logDir string, retentionDays int, keep ...string) []string {
	logDir = strings.TrimSpace(logDir)
	if retentionDays <= 0 || logDir == "" {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	kept := map[string]struct{}{cleanAbs(CurrentLogPath(logDir)): {}}
	for _, path := range keep {
		if trimmed := strings.TrimSpace(path); trimmed != "" {
			kept[cleanAbs(trimmed)] = struct{}{}
		}
	}

	var removed []string
	for _, target := range []struct{ dir, pattern string }{
		{logDir, runLogPattern},
		{filepath.Join(logDir, toolLogDirName), "*.log"},
	} {
		entries, err := os.ReadDir(target.dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() {
				continue
			}
			if matched, _ := filepath.Match(target.pattern, entry.Name()); !matched {
				continue
			}
			path := cleanAbs(filepath.Join(target.dir, entry.Name()))
			if _, skip := kept[path]; skip {
				continue
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check file permissions and log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed = append(removed, path)
		}
	}
	if len(removed) > 0 && logger != nil {
		logger.Info("old logs pruned",
			Int("removed", len(removed)),
			Int("retention_days", retentionDays),
			String(FieldEventType, "logs_pruned"),
		)
	}
	return removed
}

func cleanAbs(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
