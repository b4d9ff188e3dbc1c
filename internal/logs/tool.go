package logs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoToolLog is returned when no transformer log exists for an entry.
var ErrNoToolLog = errors.New("no tool log for entry")

// LatestToolLog returns the newest "<timestamp>-<entry>.log" in dir. The
// timestamp prefix sorts lexically.
func LatestToolLog(dir, entry string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w %q", ErrNoToolLog, entry)
		}
		return "", fmt.Errorf("read tool log directory: %w", err)
	}
	suffix := "-" + entry + ".log"
	var matches []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), suffix) {
			matches = append(matches, e.Name())
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w %q", ErrNoToolLog, entry)
	}
	sort.Strings(matches)
	return filepath.Join(dir, matches[len(matches)-1]), nil
}
