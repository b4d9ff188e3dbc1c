package staging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"facewatch/internal/fileutil"
	"facewatch/internal/logging"
)

// PartialSuffix marks in-flight copies inside the work queue.
const PartialSuffix = ".partial"

// Mover stages source files into the work queue directory.
type Mover struct {
	workDir string
	logger  *slog.Logger
}

// NewMover returns a mover targeting workDir.
func NewMover(workDir string, logger *slog.Logger) *Mover {
	return &Mover{
		workDir: workDir,
		logger:  logging.NewComponentLogger(logger, "staging"),
	}
}

// WorkDir returns the queue directory.
func (m *Mover) WorkDir() string {
	return m.workDir
}

// Stage copies sourcePath into the work queue under a collision-free name,
// preserving mode and modification time, and returns the staged path. On
// failure nothing is left in the queue.
func (m *Mover) Stage(sourcePath string) (string, error) {
	if err := os.MkdirAll(m.workDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure work directory: %w", err)
	}
	dest, err := fileutil.Allocate(m.workDir, filepath.Base(sourcePath))
	if err != nil {
		return "", err
	}

	partial := partialPath(dest)
	_ = os.Remove(partial)
	if err := fileutil.CopyFilePreserve(sourcePath, partial); err != nil {
		return "", fmt.Errorf("copy %s: %w", filepath.Base(sourcePath), err)
	}
	if err := os.Rename(partial, dest); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("finalize staged copy: %w", err)
	}

	m.logger.Info("entry staged",
		logging.String(logging.FieldEntry, filepath.Base(sourcePath)),
		logging.String(logging.FieldStage, "stage"),
		logging.String("staged_as", filepath.Base(dest)),
		logging.String(logging.FieldEventType, "entry_staged"),
	)
	return dest, nil
}

func partialPath(dest string) string {
	return filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+PartialSuffix)
}

func isPartial(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, PartialSuffix)
}
