package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"facewatch/internal/logging"
)

// ErrInvalidIdentifier is returned for identifiers that cannot be stored on a
// single line.
var ErrInvalidIdentifier = errors.New("invalid ledger identifier")

// Ledger is the in-memory view of the processed-set log plus its append handle.
type Ledger struct {
	path   string
	logger *slog.Logger

	mu           sync.RWMutex
	file         *os.File
	seen         map[string]struct{}
	order        []string
	needsNewline bool
}

// Open replays the log at path and prepares it for appending. A missing log
// is created.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	l := &Ledger{
		path:   path,
		logger: logging.NewComponentLogger(logger, "ledger"),
		file:   file,
		seen:   make(map[string]struct{}),
	}
	if err := l.load(); err != nil {
		_ = file.Close()
		return nil, err
	}
	l.logger.Debug("ledger loaded",
		logging.String("path", path),
		logging.Int("entries", len(l.order)),
		logging.String(logging.FieldEventType, "ledger_loaded"),
	)
	return l, nil
}

func (l *Ledger) load() error {
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind ledger: %w", err)
	}
	reader := bufio.NewReader(l.file)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			terminated := strings.HasSuffix(line, "\n")
			id := strings.TrimRight(line, "\r\n")
			if id != "" {
				l.add(norm.NFC.String(id))
			}
			if !terminated {
				l.needsNewline = true
				logging.WarnWithContext(l.logger, "ledger ends with an unterminated line", "ledger_torn_line",
					logging.String("path", l.path),
					logging.String("identifier", id),
					logging.String(logging.FieldErrorHint, "a previous run stopped mid-write; the line is terminated on next append"),
					logging.String(logging.FieldImpact, "none"),
				)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ledger: %w", err)
		}
	}
}

func (l *Ledger) add(id string) {
	if _, ok := l.seen[id]; ok {
		return
	}
	l.seen[id] = struct{}{}
	l.order = append(l.order, id)
}

// Normalize returns the canonical form of a raw file name.
func Normalize(name string) string {
	return norm.NFC.String(name)
}

// Validate reports whether name can be stored in the ledger.
func Validate(name string) error {
	if name == "" || strings.ContainsAny(name, "\n\r\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// Contains reports whether id was recorded.
func (l *Ledger) Contains(id string) bool {
	id = Normalize(id)
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[id]
	return ok
}

// Record appends id to the log and fsyncs. Recording an identifier that is
// already present is a no-op.
func (l *Ledger) Record(id string) error {
	if err := Validate(id); err != nil {
		return err
	}
	id = Normalize(id)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errors.New("ledger is closed")
	}
	if _, ok := l.seen[id]; ok {
		return nil
	}

	line := id + "\n"
	if l.needsNewline {
		line = "\n" + line
	}
	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	l.needsNewline = false
	l.add(id)
	return nil
}

// Len returns the number of distinct identifiers.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.order)
}

// Entries returns identifiers in first-seen order.
func (l *Ledger) Entries() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// Path returns the log location.
func (l *Ledger) Path() string {
	return l.path
}

// Close releases the append handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
