// Package runlog writes the append-only, human-readable run log. The line
// formats here are a public interface: the progress observer parses the
// markers, so they must stay literal.
package runlog

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"
)

const (
	// MarkerPrefix precedes the repository counter consumed by the observer
	MarkerPrefix = "About to process repo #"

	// FinishedMarker is written once when the run has emitted its summary
	FinishedMarker = "Run finished"

	timestampFormat = "2006-01-02 15:04:05"
)

var (
	markerPattern = regexp.MustCompile(`About to process repo #(\d+): (.+)$`)
	totalPattern  = regexp.MustCompile(`Found (\d+) repositories to process`)
)

// Writer appends timestamped lines to the shared run log. Write failures
// are swallowed: losing a log line must never fail the run. A nil Writer
// discards all lines.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open opens the run log for appending, creating it if needed
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log %s: %w", path, err)
	}
	return &Writer{file: f, path: path}, nil
}

// Path returns the log file path
func (w *Writer) Path() string {
	return w.path
}

// Printf appends one timestamped line
func (w *Writer) Printf(format string, args ...any) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return
	}
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format(timestampFormat), fmt.Sprintf(format, args...))
	_, _ = w.file.WriteString(line)
}

// Marker appends the progress marker for repository number n
func (w *Writer) Marker(n int, repo string) {
	w.Printf("%s%d: %s", MarkerPrefix, n, repo)
}

// Close closes the underlying file
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// ParseMarker extracts the repository counter and name from a log line
func ParseMarker(line string) (n int, repo string, ok bool) {
	m := markerPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, "", false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return n, m[2], true
}

// ParseTotal extracts the repository total from the discovery log line
func ParseTotal(line string) (int, bool) {
	m := totalPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
