package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists SBOM artifacts under a single output directory. The
// existence of an artifact for (repository, run date) is the only record
// of completed work, so writes must never leave a partial file at the
// final path.
type Store struct {
	dir string
}

// NewStore creates the output directory if needed and returns a store
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the output directory
func (s *Store) Dir() string {
	return s.dir
}

// sanitizeReplacer maps path separators, spaces and characters that are
// unsafe on common filesystems to underscores.
var sanitizeReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	" ", "_",
	"<", "_",
	">", "_",
	":", "_",
	`"`, "_",
	"|", "_",
	"?", "_",
	"*", "_",
)

// SanitizeName returns a filesystem-safe version of a repository name
func SanitizeName(name string) string {
	return sanitizeReplacer.Replace(name)
}

// Path returns the canonical artifact path for (repository, run date)
func (s *Store) Path(repo, runDate string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s.json", SanitizeName(repo), runDate))
}

// LogFileName returns the run log file name for a run date
func LogFileName(runDate string) string {
	return fmt.Sprintf("sbom-generation-log-%s.txt", runDate)
}

// LogPath returns the run log path for a run date
func (s *Store) LogPath(runDate string) string {
	return filepath.Join(s.dir, LogFileName(runDate))
}

// Exists reports whether an artifact already exists for (repository, run date)
func (s *Store) Exists(repo, runDate string) bool {
	_, err := os.Stat(s.Path(repo, runDate))
	return err == nil
}

// Write persists a payload atomically: the bytes go to a temporary file in
// the same directory first and are then renamed into place, so a crash
// mid-write never leaves a corrupt file at the canonical path.
func (s *Store) Write(repo, runDate string, payload []byte) error {
	final := s.Path(repo, runDate)

	tmp, err := os.CreateTemp(s.dir, filepath.Base(final)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close artifact: %w", err)
	}

	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}
