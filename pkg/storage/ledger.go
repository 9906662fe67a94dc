package storage

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/latamwire/news-crawler/pkg/utils"
)

// Ledger is the append-only list of fully parsed article URLs. Lines are
// appended as articles are emitted; Finalize rewrites the file as a unique,
// sorted list. The file outlives runs, so earlier runs' URLs are kept.
type Ledger struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *bufio.Writer
	closed bool
	log    *logrus.Entry
}

// OpenLedger opens (or creates) the ledger at path for appending
func OpenLedger(path string, log *logrus.Entry) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: creating ledger directory: %w", utils.ErrFilesystem, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening ledger '%s': %w", utils.ErrFilesystem, path, err)
	}
	return &Ledger{path: path, file: file, writer: bufio.NewWriter(file), log: log}, nil
}

// Path returns the ledger file location
func (l *Ledger) Path() string {
	return l.path
}

// Record appends one URL. It is flushed immediately so a crash loses nothing
// already emitted.
func (l *Ledger) Record(articleURL string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("%w: ledger already finalized", utils.ErrFilesystem)
	}
	if _, err := l.writer.WriteString(articleURL + "\n"); err != nil {
		return fmt.Errorf("%w: appending to ledger: %w", utils.ErrFilesystem, err)
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("%w: flushing ledger: %w", utils.ErrFilesystem, err)
	}
	return nil
}

// Finalize closes the ledger and rewrites it deduplicated and sorted.
// Returns the number of unique URLs. Safe to call more than once.
func (l *Ledger) Finalize() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		l.closed = true
		flushErr := l.writer.Flush()
		closeErr := l.file.Close()
		if err := errors.Join(flushErr, closeErr); err != nil {
			return 0, fmt.Errorf("%w: closing ledger: %w", utils.ErrFilesystem, err)
		}
	}

	count, err := DedupeFile(l.path)
	if err != nil {
		return 0, err
	}
	l.log.WithFields(logrus.Fields{"path": l.path, "unique_urls": count}).Info("Parsed-URL ledger deduplicated")
	return count, nil
}

// DedupeFile rewrites a line-oriented file as its unique non-blank lines in
// sorted order. The rewrite goes through a temporary file and a rename, so
// the original is intact if anything fails.
func DedupeFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: reading '%s': %w", utils.ErrFilesystem, path, err)
	}

	seen := make(map[string]bool)
	var lines []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		lines = append(lines, line)
	}
	slices.Sort(lines)

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("%w: creating temp file for '%s': %w", utils.ErrFilesystem, path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // No-op after a successful rename

	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		if _, err := w.WriteString(line + "\n"); err != nil {
			tmp.Close()
			return 0, fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, tmpName, err)
		}
	}
	if err := errors.Join(w.Flush(), tmp.Chmod(0644), tmp.Sync(), tmp.Close()); err != nil {
		return 0, fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, fmt.Errorf("%w: replacing '%s': %w", utils.ErrFilesystem, path, err)
	}
	return len(lines), nil
}
