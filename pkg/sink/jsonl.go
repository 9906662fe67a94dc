package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/latamwire/news-crawler/pkg/models"
	"github.com/latamwire/news-crawler/pkg/utils"
)

// JSONL appends one JSON object per article to a file
type JSONL struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *bufio.Writer
	enc    *json.Encoder
	closed bool
}

// NewJSONL opens path for appending, creating parent directories as needed
func NewJSONL(path string) (*JSONL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: creating output directory: %w", utils.ErrFilesystem, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: opening '%s': %w", utils.ErrFilesystem, path, err)
	}
	writer := bufio.NewWriter(file)
	enc := json.NewEncoder(writer)
	enc.SetEscapeHTML(false)
	return &JSONL{path: path, file: file, writer: writer, enc: enc}, nil
}

// Path returns the output file location
func (j *JSONL) Path() string {
	return j.path
}

// Emit implements Sink. Each record is flushed before returning.
func (j *JSONL) Emit(_ context.Context, article models.ExtractedArticle) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if err := j.enc.Encode(article); err != nil {
		return fmt.Errorf("%w: writing article '%s': %w", utils.ErrFilesystem, article.URL, err)
	}
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("%w: flushing '%s': %w", utils.ErrFilesystem, j.path, err)
	}
	return nil
}

// Close implements Sink
func (j *JSONL) Close(context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if err := errors.Join(j.writer.Flush(), j.file.Sync(), j.file.Close()); err != nil {
		return fmt.Errorf("%w: closing '%s': %w", utils.ErrFilesystem, j.path, err)
	}
	return nil
}
