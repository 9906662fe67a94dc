// Package sink delivers extracted articles to their destinations.
package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/latamwire/news-crawler/pkg/models"
)

// Sink receives every successfully extracted article. Implementations must
// be safe for concurrent Emit calls.
type Sink interface {
	Emit(ctx context.Context, article models.ExtractedArticle) error
	Close(ctx context.Context) error
}

// Multi fans each article out to several sinks. Every sink is attempted; the
// returned error joins all failures.
type Multi []Sink

// Emit implements Sink
func (m Multi) Emit(ctx context.Context, article models.ExtractedArticle) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, article); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink
func (m Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps emitted articles in memory
type Memory struct {
	mu       sync.Mutex
	articles []models.ExtractedArticle
	closed   bool
}

// NewMemory creates an empty in-memory sink
func NewMemory() *Memory {
	return &Memory{}
}

// Emit implements Sink
func (m *Memory) Emit(_ context.Context, article models.ExtractedArticle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.articles = append(m.articles, article)
	return nil
}

// Close implements Sink
func (m *Memory) Close(context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Articles returns a copy of everything emitted so far
func (m *Memory) Articles() []models.ExtractedArticle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ExtractedArticle, len(m.articles))
	copy(out, m.articles)
	return out
}

// ErrClosed is returned by Emit after Close
var ErrClosed = errors.New("sink closed")
