package storage

import (
	"context"
	"time"

	"github.com/latamwire/news-crawler/pkg/models"
)

// ArticleStore persists per-article processing state across runs
type ArticleStore interface {
	// MarkArticlePending records an article URL as queued.
	// Returns false without writing if the article was already extracted by
	// this or an earlier run, true otherwise.
	MarkArticlePending(normalizedURL, runID string) (bool, error)

	// CheckArticleStatus retrieves the status and details of an article URL.
	// Returns ArticleStatusNotFound for unknown URLs and ArticleStatusDBError
	// together with the error on database failure.
	CheckArticleStatus(normalizedURL string) (models.ArticleStatus, *models.ArticleDBEntry, error)

	// UpdateArticleStatus stores the outcome of processing an article URL
	UpdateArticleStatus(normalizedURL string, entry *models.ArticleDBEntry) error
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// Count returns the cached number of article keys in the store
	Count() int

	// CountByStatus scans the store and tallies articles per status
	CountByStatus(ctx context.Context) (map[models.ArticleStatus]int, error)

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// StateStore combines all store interfaces for components that need full access
type StateStore interface {
	ArticleStore
	StoreAdmin
}
