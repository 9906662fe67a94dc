package models

import (
	"net/url"
	"time"
)

// PageKind tags a frontier entry with the handler that processes it once fetched
type PageKind int

const (
	PageKindListing PageKind = iota // Page scanned for article links, pagination and sections
	PageKindArticle                 // Page handed to the content extraction pipeline
)

// String implements fmt.Stringer for logging
func (k PageKind) String() string {
	switch k {
	case PageKindListing:
		return "listing"
	case PageKindArticle:
		return "article"
	}
	return "unknown"
}

// CrawlTarget is a seed URL plus the budget state derived from it.
// Counters are only mutated by the crawl session under its lock.
type CrawlTarget struct {
	ID             int
	SeedURL        *url.URL
	Host           string
	PagesFetched   int // Listing pages admitted so far (pagination and section pages included)
	MaxPages       int
	ArticlesQueued int
	MaxArticles    int // 0 = unlimited
}

// PageBudgetExhausted reports whether no further listing page can be admitted
func (t *CrawlTarget) PageBudgetExhausted() bool {
	return t.MaxPages > 0 && t.PagesFetched >= t.MaxPages
}

// ArticleBudgetExhausted reports whether no further article can be admitted
func (t *CrawlTarget) ArticleBudgetExhausted() bool {
	return t.MaxArticles > 0 && t.ArticlesQueued >= t.MaxArticles
}

// FrontierEntry is a unit of pending work in the crawl queue
type FrontierEntry struct {
	URL       string // Normalized absolute URL
	Kind      PageKind
	PageDepth int // 1-based pagination index for listings; listing depth of the parent for articles
	Target    *CrawlTarget
}

// ExtractedArticle is the record emitted for every successfully parsed article page
type ExtractedArticle struct {
	URL         string `json:"url" bson:"url"`
	Title       string `json:"title" bson:"title"`
	Description string `json:"description" bson:"description"`
	Body        string `json:"body" bson:"body"`
	Date        string `json:"date" bson:"date"` // YYYY-MM-DD when parseable, otherwise the raw source string
}

// ArticleDBEntry stores the outcome of processing an article URL across runs
type ArticleDBEntry struct {
	Status      ArticleStatus `json:"status"`
	ErrorType   string        `json:"error_type,omitempty"`   // Error category (on failure)
	ProcessedAt time.Time     `json:"processed_at,omitempty"` // Timestamp of successful extraction
	LastAttempt time.Time     `json:"last_attempt"`
	RunID       string        `json:"run_id,omitempty"`
	ContentHash string        `json:"content_hash,omitempty"` // SHA-256 of the extracted body
}

// RunMetadata summarizes a single crawl run; written as YAML after finalization
type RunMetadata struct {
	RunID              string        `yaml:"run_id"`
	StartTime          time.Time     `yaml:"start_time"`
	EndTime            time.Time     `yaml:"end_time"`
	Deadline           time.Time     `yaml:"deadline"`
	DeadlineReached    bool          `yaml:"deadline_reached"`
	Seeds              []string      `yaml:"seeds"`
	Keywords           []string      `yaml:"keywords,omitempty"`
	ListingsFetched    int64         `yaml:"listings_fetched"`
	ArticlesFetched    int64         `yaml:"articles_fetched"`
	ArticlesEmitted    int64         `yaml:"articles_emitted"`
	FetchErrors        int64         `yaml:"fetch_errors"`
	ExtractionErrors   int64         `yaml:"extraction_errors"`
	ClassifierCalls    int64         `yaml:"classifier_calls"`
	ClassifierDeclines int64         `yaml:"classifier_declines"`
	Targets            []TargetStats `yaml:"targets"`
}

// TargetStats is the per-seed section of RunMetadata
type TargetStats struct {
	SeedURL        string `yaml:"seed_url"`
	PagesFetched   int    `yaml:"pages_fetched"`
	ArticlesQueued int    `yaml:"articles_queued"`
}
