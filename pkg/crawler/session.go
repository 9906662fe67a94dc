package crawler

import (
	"net/url"
	"sync"

	"github.com/latamwire/news-crawler/pkg/models"
	"github.com/latamwire/news-crawler/pkg/parse"
)

// Admission is the outcome of asking the session to enqueue a URL
type Admission int

const (
	Admitted       Admission = iota
	AlreadyVisited           // URL was admitted earlier in this run
	OverBudget               // Owning target has no budget left for this kind
)

// String implements fmt.Stringer; used as the metrics rejection reason
func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case AlreadyVisited:
		return "visited"
	case OverBudget:
		return "budget"
	}
	return "unknown"
}

// Session is the shared state of a single crawl run: the visited set and
// the budget counters of every target. One mutex guards both, so the
// visited check, the budget check and their updates happen as one step.
type Session struct {
	mu      sync.Mutex
	visited map[string]bool
	targets []*models.CrawlTarget
}

// NewSession creates an empty session
func NewSession() *Session {
	return &Session{visited: make(map[string]bool)}
}

// AddTarget registers a seed. maxArticles of 0 means unlimited.
func (s *Session) AddTarget(seed *url.URL, maxPages, maxArticles int) *models.CrawlTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := &models.CrawlTarget{
		ID:          len(s.targets) + 1,
		SeedURL:     seed,
		Host:        parse.SiteHost(seed),
		MaxPages:    maxPages,
		MaxArticles: maxArticles,
	}
	s.targets = append(s.targets, target)
	return target
}

// Admit marks normalizedURL visited and charges target's budget for kind,
// unless the URL was already admitted or the budget is spent. A URL refused
// for budget is not marked, so another target with budget left may still
// claim it.
func (s *Session) Admit(target *models.CrawlTarget, normalizedURL string, kind models.PageKind) Admission {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.visited[normalizedURL] {
		return AlreadyVisited
	}
	switch kind {
	case models.PageKindListing:
		if target.PageBudgetExhausted() {
			return OverBudget
		}
		target.PagesFetched++
	case models.PageKindArticle:
		if target.ArticleBudgetExhausted() {
			return OverBudget
		}
		target.ArticlesQueued++
	}
	s.visited[normalizedURL] = true
	return Admitted
}

// Claim marks normalizedURL visited without charging a budget. It reports
// false if the URL was already visited; used for redirect targets.
func (s *Session) Claim(normalizedURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visited[normalizedURL] {
		return false
	}
	s.visited[normalizedURL] = true
	return true
}

// Visited returns the number of URLs admitted so far
func (s *Session) Visited() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visited)
}

// TargetStats snapshots the per-target counters in registration order
func (s *Session) TargetStats() []models.TargetStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make([]models.TargetStats, 0, len(s.targets))
	for _, t := range s.targets {
		stats = append(stats, models.TargetStats{
			SeedURL:        t.SeedURL.String(),
			PagesFetched:   t.PagesFetched,
			ArticlesQueued: t.ArticlesQueued,
		})
	}
	return stats
}
