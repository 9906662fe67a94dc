package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/latamwire/news-crawler/pkg/config"
	"github.com/latamwire/news-crawler/pkg/fetch"
	"github.com/latamwire/news-crawler/pkg/metrics"
	"github.com/latamwire/news-crawler/pkg/models"
	"github.com/latamwire/news-crawler/pkg/parse"
	"github.com/latamwire/news-crawler/pkg/process"
	"github.com/latamwire/news-crawler/pkg/queue"
	"github.com/latamwire/news-crawler/pkg/sink"
	"github.com/latamwire/news-crawler/pkg/storage"
	"github.com/latamwire/news-crawler/pkg/utils"
)

const (
	defaultProgressInterval = 30 * time.Second
	// stragglerWait bounds how long Run waits for tasks still running once
	// the shutdown grace has elapsed
	stragglerWait = 2 * time.Second
)

// PageFetcher retrieves a single page; implemented by *fetch.Fetcher
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*fetch.Page, error)
}

// RobotsChecker reports whether a URL may be fetched; implemented by *fetch.RobotsHandler
type RobotsChecker interface {
	Allowed(ctx context.Context, target *url.URL) bool
}

// Components are the collaborators a Crawler drives.
// Limiter, Robots, Store, Ledger and Metrics are optional.
type Components struct {
	Fetcher   PageFetcher
	Limiter   *fetch.RequestLimiter
	Robots    RobotsChecker
	Triager   *process.Triager
	Extractor *process.Extractor
	Sink      sink.Sink
	Store     storage.StateStore
	Ledger    *storage.Ledger
	Metrics   *metrics.Metrics
}

// runStats are updated concurrently by workers
type runStats struct {
	listingsFetched    atomic.Int64
	articlesFetched    atomic.Int64
	articlesEmitted    atomic.Int64
	fetchErrors        atomic.Int64
	extractionErrors   atomic.Int64
	classifierCalls    atomic.Int64
	classifierDeclines atomic.Int64
	droppedAtDeadline  atomic.Int64
}

// Crawler runs one budgeted crawl over a set of seeds.
// A Crawler is single-use: build a new one for every run.
type Crawler struct {
	cfg      *config.AppConfig
	runID    string
	comp     Components
	log      *logrus.Entry // Logger contextualized with run_id
	session  *Session
	frontier *queue.Frontier
	wg       sync.WaitGroup // One count per entry admitted to the frontier
	stats    runStats
	started  atomic.Bool

	progressInterval time.Duration
}

// NewCrawler creates a Crawler. cfg must already be validated.
func NewCrawler(cfg *config.AppConfig, runID string, comp Components, baseLogger *logrus.Entry) (*Crawler, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("%w: crawler needs a configuration", utils.ErrConfigValidation)
	case comp.Fetcher == nil, comp.Triager == nil, comp.Extractor == nil, comp.Sink == nil:
		return nil, fmt.Errorf("%w: crawler needs a fetcher, triager, extractor and sink", utils.ErrConfigValidation)
	}

	logger := baseLogger.WithField("run_id", runID)
	return &Crawler{
		cfg:              cfg,
		runID:            runID,
		comp:             comp,
		log:              logger,
		session:          NewSession(),
		frontier:         queue.NewFrontier(logger),
		progressInterval: defaultProgressInterval,
	}, nil
}

// Run crawls from seeds until the frontier drains or the configured crawl
// duration elapses, whichever comes first, then finalizes the run: the sink
// is closed, the ledger deduplicated and the run metadata written.
//
// No entry is dequeued after the deadline. Fetches still in flight are
// abandoned once the shutdown grace period has also passed. Per-entry
// failures never fail the run; the returned error reports finalization
// problems or cancellation of ctx.
func (c *Crawler) Run(ctx context.Context, seeds []string) (*models.RunMetadata, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, errors.New("crawler already ran; create a new one per run")
	}

	startTime := time.Now()
	deadline := startTime.Add(c.cfg.CrawlDuration)
	c.log.WithFields(logrus.Fields{
		"seeds":    len(seeds),
		"workers":  c.cfg.NumWorkers,
		"deadline": deadline.Format(time.RFC3339),
	}).Info("Crawl starting")

	// crawlCtx gates dequeueing; fetchCtx bounds in-flight work
	crawlCtx, cancelCrawl := context.WithDeadline(ctx, deadline)
	defer cancelCrawl()
	fetchCtx, cancelFetch := context.WithDeadline(ctx, deadline.Add(c.cfg.ShutdownGrace))
	defer cancelFetch()

	accepted := c.seed(seeds)
	if len(accepted) == 0 {
		c.log.Warn("No valid seed URLs; the run will finalize immediately")
	} else {
		c.log.Infof("Seeded %d target(s)", len(accepted))
	}

	var workers sync.WaitGroup
	for i := 1; i <= c.cfg.NumWorkers; i++ {
		workers.Add(1)
		go func(workerLog *logrus.Entry) {
			defer workers.Done()
			c.worker(crawlCtx, fetchCtx, workerLog)
		}(c.log.WithField("worker_id", i))
	}

	stoppedEarly := c.waitForCompletion(crawlCtx)

	workersDone := make(chan struct{})
	go func() { workers.Wait(); close(workersDone) }()
	select {
	case <-workersDone:
	case <-fetchCtx.Done():
		select {
		case <-workersDone:
		case <-time.After(stragglerWait):
			c.log.Warn("Shutdown grace elapsed, abandoning in-flight tasks")
		}
	}

	metadata := &models.RunMetadata{
		RunID:              c.runID,
		StartTime:          startTime,
		EndTime:            time.Now(),
		Deadline:           deadline,
		DeadlineReached:    stoppedEarly && ctx.Err() == nil,
		Seeds:              accepted,
		Keywords:           c.cfg.Keywords,
		ListingsFetched:    c.stats.listingsFetched.Load(),
		ArticlesFetched:    c.stats.articlesFetched.Load(),
		ArticlesEmitted:    c.stats.articlesEmitted.Load(),
		FetchErrors:        c.stats.fetchErrors.Load(),
		ExtractionErrors:   c.stats.extractionErrors.Load(),
		ClassifierCalls:    c.stats.classifierCalls.Load(),
		ClassifierDeclines: c.stats.classifierDeclines.Load(),
		Targets:            c.session.TargetStats(),
	}

	finalizeErr := c.finalize(metadata)
	c.logSummary(metadata)

	if ctx.Err() != nil {
		return metadata, errors.Join(ctx.Err(), finalizeErr)
	}
	return metadata, finalizeErr
}

// seed registers one target per distinct, well-formed seed URL and enqueues
// it as the first listing page of that target
func (c *Crawler) seed(seeds []string) []string {
	var accepted []string
	seen := make(map[string]bool, len(seeds))
	for i, raw := range seeds {
		seedLog := c.log.WithFields(logrus.Fields{"index": i, "url": raw})
		normalized, parsed, err := parse.ParseAndNormalize(raw)
		if err != nil {
			seedLog.Warnf("Invalid seed URL: %v. Skipping.", err)
			continue
		}
		if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Hostname() == "" {
			seedLog.Warn("Seed URL is not an absolute http(s) URL. Skipping.")
			continue
		}
		if seen[normalized] {
			seedLog.Warn("Duplicate seed URL. Skipping.")
			continue
		}
		seen[normalized] = true

		target := c.session.AddTarget(parsed, c.cfg.MaxPagesPerTarget, c.cfg.MaxArticlesPerTarget)
		if c.enqueue(target, normalized, models.PageKindListing, 1, seedLog) {
			accepted = append(accepted, normalized)
		}
	}
	return accepted
}

// waitForCompletion closes the frontier once every admitted entry is done or
// crawlCtx ends, reporting progress in the meantime. It reports whether
// crawlCtx ended first.
func (c *Crawler) waitForCompletion(crawlCtx context.Context) bool {
	tasksDone := make(chan struct{})
	go func() { c.wg.Wait(); close(tasksDone) }()

	ticker := time.NewTicker(c.progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-tasksDone:
			c.log.Info("Frontier drained, all entries processed")
			c.frontier.Close()
			return false
		case <-crawlCtx.Done():
			c.log.Warnf("Crawl stopping before the frontier drained: %v", crawlCtx.Err())
			c.frontier.Close()
			return true
		case <-ticker.C:
			c.log.WithFields(logrus.Fields{
				"visited":          c.session.Visited(),
				"frontier_len":     c.frontier.Len(),
				"listings_fetched": c.stats.listingsFetched.Load(),
				"articles_emitted": c.stats.articlesEmitted.Load(),
			}).Info("Crawl progress")
		}
	}
}

// worker pops entries until the frontier is closed and drained. Entries
// popped after the deadline are released without being fetched.
func (c *Crawler) worker(crawlCtx, fetchCtx context.Context, workerLog *logrus.Entry) {
	workerLog.Debug("Worker starting")
	defer workerLog.Debug("Worker finished")

	for {
		entry, ok := c.frontier.Pop()
		if !ok {
			return
		}
		c.comp.Metrics.SetFrontierDepth(c.frontier.Len())

		if crawlCtx.Err() != nil {
			c.stats.droppedAtDeadline.Add(1)
			c.wg.Done()
			continue
		}
		c.processEntry(fetchCtx, entry, workerLog)
	}
}

// enqueue admits normalizedURL through the session and pushes it onto the
// frontier. Articles already extracted by an earlier run are skipped.
func (c *Crawler) enqueue(target *models.CrawlTarget, normalizedURL string, kind models.PageKind, depth int, taskLog *logrus.Entry) bool {
	if admission := c.session.Admit(target, normalizedURL, kind); admission != Admitted {
		c.comp.Metrics.ObserveReject(admission.String())
		if admission == OverBudget {
			taskLog.WithFields(logrus.Fields{"candidate": normalizedURL, "kind": kind.String()}).Debug("Target budget exhausted, not enqueuing")
		}
		return false
	}

	if kind == models.PageKindArticle && c.comp.Store != nil {
		fresh, err := c.comp.Store.MarkArticlePending(normalizedURL, c.runID)
		if err != nil {
			taskLog.Warnf("State store error for '%s', enqueuing anyway: %v", normalizedURL, err)
		} else if !fresh {
			c.comp.Metrics.ObserveReject("extracted")
			taskLog.WithField("candidate", normalizedURL).Debug("Article extracted by an earlier run, skipping")
			return false
		}
	}

	c.wg.Add(1)
	if !c.frontier.Add(&models.FrontierEntry{URL: normalizedURL, Kind: kind, PageDepth: depth, Target: target}) {
		c.wg.Done()
		return false
	}
	c.comp.Metrics.ObserveEnqueue(kind.String())
	c.comp.Metrics.SetFrontierDepth(c.frontier.Len())
	return true
}

// processEntry fetches one frontier entry and dispatches it by kind.
// Failures are logged and the entry dropped; nothing is retried.
func (c *Crawler) processEntry(ctx context.Context, entry *models.FrontierEntry, workerLog *logrus.Entry) {
	taskLog := workerLog.WithFields(logrus.Fields{"url": entry.URL, "kind": entry.Kind.String(), "target": entry.Target.ID})
	startTime := time.Now()
	c.comp.Metrics.WorkerBusy(1)

	var taskErr error
	var contentHash string // Set once an article has been emitted

	defer func() {
		if r := recover(); r != nil {
			taskErr = fmt.Errorf("panic: %v", r)
			taskLog.WithFields(logrus.Fields{
				"panic_info":  r,
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in processEntry")
		}

		logFields := logrus.Fields{"duration": time.Since(startTime).String()}
		if taskErr != nil {
			logFields["category"] = utils.CategorizeError(taskErr)
			taskLog.WithFields(logFields).Warnf("Entry dropped: %v", taskErr)
		} else {
			taskLog.WithFields(logFields).Debug("Entry processed")
		}

		if entry.Kind == models.PageKindArticle && (taskErr != nil || contentHash != "") {
			c.recordArticleOutcome(entry.URL, contentHash, taskErr, taskLog)
		}
		c.comp.Metrics.WorkerBusy(-1)
		c.wg.Done()
	}()

	taskCtx := ctx
	if c.cfg.PerPageTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, c.cfg.PerPageTimeout)
		defer cancel()
	}

	page, err := c.fetchPage(taskCtx, entry, taskLog)
	if err != nil {
		taskErr = err
		return
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		taskErr = fmt.Errorf("%w: parsing HTML from '%s': %w", utils.ErrParsing, page.FinalURL, err)
		return
	}

	switch entry.Kind {
	case models.PageKindListing:
		c.handleListing(taskCtx, entry, page, doc, taskLog)
	case models.PageKindArticle:
		contentHash, taskErr = c.handleArticle(taskCtx, entry, page, doc, taskLog)
	}
}

// fetchPage applies robots.txt and the request limiter, then fetches once
func (c *Crawler) fetchPage(ctx context.Context, entry *models.FrontierEntry, taskLog *logrus.Entry) (*fetch.Page, error) {
	target, err := url.Parse(entry.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: URL '%s': %w", utils.ErrParsing, entry.URL, err)
	}

	if c.comp.Robots != nil && !c.comp.Robots.Allowed(ctx, target) {
		return nil, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, target.RequestURI())
	}

	if c.comp.Limiter != nil {
		release, err := c.comp.Limiter.Acquire(ctx, target.Host)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	fetchStart := time.Now()
	page, err := c.comp.Fetcher.Fetch(ctx, entry.URL)
	c.comp.Metrics.ObserveFetch(entry.Kind.String(), err, time.Since(fetchStart))
	if err != nil {
		c.stats.fetchErrors.Add(1)
		return nil, err
	}

	if entry.Kind == models.PageKindListing {
		c.stats.listingsFetched.Add(1)
	} else {
		c.stats.articlesFetched.Add(1)
	}
	if page.FinalURL.String() != entry.URL {
		taskLog.WithField("final_url", page.FinalURL.String()).Debug("URL redirected")
	}
	return page, nil
}

// handleListing triages a listing page and enqueues what it yields:
// article candidates, the next page of its pagination chain and
// category/tag section pages.
func (c *Crawler) handleListing(ctx context.Context, entry *models.FrontierEntry, page *fetch.Page, doc *goquery.Document, taskLog *logrus.Entry) {
	result := c.comp.Triager.Triage(ctx, doc, page.FinalURL, entry.PageDepth, entry.Target.MaxPages)

	if result.Classified || (result.ClassifierError != nil && !errors.Is(result.ClassifierError, utils.ErrClassifierDisabled)) {
		c.stats.classifierCalls.Add(1)
		if result.ClassifierError != nil {
			c.stats.classifierDeclines.Add(1)
		}
	}

	queued := 0
	for _, link := range result.Articles {
		if c.enqueue(entry.Target, link, models.PageKindArticle, entry.PageDepth, taskLog) {
			queued++
		}
	}
	nextQueued := false
	if result.NextPage != "" {
		nextQueued = c.enqueue(entry.Target, result.NextPage, models.PageKindListing, entry.PageDepth+1, taskLog)
	}
	sectionsQueued := 0
	for _, link := range result.SectionLinks {
		if c.enqueue(entry.Target, link, models.PageKindListing, 1, taskLog) {
			sectionsQueued++
		}
	}

	taskLog.WithFields(logrus.Fields{
		"hub":             result.Hub,
		"page":            entry.PageDepth,
		"sections":        result.SectionsFound,
		"sections_used":   result.SectionsUsed,
		"candidates":      len(result.Articles),
		"articles_queued": queued,
		"next_queued":     nextQueued,
		"section_links":   sectionsQueued,
	}).Info("Listing triaged")
}

// handleArticle extracts and emits one article. It returns the hash of the
// emitted body, or "" when the page redirected to an article this run has
// already claimed.
func (c *Crawler) handleArticle(ctx context.Context, entry *models.FrontierEntry, page *fetch.Page, doc *goquery.Document, taskLog *logrus.Entry) (string, error) {
	if finalURL := parse.NormalizeURL(page.FinalURL); finalURL != entry.URL && !c.session.Claim(finalURL) {
		taskLog.WithField("final_url", finalURL).Info("Redirect target already crawled, not emitting")
		return "", nil
	}

	article, err := c.comp.Extractor.Extract(doc, page.FinalURL)
	if err != nil {
		c.stats.extractionErrors.Add(1)
		c.comp.Metrics.ObserveArticle(err)
		return "", err
	}

	if err := c.comp.Sink.Emit(ctx, article); err != nil {
		return "", fmt.Errorf("emitting article: %w", err)
	}
	c.stats.articlesEmitted.Add(1)
	c.comp.Metrics.ObserveArticle(nil)

	if c.comp.Ledger != nil {
		if err := c.comp.Ledger.Record(article.URL); err != nil {
			taskLog.Errorf("Failed to record article in ledger: %v", err)
		}
	}

	taskLog.WithFields(logrus.Fields{"title": article.Title, "date": article.Date}).Info("Article emitted")
	return utils.CalculateStringSHA256(article.Body), nil
}

// recordArticleOutcome persists the article's status for resumed runs
func (c *Crawler) recordArticleOutcome(normalizedURL, contentHash string, taskErr error, taskLog *logrus.Entry) {
	if c.comp.Store == nil {
		return
	}
	now := time.Now()
	entry := &models.ArticleDBEntry{
		Status:      models.ArticleStatusExtracted,
		LastAttempt: now,
		RunID:       c.runID,
	}
	if taskErr != nil {
		entry.Status = models.ArticleStatusFailure
		entry.ErrorType = utils.CategorizeError(taskErr)
	} else {
		entry.ProcessedAt = now
		entry.ContentHash = contentHash
	}
	if err := c.comp.Store.UpdateArticleStatus(normalizedURL, entry); err != nil {
		taskLog.Errorf("Failed to update article status to '%s': %v", entry.Status, err)
	}
}
