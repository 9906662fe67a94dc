package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/latamwire/news-crawler/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.UserAgent == "" {
		c.UserAgent = "latam-news-crawler/1.0 (+https://github.com/latamwire/news-crawler)"
	}

	if c.NumWorkers <= 0 {
		warnings = append(warnings, "num_workers should be > 0, defaulting to 4")
		c.NumWorkers = 4
	}

	if c.MaxRequests <= 0 {
		warnings = append(warnings, "max_requests should be > 0, defaulting to 10")
		c.MaxRequests = 10
	}

	if c.MaxRequestsPerHost <= 0 {
		warnings = append(warnings, "max_requests_per_host should be > 0, defaulting to 2")
		c.MaxRequestsPerHost = 2
	}

	if c.DelayPerHost < 0 {
		warnings = append(warnings, "delay_per_host cannot be negative, disabling politeness delay")
		c.DelayPerHost = 0
	}

	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to './output'")
		c.OutputDir = "./output"
	}

	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './crawler_state'")
		c.StateDir = "./crawler_state"
	}

	if c.SemaphoreAcquireTimeout <= 0 {
		c.SemaphoreAcquireTimeout = 30 * time.Second
	}

	// CrawlDuration
	if c.CrawlDuration < 0 {
		warnings = append(warnings, "crawl_duration cannot be negative, defaulting to 30m")
		c.CrawlDuration = 0
	}
	if c.CrawlDuration == 0 {
		c.CrawlDuration = 30 * time.Minute
	}

	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}

	if c.PerPageTimeout < 0 {
		warnings = append(warnings, "per_page_timeout cannot be negative, disabling timeout")
		c.PerPageTimeout = 0
	}

	if c.MaxPageSizeBytes <= 0 {
		c.MaxPageSizeBytes = 10 * 1024 * 1024
	}

	// Budgets
	if c.MaxPagesPerTarget < 0 {
		warnings = append(warnings, "max_pages_per_target cannot be negative, defaulting to 10")
		c.MaxPagesPerTarget = 0
	}
	if c.MaxPagesPerTarget == 0 {
		c.MaxPagesPerTarget = 10
	}
	if c.MaxArticlesPerTarget < 0 {
		warnings = append(warnings, "max_articles_per_target cannot be negative, setting to 0 (unlimited)")
		c.MaxArticlesPerTarget = 0
	}

	// Hub and reject patterns must compile; a bad regex is a startup error
	if len(c.HubPatterns) == 0 {
		c.HubPatterns = append([]string(nil), DefaultHubPatterns...)
	}
	if _, err := utils.CompileRegexPatterns(c.HubPatterns); err != nil {
		return warnings, fmt.Errorf("hub_patterns: %w", err)
	}
	if _, err := utils.CompileRegexPatterns(c.RejectPathPatterns); err != nil {
		return warnings, fmt.Errorf("reject_path_patterns: %w", err)
	}

	warnings = append(warnings, c.Classifier.applyDefaults()...)
	warnings = append(warnings, c.Extraction.applyDefaults()...)
	c.Sink.applyDefaults()
	c.validateHTTPClientSettings()

	return warnings, nil
}

// applyDefaults fills in classifier quotas; returns warnings for invalid values
func (c *ClassifierConfig) applyDefaults() (warnings []string) {
	if c.Model == "" {
		c.Model = "gemini-2.0-flash"
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = "GEMINI_API_KEY"
	}
	if c.CallsPerMinute <= 0 {
		if c.CallsPerMinute < 0 {
			warnings = append(warnings, "classifier.calls_per_minute cannot be negative, defaulting to 15")
		}
		c.CallsPerMinute = 15
	}
	if c.CallsPerDay <= 0 {
		if c.CallsPerDay < 0 {
			warnings = append(warnings, "classifier.calls_per_day cannot be negative, defaulting to 1500")
		}
		c.CallsPerDay = 1500
	}
	if c.CallsPerDay < c.CallsPerMinute {
		warnings = append(warnings, fmt.Sprintf(
			"classifier.calls_per_day (%d) < calls_per_minute (%d); the daily cap will dominate",
			c.CallsPerDay, c.CallsPerMinute))
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	return warnings
}

// applyDefaults drops profile entries that could never select anything
func (c *ExtractionConfig) applyDefaults() (warnings []string) {
	for domain, selector := range c.Profiles {
		if strings.TrimSpace(domain) == "" || strings.TrimSpace(selector) == "" {
			warnings = append(warnings, fmt.Sprintf("extraction profile %q has an empty domain or selector, ignoring", domain))
			delete(c.Profiles, domain)
		}
	}
	return warnings
}

func (c *SinkConfig) applyDefaults() {
	if c.JSONLFilename == "" {
		c.JSONLFilename = "articles.jsonl"
	}
	if c.LedgerFilename == "" {
		c.LedgerFilename = "parsed.txt"
	}
	if c.MetadataFilename == "" {
		c.MetadataFilename = "run_metadata.yaml"
	}
	if c.MongoURIEnv == "" {
		c.MongoURIEnv = "MONGO_URI"
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = "latam_news"
	}
	if c.MongoCollection == "" {
		c.MongoCollection = "articles"
	}
	if c.MongoTimeout <= 0 {
		c.MongoTimeout = 10 * time.Second
	}
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 30 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}
