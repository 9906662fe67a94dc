package config

import "time"

// AppConfig holds the configuration for a crawl run
type AppConfig struct {
	UserAgent               string           `yaml:"user_agent"`
	DelayPerHost            time.Duration    `yaml:"delay_per_host"`
	NumWorkers              int              `yaml:"num_workers"`
	MaxRequests             int              `yaml:"max_requests"`
	MaxRequestsPerHost      int              `yaml:"max_requests_per_host"`
	OutputDir               string           `yaml:"output_dir"`
	StateDir                string           `yaml:"state_dir"`
	SemaphoreAcquireTimeout time.Duration    `yaml:"semaphore_acquire_timeout,omitempty"`
	CrawlDuration           time.Duration    `yaml:"crawl_duration"`           // Global wall-clock budget for a run
	ShutdownGrace           time.Duration    `yaml:"shutdown_grace,omitempty"` // How long in-flight fetches may outlive the deadline
	PerPageTimeout          time.Duration    `yaml:"per_page_timeout,omitempty"`
	MaxPageSizeBytes        int64            `yaml:"max_page_size_bytes,omitempty"`
	MaxPagesPerTarget       int              `yaml:"max_pages_per_target"`              // Listing pages per seed, pagination included
	MaxArticlesPerTarget    int              `yaml:"max_articles_per_target,omitempty"` // 0 = unlimited
	AllowExternalArticles   bool             `yaml:"allow_external_articles,omitempty"`
	RespectRobots           *bool            `yaml:"respect_robots,omitempty"` // nil = true
	HubPatterns             []string         `yaml:"hub_patterns,omitempty"`   // Regexes matched against the page URL
	RejectPathPatterns      []string         `yaml:"reject_path_patterns,omitempty"`
	Seeds                   []string         `yaml:"seeds,omitempty"`
	SeedsFile               string           `yaml:"seeds_file,omitempty"`
	Keywords                []string         `yaml:"keywords,omitempty"` // Accepted for future query scoping; not used by traversal
	Classifier              ClassifierConfig `yaml:"classifier"`
	Extraction              ExtractionConfig `yaml:"extraction,omitempty"`
	Sink                    SinkConfig       `yaml:"sink"`
	HTTPClientSettings      HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// ClassifierConfig controls the section classifier gate
type ClassifierConfig struct {
	Enabled        *bool         `yaml:"enabled,omitempty"` // nil = true
	Model          string        `yaml:"model,omitempty"`
	APIKeyEnv      string        `yaml:"api_key_env,omitempty"`
	CallsPerMinute int           `yaml:"calls_per_minute,omitempty"`
	CallsPerDay    int           `yaml:"calls_per_day,omitempty"`
	CallTimeout    time.Duration `yaml:"call_timeout,omitempty"`
}

// ExtractionConfig extends the built-in extraction rules
type ExtractionConfig struct {
	Profiles           map[string]string `yaml:"profiles,omitempty"` // domain -> article body selector
	BoilerplatePhrases []string          `yaml:"boilerplate_phrases,omitempty"`
}

// SinkConfig controls where extracted articles and run artifacts go
type SinkConfig struct {
	JSONLFilename    string        `yaml:"jsonl_filename,omitempty"`
	LedgerFilename   string        `yaml:"ledger_filename,omitempty"`   // Fully parsed URL ledger, deduplicated on finalize
	MetadataFilename string        `yaml:"metadata_filename,omitempty"` // Per-run YAML summary
	MongoURIEnv      string        `yaml:"mongo_uri_env,omitempty"`
	MongoDatabase    string        `yaml:"mongo_database,omitempty"`
	MongoCollection  string        `yaml:"mongo_collection,omitempty"`
	MongoTimeout     time.Duration `yaml:"mongo_timeout,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// DefaultHubPatterns match URL shapes of pages that are pure link lists:
// a listing-path suffix, or a news/tag/category/newsletter path segment.
var DefaultHubPatterns = []string{
	`/(?:latest|articles|blog|noticias|news)/?$`,
	`/(?:news|noticias|tag|tags|category|categoria|newsletter)/`,
}

// RobotsEnabled reports whether robots.txt rules are honored
func (c *AppConfig) RobotsEnabled() bool {
	return c.RespectRobots == nil || *c.RespectRobots
}

// IsEnabled reports whether the remote classifier is consulted at all
func (c ClassifierConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
