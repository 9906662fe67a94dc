package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/latamwire/news-crawler/pkg/classifier"
	"github.com/latamwire/news-crawler/pkg/config"
	"github.com/latamwire/news-crawler/pkg/crawler"
	"github.com/latamwire/news-crawler/pkg/detect"
	"github.com/latamwire/news-crawler/pkg/fetch"
	"github.com/latamwire/news-crawler/pkg/metrics"
	"github.com/latamwire/news-crawler/pkg/models"
	"github.com/latamwire/news-crawler/pkg/process"
	"github.com/latamwire/news-crawler/pkg/storage"
	"github.com/latamwire/news-crawler/pkg/utils"
	"github.com/latamwire/news-crawler/pkg/watch"
)

const version = "0.4.0"

const (
	limiterEvictionInterval = 5 * time.Minute
	dbGCInterval            = 10 * time.Minute
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		os.Exit(runCrawl(os.Args[2:]))
	case "watch":
		os.Exit(runWatch(os.Args[2:]))
	case "validate":
		runValidate(os.Args[2:])
	case "dedupe-ledger":
		runDedupeLedger(os.Args[2:])
	case "version":
		fmt.Printf("news-crawler %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `news-crawler - LatAm startup news crawler

Usage:
  news-crawler <command> [options]

Commands:
  crawl          Run one budgeted crawl over the configured seeds
  watch          Re-run the crawl on a fixed interval
  validate       Validate configuration file
  dedupe-ledger  Deduplicate and sort a parsed-URL ledger file
  version        Show version info

Run 'news-crawler <command> -h' for command-specific help.`)
}

// runFlags are the options shared by crawl and watch
type runFlags struct {
	configFile   *string
	seedsFile    *string
	keywordsFile *string
	logLevel     *string
	metricsAddr  *string
	pprofAddr    *string
}

func registerRunFlags(fs *flag.FlagSet) runFlags {
	return runFlags{
		configFile:   fs.String("config", "config.yaml", "Path to config file"),
		seedsFile:    fs.String("seeds", "", "File with extra seed URLs, one per line"),
		keywordsFile: fs.String("keywords", "", "File with search keywords, one per line"),
		logLevel:     fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)"),
		metricsAddr:  fs.String("metrics", "", "Prometheus metrics address, e.g. localhost:9090 (disabled by default)"),
		pprofAddr:    fs.String("pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)"),
	}
}

// runCrawl handles the crawl subcommand and returns the process exit code
func runCrawl(args []string) int {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	flags := registerRunFlags(fs)
	resume := fs.Bool("resume", false, "Keep article state from previous runs and skip already extracted articles")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: news-crawler crawl [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  news-crawler crawl -config config.yaml\n")
		fmt.Fprintf(os.Stderr, "  news-crawler crawl -seeds seeds.txt -resume\n")
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}

	log := setupLogger(*flags.logLevel)
	a, err := newApp(flags, log)
	if err != nil {
		log.Errorf("Startup failed: %v", err)
		return 1
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	if err := a.open(ctx, *resume); err != nil {
		log.Errorf("Startup failed: %v", err)
		return 1
	}
	defer a.close()

	_, err = a.crawlOnce(ctx, uuid.NewString())
	switch {
	case err == nil:
		log.Info("Crawl completed successfully.")
		return 0
	case errors.Is(err, context.Canceled):
		log.Warn("Crawl cancelled gracefully.")
		return 0
	default:
		log.Errorf("Crawl finished with error: %v", err)
		return 1
	}
}

// runWatch handles the watch subcommand and returns the process exit code
func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	flags := registerRunFlags(fs)
	interval := fs.String("interval", "6h", "Crawl interval (e.g., 30m, 1h, 24h, 7d)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: news-crawler watch [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  news-crawler watch -interval 6h\n")
		fmt.Fprintf(os.Stderr, "  news-crawler watch -interval 1d -metrics localhost:9090\n")
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}

	log := setupLogger(*flags.logLevel)
	every, err := watch.ParseInterval(*interval)
	if err != nil {
		log.Errorf("Invalid interval: %v", err)
		return 1
	}

	a, err := newApp(flags, log)
	if err != nil {
		log.Errorf("Startup failed: %v", err)
		return 1
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	// Article state carries across scheduled runs
	if err := a.open(ctx, true); err != nil {
		log.Errorf("Startup failed: %v", err)
		return 1
	}
	defer a.close()

	log.Infof("Watching with interval %s", watch.FormatInterval(every))
	scheduler := watch.NewScheduler(a.cfg.StateDir, every, a.crawlOnce, log.WithField("component", "watch"))
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("Watch stopped: %v", err)
		return 1
	}
	log.Info("Watch stopped.")
	return 0
}

// app holds the components that live for the whole process. Each run gets
// its own crawler, sink and ledger on top of them.
type app struct {
	cfg       *config.AppConfig
	creds     config.Credentials
	seedsFile string
	log       *logrus.Logger

	metricsAddr string
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	store       *storage.BadgerStore
	components  crawler.Components
}

// newApp loads configuration and credentials. Nothing is opened yet.
func newApp(flags runFlags, log *logrus.Logger) (*app, error) {
	if err := config.LoadEnvFiles(); err != nil {
		log.Warnf("Env file: %v", err)
	}

	cfg, err := loadAndValidateConfig(*flags.configFile, log)
	if err != nil {
		return nil, err
	}
	if *flags.keywordsFile != "" {
		keywords, err := config.ReadLines(*flags.keywordsFile)
		if err != nil {
			return nil, fmt.Errorf("keywords: %w", err)
		}
		cfg.Keywords = append(cfg.Keywords, keywords...)
	}
	logAppConfig(cfg, log)

	creds, err := cfg.ResolveCredentials()
	if err != nil {
		return nil, err
	}

	startPprof(*flags.pprofAddr, log)

	registry := prometheus.NewRegistry()
	return &app{
		cfg:         cfg,
		creds:       creds,
		seedsFile:   *flags.seedsFile,
		log:         log,
		metricsAddr: *flags.metricsAddr,
		registry:    registry,
		metrics:     metrics.New(registry),
	}, nil
}

// open builds the long-lived components: HTTP client, limiter, robots cache,
// classifier gate, extraction profiles and the article state database.
func (a *app) open(ctx context.Context, resume bool) error {
	cfg := a.cfg
	logEntry := a.log.WithField("component", "crawl")

	if a.metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, a.metricsAddr, a.registry, logEntry); err != nil {
				logEntry.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	// --- Storage ---
	store, err := storage.NewBadgerStore(cfg.StateDir, resume, logEntry)
	if err != nil {
		return fmt.Errorf("initialize article state: %w", err)
	}
	a.store = store
	go store.RunGC(ctx, dbGCInterval)

	// --- HTTP Fetching Components ---
	httpClient := fetch.NewClient(cfg.HTTPClientSettings, logEntry)
	fetcher := fetch.NewFetcher(httpClient, cfg.UserAgent, cfg.MaxPageSizeBytes, logEntry)
	limiter := fetch.NewRequestLimiter(cfg.MaxRequests, cfg.MaxRequestsPerHost, cfg.SemaphoreAcquireTimeout, cfg.DelayPerHost, logEntry)
	go limiter.RunEviction(ctx, limiterEvictionInterval)

	a.components = crawler.Components{
		Fetcher: fetcher,
		Limiter: limiter,
		Store:   store,
		Metrics: a.metrics,
	}
	if cfg.RobotsEnabled() {
		a.components.Robots = fetch.NewRobotsHandler(httpClient, limiter, cfg.UserAgent, logEntry)
	} else {
		logEntry.Warn("robots.txt rules are NOT honored (respect_robots: false)")
	}

	// --- Listing Triage ---
	hubPatterns, err := utils.CompileRegexPatterns(cfg.HubPatterns)
	if err != nil {
		return fmt.Errorf("hub_patterns: %w", err)
	}
	rejectPatterns, err := utils.CompileRegexPatterns(cfg.RejectPathPatterns)
	if err != nil {
		return fmt.Errorf("reject_path_patterns: %w", err)
	}

	var sections process.SectionClassifier
	if cfg.Classifier.IsEnabled() {
		model, err := classifier.NewGeminiModel(ctx, a.creds.GeminiAPIKey, cfg.Classifier.Model)
		if err != nil {
			return err
		}
		quota := classifier.NewQuota(cfg.Classifier.CallsPerMinute, cfg.Classifier.CallsPerDay, logEntry)
		sections = classifier.NewGate(model, quota, cfg.Classifier.CallTimeout, a.metrics, logEntry.WithField("component", "classifier"))
		logEntry.Infof("Section classifier: %s (%d/min, %d/day)",
			cfg.Classifier.Model, cfg.Classifier.CallsPerMinute, cfg.Classifier.CallsPerDay)
	} else {
		logEntry.Info("Section classifier disabled; every section of a listing is used")
	}
	filter := process.NewLinkFilter(rejectPatterns, cfg.AllowExternalArticles)
	a.components.Triager = process.NewTriager(hubPatterns, filter, sections, logEntry)

	// --- Article Extraction ---
	registry := detect.NewRegistry(cfg.Extraction.Profiles, logEntry)
	logEntry.Infof("Loaded %d extraction profiles", registry.Len())
	a.components.Extractor = process.NewExtractor(registry, cfg.Extraction.BoilerplatePhrases, logEntry)

	return nil
}

// crawlOnce performs one complete run. It matches watch.RunFunc.
func (a *app) crawlOnce(ctx context.Context, runID string) (*models.RunMetadata, error) {
	runLog := a.log.WithFields(logrus.Fields{"component": "crawl", "run_id": runID})

	// Seeds are re-read every run so edits to the seeds file are picked up
	seeds, err := a.cfg.CollectSeeds(a.seedsFile)
	if err != nil {
		return nil, fmt.Errorf("seeds: %w", err)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: no seed URLs (set seeds, seeds_file or -seeds)", utils.ErrConfigValidation)
	}

	outputs, err := crawler.OpenOutputs(ctx, a.cfg, runID, a.creds.MongoURI, runLog)
	if err != nil {
		return nil, err
	}

	comp := a.components
	comp.Sink = outputs.Sink
	comp.Ledger = outputs.Ledger
	c, err := crawler.NewCrawler(a.cfg, runID, comp, a.log.WithField("component", "crawl"))
	if err != nil {
		_ = outputs.Sink.Close(ctx)
		_, _ = outputs.Ledger.Finalize()
		return nil, err
	}
	return c.Run(ctx, seeds)
}

func (a *app) close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.Errorf("Closing article state: %v", err)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// A second signal forces exit.
func signalContext(log *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		sig := <-sigChan
		log.Warnf("Received second signal: %v. Forcing exit.", sig)
		os.Exit(1)
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	seedsFile := fs.String("seeds", "", "File with extra seed URLs, one per line")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: news-crawler validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "WARN: %v\n", err)
	}
	os.Exit(doValidate(*configFile, *seedsFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath, seedsFile string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	seeds, err := cfg.CollectSeeds(seedsFile)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: seeds: %v\n", err)
		return 1
	}
	if len(seeds) == 0 {
		fmt.Fprintln(stderr, "ERROR: no seed URLs configured")
		return 1
	}
	fmt.Fprintf(stdout, "OK: %d seed URL(s)\n", len(seeds))

	if _, err := cfg.ResolveCredentials(); err != nil {
		fmt.Fprintf(stdout, "WARN: %v\n", err)
	}
	if cfg.Classifier.IsEnabled() {
		fmt.Fprintf(stdout, "OK: classifier %s, %d calls/min, %d calls/day\n",
			cfg.Classifier.Model, cfg.Classifier.CallsPerMinute, cfg.Classifier.CallsPerDay)
	} else {
		fmt.Fprintln(stdout, "OK: classifier disabled")
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runDedupeLedger handles the dedupe-ledger subcommand
func runDedupeLedger(args []string) {
	fs := flag.NewFlagSet("dedupe-ledger", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: news-crawler dedupe-ledger <file>\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	os.Exit(doDedupeLedger(fs.Arg(0), os.Stdout, os.Stderr))
}

// doDedupeLedger rewrites path as its unique sorted lines
func doDedupeLedger(path string, stdout, stderr io.Writer) int {
	unique, err := storage.DedupeFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "%s: %d unique URLs\n", path, unique)
	return 0
}

// setupLogger creates a configured logrus.Logger with the given log level.
func setupLogger(logLevelStr string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
		log.Infof("Setting log level to: %s", level.String())
	}

	return log
}

// loadAndValidateConfig loads the config file, validates it, and logs warnings.
func loadAndValidateConfig(configFile string, log *logrus.Logger) (*config.AppConfig, error) {
	log.Infof("Loading configuration from %s", configFile)
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrConfigValidation, err)
	}
	return cfg, nil
}

// startPprof starts the pprof HTTP server if addr is non-empty.
func startPprof(addr string, log *logrus.Logger) {
	if addr == "" {
		return
	}
	runtime.SetBlockProfileRate(1000)
	runtime.SetMutexProfileFraction(1000)
	go func() {
		log.Infof("Starting pprof server at http://%s/debug/pprof/", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Errorf("pprof server error: %v", err)
		}
	}()
}

// logAppConfig logs the effective configuration
func logAppConfig(cfg *config.AppConfig, log *logrus.Logger) {
	log.Infof("Config: Workers:%d, MaxReqs:%d, MaxReqPerHost:%d, DelayPerHost:%v",
		cfg.NumWorkers, cfg.MaxRequests, cfg.MaxRequestsPerHost, cfg.DelayPerHost)
	log.Infof("Config Budgets: CrawlDuration:%v, ShutdownGrace:%v, PagesPerTarget:%d, ArticlesPerTarget:%d",
		cfg.CrawlDuration, cfg.ShutdownGrace, cfg.MaxPagesPerTarget, cfg.MaxArticlesPerTarget)
	log.Infof("Config Timeouts: SemaphoreAcquire:%v, PerPage:%v, Classifier:%v",
		cfg.SemaphoreAcquireTimeout, cfg.PerPageTimeout, cfg.Classifier.CallTimeout)
	log.Infof("Config Paths: OutputDir:%s, StateDir:%s, JSONL:%s, Ledger:%s",
		cfg.OutputDir, cfg.StateDir, cfg.Sink.JSONLFilename, cfg.Sink.LedgerFilename)
	log.Infof("Config Links: HubPatterns:%d, RejectPatterns:%d, AllowExternal:%t, Robots:%t, Keywords:%d",
		len(cfg.HubPatterns), len(cfg.RejectPathPatterns), cfg.AllowExternalArticles, cfg.RobotsEnabled(), len(cfg.Keywords))
	log.Infof("Config HTTP Client: Timeout:%v, MaxIdle:%d, MaxIdlePerHost:%d, IdleTimeout:%v, TLSTimeout:%v, DialerTimeout:%v",
		cfg.HTTPClientSettings.Timeout, cfg.HTTPClientSettings.MaxIdleConns, cfg.HTTPClientSettings.MaxIdleConnsPerHost,
		cfg.HTTPClientSettings.IdleConnTimeout, cfg.HTTPClientSettings.TLSHandshakeTimeout, cfg.HTTPClientSettings.DialerTimeout)
}
