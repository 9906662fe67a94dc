package crawler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/latamwire/news-crawler/pkg/config"
	"github.com/latamwire/news-crawler/pkg/models"
	"github.com/latamwire/news-crawler/pkg/sink"
	"github.com/latamwire/news-crawler/pkg/storage"
	"github.com/latamwire/news-crawler/pkg/utils"
)

// finalizeTimeout bounds sink shutdown and the final store scan
const finalizeTimeout = 30 * time.Second

// Outputs are the per-run artifacts opened under the output directory
type Outputs struct {
	Sink   sink.Sink
	Ledger *storage.Ledger
}

// OpenOutputs opens the JSONL sink and the parsed-URL ledger. When mongoURI
// is set, articles are also upserted into MongoDB.
func OpenOutputs(ctx context.Context, cfg *config.AppConfig, runID, mongoURI string, log *logrus.Entry) (*Outputs, error) {
	jsonlPath := filepath.Join(cfg.OutputDir, cfg.Sink.JSONLFilename)
	jsonl, err := sink.NewJSONL(jsonlPath)
	if err != nil {
		return nil, err
	}
	log.Infof("Writing articles to %s", jsonlPath)
	sinks := sink.Multi{jsonl}

	if mongoURI != "" {
		mongoSink, err := sink.NewMongo(ctx, sink.MongoConfig{
			URI:        mongoURI,
			Database:   cfg.Sink.MongoDatabase,
			Collection: cfg.Sink.MongoCollection,
			Timeout:    cfg.Sink.MongoTimeout,
		}, runID, log)
		if err != nil {
			_ = jsonl.Close(ctx)
			return nil, err
		}
		log.Infof("Also writing articles to MongoDB %s.%s", cfg.Sink.MongoDatabase, cfg.Sink.MongoCollection)
		sinks = append(sinks, mongoSink)
	}

	ledger, err := storage.OpenLedger(filepath.Join(cfg.OutputDir, cfg.Sink.LedgerFilename), log)
	if err != nil {
		_ = sinks.Close(ctx)
		return nil, err
	}
	return &Outputs{Sink: sinks, Ledger: ledger}, nil
}

// finalize closes the sink, deduplicates the ledger and writes the run
// metadata. Every step runs even if an earlier one fails.
func (c *Crawler) finalize(metadata *models.RunMetadata) error {
	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if err := c.comp.Sink.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing sink: %w", err))
	}

	if c.comp.Ledger != nil {
		unique, err := c.comp.Ledger.Finalize()
		if err != nil {
			errs = append(errs, fmt.Errorf("finalizing ledger: %w", err))
		} else {
			c.log.WithField("path", c.comp.Ledger.Path()).Infof("Ledger holds %d unique article URLs", unique)
		}
	}

	if c.comp.Store != nil {
		counts, err := c.comp.Store.CountByStatus(ctx)
		if err != nil {
			c.log.Warnf("Could not tally article states: %v", err)
		} else {
			fields := logrus.Fields{}
			for status, n := range counts {
				fields[status.String()] = n
			}
			c.log.WithFields(fields).Info("Article state store totals")
		}
	}

	metadataPath := filepath.Join(c.cfg.OutputDir, c.cfg.Sink.MetadataFilename)
	if err := WriteMetadata(metadataPath, metadata); err != nil {
		errs = append(errs, err)
	} else {
		c.log.Infof("Wrote run metadata to %s", metadataPath)
	}

	return errors.Join(errs...)
}

func (c *Crawler) logSummary(md *models.RunMetadata) {
	summaryLog := c.log.WithField("deadline_reached", md.DeadlineReached)
	summaryLog.Info("========================================================================")
	summaryLog.Info("CRAWL FINISHED")
	summaryLog.Infof("Duration:         %v", md.EndTime.Sub(md.StartTime).Round(time.Millisecond))
	summaryLog.Infof("Targets:          %d", len(md.Targets))
	summaryLog.Infof("Listings fetched: %d, Articles fetched: %d, Emitted: %d",
		md.ListingsFetched, md.ArticlesFetched, md.ArticlesEmitted)
	summaryLog.Infof("Fetch errors: %d, Extraction errors: %d", md.FetchErrors, md.ExtractionErrors)
	summaryLog.Infof("Classifier calls: %d (declined: %d)", md.ClassifierCalls, md.ClassifierDeclines)
	if dropped := c.stats.droppedAtDeadline.Load(); dropped > 0 {
		summaryLog.Infof("Entries left unfetched at deadline: %d", dropped)
	}
	summaryLog.Info("========================================================================")
}

// WriteMetadata writes md as YAML to path, creating parent directories
func WriteMetadata(path string, md *models.RunMetadata) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: creating metadata directory: %w", utils.ErrFilesystem, err)
	}
	data, err := yaml.Marshal(md)
	if err != nil {
		return fmt.Errorf("marshaling run metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: writing metadata '%s': %w", utils.ErrFilesystem, path, err)
	}
	return nil
}

// ReadMetadata loads a run metadata file written by WriteMetadata
func ReadMetadata(path string) (*models.RunMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading metadata '%s': %w", utils.ErrFilesystem, path, err)
	}
	var md models.RunMetadata
	if err := yaml.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("%w: metadata '%s': %w", utils.ErrParsing, path, err)
	}
	return &md, nil
}
