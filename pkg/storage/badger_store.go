package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/latamwire/news-crawler/pkg/log"
	"github.com/latamwire/news-crawler/pkg/models"
	"github.com/latamwire/news-crawler/pkg/utils"
)

const (
	articleKeyPrefix = "article:"    // Prefix for article URL keys in DB
	articleDBDir     = "articles_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements StateStore using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // Cached key count for O(1) Count
}

// NewBadgerStore opens the article state database under stateDir. Unless
// resume is set, any state left by a previous run is removed first.
func NewBadgerStore(stateDir string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{log: logger}
	dbPath := filepath.Join(stateDir, articleDBDir)

	if !resume {
		logger.Infof("Resume flag is false. Removing existing state directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	opts := badger.DefaultOptions(dbPath).
		WithLogger(log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))).
		WithNumVersionsToKeep(1)

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	if resume {
		count, err := store.countKeys()
		if err != nil {
			logger.Warnf("Failed to count existing keys on resume: %v", err)
		} else {
			store.keyCount.Store(int64(count))
			logger.Infof("Loaded %d article states from previous runs", count)
		}
	}

	logger.WithFields(logrus.Fields{"path": dbPath, "resume": resume}).Info("Article state database ready")
	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization on resume)
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(articleKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

func decodeEntry(val []byte) (*models.ArticleDBEntry, error) {
	var entry models.ArticleDBEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// MarkArticlePending implements ArticleStore
func (s *BadgerStore) MarkArticlePending(normalizedURL, runID string) (bool, error) {
	key := []byte(articleKeyPrefix + normalizedURL)
	marked, isNew := false, false

	pending, err := json.Marshal(&models.ArticleDBEntry{
		Status:      models.ArticleStatusPending,
		LastAttempt: time.Now().UTC(),
		RunID:       runID,
	})
	if err != nil {
		return false, fmt.Errorf("%w: marshal pending entry: %w", utils.ErrParsing, err)
	}

	err = s.dbUpdate(func(txn *badger.Txn) error {
		marked, isNew = false, false
		item, errGet := txn.Get(key)
		switch {
		case errors.Is(errGet, badger.ErrKeyNotFound):
			isNew = true
		case errGet != nil:
			return errGet
		default:
			var existing *models.ArticleDBEntry
			if errVal := item.Value(func(val []byte) error {
				existing, _ = decodeEntry(val)
				return nil
			}); errVal != nil {
				return errVal
			}
			if existing != nil && existing.Status.IsTerminal() {
				return nil
			}
			if existing != nil && existing.Status == models.ArticleStatusPending && existing.RunID == runID {
				marked = true // Already pending for this run; skip the write
				return nil
			}
		}
		marked = true
		return txn.SetEntry(badger.NewEntry(key, pending))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkArticlePending: %v", err)
		return false, fmt.Errorf("%w: marking article key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	return marked, nil
}

// CheckArticleStatus implements ArticleStore
func (s *BadgerStore) CheckArticleStatus(normalizedURL string) (models.ArticleStatus, *models.ArticleDBEntry, error) {
	status := models.ArticleStatusNotFound
	var entry *models.ArticleDBEntry
	key := []byte(articleKeyPrefix + normalizedURL)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting article key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}
		return item.Value(func(val []byte) error {
			decoded, errJSON := decodeEntry(val)
			if errJSON != nil {
				s.log.Warnf("Failed to unmarshal ArticleDBEntry for key '%s': %v. Treating as 'pending'.", string(key), errJSON)
				status = models.ArticleStatusPending
				return nil
			}
			entry = decoded
			status = decoded.Status
			return nil
		})
	})
	if errView != nil {
		s.log.Errorf("DB View error in CheckArticleStatus for key '%s': %v", string(key), errView)
		return models.ArticleStatusDBError, nil, errView
	}
	return status, entry, nil
}

// UpdateArticleStatus implements ArticleStore
func (s *BadgerStore) UpdateArticleStatus(normalizedURL string, entry *models.ArticleDBEntry) error {
	if !entry.Status.IsValid() {
		return fmt.Errorf("%w: refusing to persist article status %q", utils.ErrDatabase, entry.Status)
	}
	key := []byte(articleKeyPrefix + normalizedURL)

	entryBytes, errJSON := json.Marshal(entry)
	if errJSON != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal ArticleDBEntry for key '%s': %w", utils.ErrParsing, string(key), errJSON)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		isNew = errors.Is(errGet, badger.ErrKeyNotFound)
		return txn.SetEntry(badger.NewEntry(key, entryBytes))
	})
	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in UpdateArticleStatus: %v", err)
		return fmt.Errorf("%w: failed setting article status for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}
	s.log.Debugf("Updated article status for key '%s' to '%s'", string(key), entry.Status)
	return nil
}

// Count implements StoreAdmin
func (s *BadgerStore) Count() int {
	return int(s.keyCount.Load())
}

// CountByStatus implements StoreAdmin
func (s *BadgerStore) CountByStatus(ctx context.Context) (map[models.ArticleStatus]int, error) {
	counts := make(map[models.ArticleStatus]int)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(articleKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			errVal := it.Item().Value(func(val []byte) error {
				entry, errJSON := decodeEntry(val)
				if errJSON != nil {
					counts[models.ArticleStatusUnset]++
					return nil
				}
				counts[entry.Status]++
				return nil
			})
			if errVal != nil {
				return errVal
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// RunGC runs BadgerDB's value log garbage collection periodically until ctx ends
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for err == nil {
				// Rewrite while at least half of a value log file is reclaimable
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection: %v", ctx.Err())
			return
		}
	}
}

// Close implements StoreAdmin
func (s *BadgerStore) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	if err := s.db.Close(); err != nil {
		s.log.Errorf("Error closing article state DB: %v", err)
		return err
	}
	s.log.Info("Article state DB closed.")
	return nil
}
