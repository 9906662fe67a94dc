package storage

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latamwire/news-crawler/pkg/models"
	"github.com/latamwire/news-crawler/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir(), false, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

const articleURL = "https://news.example.com/2025/05/story"

func TestNewBadgerStore(t *testing.T) {
	t.Run("fresh start has zero count", func(t *testing.T) {
		store := newTestStore(t)
		assert.Equal(t, 0, store.Count())
	})

	t.Run("resume preserves data", func(t *testing.T) {
		dir := t.TempDir()
		store1, err := NewBadgerStore(dir, false, testLogger())
		require.NoError(t, err)
		require.NoError(t, store1.UpdateArticleStatus(articleURL, &models.ArticleDBEntry{Status: models.ArticleStatusExtracted}))
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, true, testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		assert.Equal(t, 1, store2.Count())
		status, _, err := store2.CheckArticleStatus(articleURL)
		require.NoError(t, err)
		assert.Equal(t, models.ArticleStatusExtracted, status)
	})

	t.Run("no resume wipes data", func(t *testing.T) {
		dir := t.TempDir()
		store1, err := NewBadgerStore(dir, false, testLogger())
		require.NoError(t, err)
		_, err = store1.MarkArticlePending(articleURL, "run-1")
		require.NoError(t, err)
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, false, testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		status, _, err := store2.CheckArticleStatus(articleURL)
		require.NoError(t, err)
		assert.Equal(t, models.ArticleStatusNotFound, status)
	})
}

func TestMarkArticlePending(t *testing.T) {
	store := newTestStore(t)

	marked, err := store.MarkArticlePending(articleURL, "run-1")
	require.NoError(t, err)
	assert.True(t, marked)
	assert.Equal(t, 1, store.Count())

	status, entry, err := store.CheckArticleStatus(articleURL)
	require.NoError(t, err)
	assert.Equal(t, models.ArticleStatusPending, status)
	require.NotNil(t, entry)
	assert.Equal(t, "run-1", entry.RunID)

	// Pending and failed articles may be retried by a later run
	marked, err = store.MarkArticlePending(articleURL, "run-2")
	require.NoError(t, err)
	assert.True(t, marked)
	assert.Equal(t, 1, store.Count(), "re-marking does not add a key")

	require.NoError(t, store.UpdateArticleStatus(articleURL, &models.ArticleDBEntry{
		Status:      models.ArticleStatusExtracted,
		ProcessedAt: time.Now(),
		RunID:       "run-2",
		ContentHash: utils.CalculateStringSHA256("body"),
	}))

	marked, err = store.MarkArticlePending(articleURL, "run-3")
	require.NoError(t, err)
	assert.False(t, marked, "extracted articles are not queued again")

	_, entry, err = store.CheckArticleStatus(articleURL)
	require.NoError(t, err)
	assert.Equal(t, "run-2", entry.RunID, "extracted entry must not be overwritten")
}

func TestMarkArticlePending_Concurrent(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.MarkArticlePending(articleURL, "run-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, store.Count())
}

func TestCheckArticleStatus(t *testing.T) {
	store := newTestStore(t)

	t.Run("unknown URL", func(t *testing.T) {
		status, entry, err := store.CheckArticleStatus("https://news.example.com/unknown")
		require.NoError(t, err)
		assert.Equal(t, models.ArticleStatusNotFound, status)
		assert.Nil(t, entry)
	})

	t.Run("failure entry", func(t *testing.T) {
		require.NoError(t, store.UpdateArticleStatus(articleURL, &models.ArticleDBEntry{
			Status:    models.ArticleStatusFailure,
			ErrorType: "HTTP_404",
		}))
		status, entry, err := store.CheckArticleStatus(articleURL)
		require.NoError(t, err)
		assert.Equal(t, models.ArticleStatusFailure, status)
		assert.Equal(t, "HTTP_404", entry.ErrorType)
	})

	t.Run("corrupt value is pending", func(t *testing.T) {
		key := []byte(articleKeyPrefix + "https://news.example.com/corrupt")
		require.NoError(t, store.db.Update(func(txn *badger.Txn) error {
			return txn.Set(key, []byte("{not json"))
		}))
		status, entry, err := store.CheckArticleStatus("https://news.example.com/corrupt")
		require.NoError(t, err)
		assert.Equal(t, models.ArticleStatusPending, status)
		assert.Nil(t, entry)
	})
}

func TestUpdateArticleStatus_RejectsInvalidStatus(t *testing.T) {
	store := newTestStore(t)
	for _, status := range []models.ArticleStatus{models.ArticleStatusUnset, models.ArticleStatusNotFound, models.ArticleStatusDBError} {
		err := store.UpdateArticleStatus(articleURL, &models.ArticleDBEntry{Status: status})
		assert.ErrorIs(t, err, utils.ErrDatabase, "status %s", status)
	}
	assert.Equal(t, 0, store.Count())
}

func TestCountByStatus(t *testing.T) {
	store := newTestStore(t)
	_, err := store.MarkArticlePending("https://a.test/1", "r")
	require.NoError(t, err)
	_, err = store.MarkArticlePending("https://a.test/2", "r")
	require.NoError(t, err)
	require.NoError(t, store.UpdateArticleStatus("https://a.test/2", &models.ArticleDBEntry{Status: models.ArticleStatusExtracted}))
	require.NoError(t, store.UpdateArticleStatus("https://a.test/3", &models.ArticleDBEntry{Status: models.ArticleStatusFailure}))

	counts, err := store.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[models.ArticleStatus]int{
		models.ArticleStatusPending:   1,
		models.ArticleStatusExtracted: 1,
		models.ArticleStatusFailure:   1,
	}, counts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.CountByStatus(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunGC_StopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunGC(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunGC did not stop after cancellation")
	}
}

func TestClose(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir(), false, testLogger())
	require.NoError(t, err)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close(), "second close should be safe")
}

func TestDBUpdateConflictRetry(t *testing.T) {
	t.Run("succeeds after transient conflicts", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			if attempts <= 3 {
				return badger.ErrConflict
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 4, attempts)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return badger.ErrConflict
		})
		require.ErrorIs(t, err, utils.ErrDatabase)
		assert.Contains(t, err.Error(), "transaction conflict not resolved")
		assert.Equal(t, maxConflictRetries, attempts)
	})

	t.Run("non-conflict error returned immediately", func(t *testing.T) {
		store := newTestStore(t)
		attempts := 0
		sentinel := errors.New("some other error")
		err := store.dbUpdate(func(txn *badger.Txn) error {
			attempts++
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, attempts)
	})
}
