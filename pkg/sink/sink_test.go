package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

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

var sample = models.ExtractedArticle{
	URL:         "https://news.example.com/2025/05/kavak",
	Title:       "Kavak raises <$100M>",
	Description: "Mexican marketplace Kavak raised a round.",
	Body:        "Mexican marketplace Kavak raised a round. Led by regional funds.",
	Date:        "2025-05-16",
}

func readJSONL(t *testing.T, path string) []models.ExtractedArticle {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []models.ExtractedArticle
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var a models.ExtractedArticle
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &a))
		out = append(out, a)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestJSONL_EmitAndAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "articles.jsonl")

	s, err := NewJSONL(path)
	require.NoError(t, err)
	require.NoError(t, s.Emit(context.Background(), sample))
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()), "double close is safe")
	assert.ErrorIs(t, s.Emit(context.Background(), sample), ErrClosed)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"title":"Kavak raises <$100M>"`, "HTML is not escaped")

	// Reopening appends
	s, err = NewJSONL(path)
	require.NoError(t, err)
	second := sample
	second.URL = "https://news.example.com/other"
	require.NoError(t, s.Emit(context.Background(), second))
	require.NoError(t, s.Close(context.Background()))

	got := readJSONL(t, path)
	require.Len(t, got, 2)
	assert.Equal(t, sample, got[0])
	assert.Equal(t, second.URL, got[1].URL)
}

func TestJSONL_ConcurrentEmit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "articles.jsonl")
	s, err := NewJSONL(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Emit(context.Background(), sample))
		}()
	}
	wg.Wait()
	require.NoError(t, s.Close(context.Background()))
	assert.Len(t, readJSONL(t, path), 25, "no interleaved lines")
}

type failingSink struct{ err error }

func (f failingSink) Emit(context.Context, models.ExtractedArticle) error { return f.err }
func (f failingSink) Close(context.Context) error                         { return f.err }

func TestMulti(t *testing.T) {
	mem1, mem2 := NewMemory(), NewMemory()
	boom := errors.New("boom")
	multi := Multi{mem1, failingSink{boom}, mem2}

	err := multi.Emit(context.Background(), sample)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, mem1.Articles(), 1)
	assert.Len(t, mem2.Articles(), 1, "a failing sink does not stop the others")

	assert.ErrorIs(t, multi.Close(context.Background()), boom)
	assert.ErrorIs(t, mem1.Emit(context.Background(), sample), ErrClosed)
}

func TestMemory_ArticlesIsACopy(t *testing.T) {
	mem := NewMemory()
	require.NoError(t, mem.Emit(context.Background(), sample))
	got := mem.Articles()
	got[0].Title = "changed"
	assert.Equal(t, sample.Title, mem.Articles()[0].Title)
}

// TestMongo runs against a real server when MONGO_TEST_URI is set
func TestMongo(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx := context.Background()
	cfg := MongoConfig{
		URI:        uri,
		Database:   "latam_news_test",
		Collection: "articles_" + time.Now().Format("150405.000"),
		Timeout:    5 * time.Second,
	}
	m, err := NewMongo(ctx, cfg, "run-test", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.collection.Drop(ctx)
		_ = m.Close(ctx)
	})

	require.NoError(t, m.Emit(ctx, sample))
	updated := sample
	updated.Title = "Updated"
	require.NoError(t, m.Emit(ctx, updated))

	count, err := m.collection.CountDocuments(ctx, map[string]any{"url": sample.URL})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "emits upsert on url")
}

func TestNewMongo_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("dials the network")
	}
	_, err := NewMongo(context.Background(), MongoConfig{
		URI:        "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200&connectTimeoutMS=200",
		Database:   "x",
		Collection: "y",
		Timeout:    time.Second,
	}, "run", testLogger())
	assert.ErrorIs(t, err, utils.ErrDatabase)
}
