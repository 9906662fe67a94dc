package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRobots(t *testing.T, robotsBody string, status int) (*RobotsHandler, *httptest.Server, *atomic.Int32) {
	t.Helper()
	hits := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			w.WriteHeader(status)
			w.Write([]byte(robotsBody))
			return
		}
		w.Write([]byte("<html></html>"))
	}))
	t.Cleanup(server.Close)

	limiter := NewRequestLimiter(4, 2, time.Second, 0, testLogger())
	return NewRobotsHandler(testClient(), limiter, "latam-news-crawler", testLogger()), server, hits
}

func TestRobots_DisallowedPath(t *testing.T) {
	rh, server, hits := newTestRobots(t, "User-agent: *\nDisallow: /private/\n", http.StatusOK)

	private, err := url.Parse(server.URL + "/private/story")
	require.NoError(t, err)
	public, err := url.Parse(server.URL + "/news/story")
	require.NoError(t, err)

	assert.False(t, rh.Allowed(context.Background(), private))
	assert.True(t, rh.Allowed(context.Background(), public))
	assert.Equal(t, int32(1), hits.Load(), "robots.txt should be fetched once per host")
}

func TestRobots_MissingFileAllowsAll(t *testing.T) {
	rh, server, _ := newTestRobots(t, "", http.StatusNotFound)

	target, err := url.Parse(server.URL + "/anything")
	require.NoError(t, err)
	assert.True(t, rh.Allowed(context.Background(), target))
}

func TestRobots_ServerErrorAllowsAll(t *testing.T) {
	rh, server, _ := newTestRobots(t, "User-agent: *\nDisallow: /\n", http.StatusInternalServerError)

	target, err := url.Parse(server.URL + "/anything")
	require.NoError(t, err)
	assert.True(t, rh.Allowed(context.Background(), target))
}
