package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// maxRobotsBytes caps robots.txt downloads; anything larger is treated as absent
const maxRobotsBytes = 512 * 1024

// RobotsHandler fetches, parses and caches robots.txt per host
type RobotsHandler struct {
	client    *http.Client
	limiter   *RequestLimiter
	userAgent string
	cache     map[string]*robotstxt.RobotsData // host -> parsed data (nil = allow all)
	cacheMu   sync.Mutex
	log       *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(client *http.Client, limiter *RequestLimiter, userAgent string, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		client:    client,
		limiter:   limiter,
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
		log:       log,
	}
}

// Allowed reports whether our user agent may fetch target.
// Any failure to obtain robots.txt (network error, 4xx, 5xx, parse error)
// allows the fetch; the outcome is cached per host for the run.
func (rh *RobotsHandler) Allowed(ctx context.Context, target *url.URL) bool {
	data := rh.robotsData(ctx, target)
	if data == nil {
		return true
	}
	return data.TestAgent(target.RequestURI(), rh.userAgent)
}

func (rh *RobotsHandler) robotsData(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	host := target.Host
	rh.cacheMu.Lock()
	data, found := rh.cache[host]
	rh.cacheMu.Unlock()
	if found {
		return data
	}

	data = rh.fetch(ctx, target)

	// Do not cache a lookup abandoned by shutdown; a later caller may retry it
	if ctx.Err() == nil {
		rh.cacheMu.Lock()
		rh.cache[host] = data
		rh.cacheMu.Unlock()
	}
	return data
}

func (rh *RobotsHandler) fetch(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	scheme := target.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: target.Host, Path: "/robots.txt"}).String()
	robotsLog := rh.log.WithField("robots_url", robotsURL)

	release, err := rh.limiter.Acquire(ctx, target.Hostname())
	if err != nil {
		robotsLog.Warnf("Could not acquire request slot for robots.txt: %v", err)
		return nil
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		robotsLog.Errorf("Error creating request: %v", err)
		return nil
	}
	req.Header.Set("User-Agent", rh.userAgent)

	resp, err := rh.client.Do(req)
	if err != nil {
		robotsLog.Debugf("Fetching robots.txt failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		robotsLog.WithField("status_code", resp.StatusCode).Debug("No usable robots.txt")
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		robotsLog.Debugf("Error reading robots.txt: %v", err)
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		robotsLog.Warnf("Error parsing robots.txt: %v", err)
		return nil
	}
	robotsLog.Debug("Parsed robots.txt")
	return data
}
