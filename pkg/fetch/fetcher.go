package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/latamwire/news-crawler/pkg/utils"
)

// Page is a successfully fetched HTML document
type Page struct {
	RequestedURL string
	FinalURL     *url.URL // After redirects; relative links resolve against this
	StatusCode   int
	Body         []byte
}

// Fetcher performs single-attempt GET requests for HTML pages.
// Target sites are untrusted and discovery is best-effort, so a failed
// request is reported to the caller and never retried.
type Fetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64 // 0 = unlimited
	log          *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, userAgent string, maxBodyBytes int64, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:       client,
		userAgent:    userAgent,
		maxBodyBytes: maxBodyBytes,
		log:          log,
	}
}

// Fetch retrieves pageURL once. Every failure wraps utils.ErrFetch (or is a
// context error when ctx ends first).
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	reqLog := f.log.WithField("url", pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "es,pt;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			reqLog.Debugf("Request abandoned: %v", err)
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", utils.ErrFetch, err)
	}
	defer func() {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
	}()

	statusCode := resp.StatusCode
	resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode})
	switch {
	case statusCode >= 200 && statusCode < 300:
	case statusCode >= 500:
		return nil, fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, resp.Status)
	case statusCode >= 400:
		return nil, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)
	default:
		return nil, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, resp.Status)
	}

	if ct := resp.Header.Get("Content-Type"); !isHTMLContentType(ct) {
		return nil, fmt.Errorf("%w: %q", utils.ErrNonHTMLContent, ct)
	}

	reader := io.Reader(resp.Body)
	if f.maxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	if f.maxBodyBytes > 0 && int64(len(body)) > f.maxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", utils.ErrResponseTooBig, f.maxBodyBytes)
	}

	resLog.WithField("bytes", len(body)).Debug("Fetched page")
	return &Page{
		RequestedURL: pageURL,
		FinalURL:     resp.Request.URL,
		StatusCode:   statusCode,
		Body:         body,
	}, nil
}

// isHTMLContentType accepts HTML, XHTML and a missing header; servers for
// small news sites frequently omit it.
func isHTMLContentType(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
