package detect

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
)

// ReadabilityResult holds the metadata Mozilla's Readability algorithm
// recovers from a page
type ReadabilityResult struct {
	Title   string
	Excerpt string
}

// Readability runs the Readability algorithm over raw page HTML. It is used
// for the title and description fallbacks, never for the article body.
func Readability(html string, pageURL *url.URL) (ReadabilityResult, error) {
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return ReadabilityResult{}, fmt.Errorf("readability extraction failed: %w", err)
	}
	return ReadabilityResult{
		Title:   strings.Join(strings.Fields(article.Title), " "),
		Excerpt: strings.Join(strings.Fields(article.Excerpt), " "),
	}, nil
}
