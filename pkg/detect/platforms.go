package detect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlatformSignature defines detection patterns for a publishing platform
type PlatformSignature struct {
	Platform     Platform
	Selector     string   // CSS selector for the article body
	Generators   []string // Prefixes of <meta name="generator"> content
	Attributes   []string // HTML attributes to look for (e.g., "data-drupal-selector")
	Classes      []string // CSS classes to look for; a trailing * is a prefix match
	HTMLPatterns []string // Substring patterns to look for in raw HTML
}

// Matches returns true if the document matches this platform's signature
func (sig *PlatformSignature) Matches(doc *goquery.Document, html string) bool {
	generator := strings.ToLower(doc.Find(`meta[name="generator"]`).AttrOr("content", ""))
	for _, prefix := range sig.Generators {
		if generator != "" && strings.HasPrefix(generator, strings.ToLower(prefix)) {
			return true
		}
	}

	for _, attr := range sig.Attributes {
		if doc.Find("[" + attr + "]").Length() > 0 {
			return true
		}
	}

	for _, class := range sig.Classes {
		if prefix, ok := strings.CutSuffix(class, "*"); ok {
			if hasClassPrefix(doc, prefix) {
				return true
			}
		} else if doc.Find("."+class).Length() > 0 {
			return true
		}
	}

	htmlLower := strings.ToLower(html)
	for _, pattern := range sig.HTMLPatterns {
		if strings.Contains(htmlLower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

func hasClassPrefix(doc *goquery.Document, prefix string) bool {
	found := false
	doc.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, c := range strings.Fields(s.AttrOr("class", "")) {
			if strings.HasPrefix(c, prefix) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// platformSignatures contains detection patterns for publishing platforms
// common among regional startup outlets.
// Order matters: Ghost and Substack pages can carry WordPress-like markup in
// embeds, so the narrower signatures come first.
var platformSignatures = []PlatformSignature{
	{
		Platform:     PlatformSubstack,
		Selector:     ".available-content .body.markup, .available-content, .body.markup",
		HTMLPatterns: []string{"substackcdn.com", "substack.com/api"},
	},
	{
		Platform:     PlatformGhost,
		Selector:     ".gh-content, .post-content, .article-content",
		Generators:   []string{"ghost"},
		Classes:      []string{"gh-content", "gh-article*"},
		HTMLPatterns: []string{"ghost/content/", "content/images/size/"},
	},
	{
		Platform:     PlatformMedium,
		Selector:     "article section, article",
		HTMLPatterns: []string{"cdn-client.medium.com", "miro.medium.com"},
	},
	{
		Platform:     PlatformDrupal,
		Selector:     ".field--name-body, .node__content, .field-name-body",
		Generators:   []string{"drupal"},
		Attributes:   []string{"data-drupal-selector", "data-drupal-messages"},
		HTMLPatterns: []string{"drupal-settings-json"},
	},
	{
		Platform:     PlatformWordPress,
		Selector:     ".entry-content, .td-post-content, .single-post-content, .post-content",
		Generators:   []string{"wordpress"},
		Classes:      []string{"entry-content", "wp-block-post-content", "wp-block-*"},
		HTMLPatterns: []string{"/wp-content/", "/wp-includes/", "wp-json"},
	},
}

// PlatformSelector returns the article-body selector for a known platform
func PlatformSelector(p Platform) string {
	for _, sig := range platformSignatures {
		if sig.Platform == p {
			return sig.Selector
		}
	}
	return ""
}
