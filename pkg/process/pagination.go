package process

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/latamwire/news-crawler/pkg/parse"
)

var pageNumberPattern = regexp.MustCompile(`page[=/\-]?(\d+)`)

// nextLinkText are link-text fragments that mark a "next page" control
var nextLinkText = []string{"Next", "next", "Older", "older"}

// nextPageStrategies are tried in order; the first usable href wins
var nextPageStrategies = []func(doc *goquery.Document) *goquery.Selection{
	func(doc *goquery.Document) *goquery.Selection {
		return doc.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
			if strings.EqualFold(strings.TrimSpace(a.AttrOr("rel", "")), "next") {
				return true
			}
			text := a.Text()
			for _, marker := range nextLinkText {
				if strings.Contains(text, marker) {
					return true
				}
			}
			return false
		})
	},
	func(doc *goquery.Document) *goquery.Selection { return doc.Find("li.next > a[href]") },
	func(doc *goquery.Document) *goquery.Selection { return doc.Find("a[href][class*=next]") },
	func(doc *goquery.Document) *goquery.Selection { return doc.Find(`a[href][aria-label*="Next"]`) },
}

// NextPageURL finds the next page of a paginated listing. currentPage is the
// 1-based index of pageURL within its pagination chain; nothing is returned
// once it reaches maxPages. Explicit "next" controls are preferred; otherwise
// the smallest page number above the current one among page links is used.
func NextPageURL(doc *goquery.Document, pageURL *url.URL, currentPage, maxPages int) (string, bool) {
	if currentPage >= maxPages {
		return "", false
	}

	for _, strategy := range nextPageStrategies {
		var next string
		strategy(doc).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if u, ok := usableNextHref(pageURL, a.AttrOr("href", "")); ok {
				next = u
				return false
			}
			return true
		})
		if next != "" {
			return next, true
		}
	}

	return numericNextPage(doc, pageURL)
}

func usableNextHref(pageURL *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if !strings.HasPrefix(href, "http") && !strings.HasPrefix(href, "/") {
		return "", false
	}
	link := parse.ResolveHref(pageURL, href)
	if link == nil || (link.Scheme != "http" && link.Scheme != "https") || !parse.SameSite(link, pageURL) {
		return "", false
	}
	normalized := parse.NormalizeURL(link)
	if normalized == parse.NormalizeURL(pageURL) {
		return "", false
	}
	return normalized, true
}

// numericNextPage infers the next page from numbered pagination links
func numericNextPage(doc *goquery.Document, pageURL *url.URL) (string, bool) {
	current, hasCurrent := pageNumber(pageURL.String())

	best := -1
	var bestURL string
	doc.Find(`a[href*="page"]`).Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		n, ok := pageNumber(href)
		if !ok || (hasCurrent && n <= current) {
			return
		}
		if best >= 0 && n >= best {
			return
		}
		link := parse.ResolveHref(pageURL, href)
		if link == nil || (link.Scheme != "http" && link.Scheme != "https") || !parse.SameSite(link, pageURL) {
			return
		}
		best = n
		bestURL = parse.NormalizeURL(link)
	})
	if best < 0 {
		return "", false
	}
	return bestURL, true
}

func pageNumber(s string) (int, bool) {
	m := pageNumberPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
