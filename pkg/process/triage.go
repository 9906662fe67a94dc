package process

import (
	"context"
	"errors"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/latamwire/news-crawler/pkg/utils"
)

// categoryPagePattern matches taxonomy listings that are not already hubs.
// Their sections are all used without asking the classifier.
var categoryPagePattern = regexp.MustCompile(`(?i)/(?:section|sections|seccion|secciones|topic|topics|tema|temas)(?:/|$)|[?&](?:cat|category|tag)=`)

// SectionClassifier picks the sections of a page that list articles.
// Any error means "no selection".
type SectionClassifier interface {
	TryClassify(ctx context.Context, titles []string) ([]int, error)
}

// TriageResult is what a listing page contributes to the frontier
type TriageResult struct {
	Hub             bool
	Articles        []string // Normalized article candidate URLs, page order
	NextPage        string   // Empty when there is no further page
	SectionLinks    []string // Category and tag listings to crawl next
	SectionsFound   int
	SectionsUsed    int
	Classified      bool  // The classifier's selection was applied
	ClassifierError error // Why the classifier declined, if it was asked and did
}

// Triager decides how a fetched listing page is scanned for article links
type Triager struct {
	hubPatterns []*regexp.Regexp
	filter      *LinkFilter
	classifier  SectionClassifier
	log         *logrus.Entry
}

// NewTriager creates a Triager. classifier may be nil, in which case every
// section of a structured page is used.
func NewTriager(hubPatterns []*regexp.Regexp, filter *LinkFilter, classifier SectionClassifier, log *logrus.Entry) *Triager {
	return &Triager{hubPatterns: hubPatterns, filter: filter, classifier: classifier, log: log}
}

// IsHubURL reports whether the URL shape marks a pure link-list page
func (t *Triager) IsHubURL(u *url.URL) bool {
	return utils.MatchesAny(t.hubPatterns, u.Path)
}

// Triage scans one listing page. currentPage is the page's position in its
// pagination chain and maxPages the chain limit.
//
// Hub pages yield every qualifying link as an article candidate and nothing
// else. Other pages are split into sections, narrowed by the classifier unless
// the URL is a category page, and additionally yield the next page and
// category/tag section links.
func (t *Triager) Triage(ctx context.Context, doc *goquery.Document, pageURL *url.URL, currentPage, maxPages int) TriageResult {
	taskLog := t.log.WithField("url", pageURL.String())
	seen := make(map[string]bool)

	if t.IsHubURL(pageURL) {
		articles := t.filter.Collect(doc.Selection, pageURL, seen)
		taskLog.WithField("articles", len(articles)).Debug("Hub page, collected links directly")
		return TriageResult{Hub: true, Articles: articles}
	}

	var result TriageResult
	sections := ExtractSections(doc)
	result.SectionsFound = len(sections)

	selected := sections
	switch {
	case len(sections) == 0:
		taskLog.Debug("No structural sections, scanning whole page")
	case categoryPagePattern.MatchString(pageURL.String()):
		taskLog.Debug("Category page, using every section")
	default:
		selected = t.selectSections(ctx, sections, &result, taskLog)
	}
	result.SectionsUsed = len(selected)

	if len(sections) == 0 {
		result.Articles = t.filter.Collect(doc.Selection, pageURL, seen)
	} else {
		for _, s := range selected {
			result.Articles = append(result.Articles, t.filter.Collect(s.Selection, pageURL, seen)...)
		}
	}

	if next, ok := NextPageURL(doc, pageURL, currentPage, maxPages); ok {
		result.NextPage = next
	}
	result.SectionLinks = SectionLinks(doc, pageURL)

	taskLog.WithFields(logrus.Fields{
		"sections":      result.SectionsFound,
		"sections_used": result.SectionsUsed,
		"articles":      len(result.Articles),
		"section_links": len(result.SectionLinks),
		"has_next":      result.NextPage != "",
	}).Debug("Triaged listing page")
	return result
}

// selectSections asks the classifier once for the page. On any decline every
// section is kept.
func (t *Triager) selectSections(ctx context.Context, sections []Section, result *TriageResult, taskLog *logrus.Entry) []Section {
	if t.classifier == nil {
		return sections
	}
	indices, err := t.classifier.TryClassify(ctx, SectionTitles(sections))
	if err != nil {
		result.ClassifierError = err
		entry := taskLog.WithFields(logrus.Fields{
			"sections": len(sections),
			"reason":   utils.CategorizeError(err),
		})
		if errors.Is(err, utils.ErrClassifierDisabled) {
			entry.Debug("Classifier disabled, using all sections")
		} else {
			entry.Warnf("Classifier declined, using all sections: %v", err)
		}
		return sections
	}

	result.Classified = true
	selected := make([]Section, 0, len(indices))
	for _, i := range indices {
		if i >= 0 && i < len(sections) {
			selected = append(selected, sections[i])
		}
	}
	return selected
}
