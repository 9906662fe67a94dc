package process

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/latamwire/news-crawler/pkg/detect"
	"github.com/latamwire/news-crawler/pkg/models"
	"github.com/latamwire/news-crawler/pkg/utils"
)

// genericArticleRegion is tried when no domain or platform profile yields text
const genericArticleRegion = `article, [class*="content"], [class*="article"], [class*="post"]`

// DefaultBoilerplatePhrases mark comment-form and sharing widgets that leak
// into article containers. A paragraph containing any of them is dropped.
var DefaultBoilerplatePhrases = []string{
	"Your email address will not be published",
	"Required fields are marked",
	"Submit Comment",
	"Website",
	"Comment",
	"Your Name",
	"Your E-mail",
}

// Extractor turns a fetched article page into an ExtractedArticle
type Extractor struct {
	profiles    *detect.Registry
	boilerplate []string
	log         *logrus.Entry
}

// NewExtractor creates an Extractor. extraBoilerplate is appended to
// DefaultBoilerplatePhrases.
func NewExtractor(profiles *detect.Registry, extraBoilerplate []string, log *logrus.Entry) *Extractor {
	phrases := make([]string, 0, len(DefaultBoilerplatePhrases)+len(extraBoilerplate))
	phrases = append(phrases, DefaultBoilerplatePhrases...)
	for _, p := range extraBoilerplate {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Extractor{profiles: profiles, boilerplate: phrases, log: log}
}

// Extract builds the article record for doc. The description is the first
// body paragraph; a page without paragraphs falls back to its meta
// description, then to the Readability excerpt, and is emitted with an empty
// body. A page with neither paragraphs nor a description fails with
// utils.ErrEmptyBody. A panic anywhere in extraction is recovered and
// reported as utils.ErrExtractorPanic.
func (e *Extractor) Extract(doc *goquery.Document, pageURL *url.URL) (article models.ExtractedArticle, err error) {
	defer func() {
		if r := recover(); r != nil {
			article = models.ExtractedArticle{}
			err = fmt.Errorf("%w: %v", utils.ErrExtractorPanic, r)
		}
	}()

	taskLog := e.log.WithField("url", pageURL.String())

	paragraphs, source := e.bodyParagraphs(doc, pageURL)
	article = models.ExtractedArticle{
		URL:   pageURL.String(),
		Title: collapseSpace(doc.Find("h1").First().Text()),
		Body:  strings.Join(paragraphs, " "),
		Date:  ExtractDate(doc),
	}
	if article.Title == "" {
		article.Title = collapseSpace(doc.Find("article h1").First().Text())
	}
	if len(paragraphs) > 0 {
		article.Description = paragraphs[0]
		taskLog.WithFields(logrus.Fields{"paragraphs": len(paragraphs), "container": source}).Debug("Extracted article body")
	} else {
		article.Description = metaDescription(doc)
	}

	if article.Title == "" || article.Description == "" {
		e.applyReadability(doc, pageURL, &article, taskLog)
	}
	if article.Description == "" {
		return models.ExtractedArticle{}, fmt.Errorf("%w: %s", utils.ErrEmptyBody, pageURL)
	}
	if article.Body == "" {
		taskLog.Debug("No article paragraphs, emitting with the page description only")
	}
	return article, nil
}

// metaDescription returns the page's meta description, or its Open Graph
// description when the former is missing
func metaDescription(doc *goquery.Document) string {
	for _, sel := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if content := collapseSpace(doc.Find(sel).First().AttrOr("content", "")); content != "" {
			return content
		}
	}
	return ""
}

// bodyParagraphs walks the container fallback chain and returns the cleaned
// paragraphs of the first container that has any, plus a label for logging.
func (e *Extractor) bodyParagraphs(doc *goquery.Document, pageURL *url.URL) ([]string, string) {
	if e.profiles != nil {
		if profile := e.profiles.Lookup(doc, pageURL); profile.Selector != "" {
			if paragraphs := e.cleanParagraphs(doc.Find(profile.Selector)); len(paragraphs) > 0 {
				return paragraphs, string(profile.Source) + ":" + profile.Selector
			}
		}
	}
	if paragraphs := e.cleanParagraphs(doc.Find(genericArticleRegion)); len(paragraphs) > 0 {
		return paragraphs, "generic"
	}
	return e.cleanParagraphs(doc.Selection), "document"
}

// cleanParagraphs collects whitespace-collapsed paragraph text under
// containers, dropping empty, duplicate and boilerplate paragraphs.
// Nested containers are handled once per paragraph node.
func (e *Extractor) cleanParagraphs(containers *goquery.Selection) []string {
	var paragraphs []string
	seen := make(map[string]bool)
	containers.Find("p").Each(func(_ int, p *goquery.Selection) {
		if p.ParentsFiltered("form, aside, footer").Length() > 0 {
			return
		}
		text := collapseSpace(p.Text())
		if text == "" || seen[text] || e.isBoilerplate(text) {
			return
		}
		seen[text] = true
		paragraphs = append(paragraphs, text)
	})
	return paragraphs
}

func (e *Extractor) isBoilerplate(text string) bool {
	for _, phrase := range e.boilerplate {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// applyReadability fills a missing title and description from Readability,
// whose title heuristics strip site-name suffixes from <title>. Failure is not
// an error: the fields simply stay empty.
func (e *Extractor) applyReadability(doc *goquery.Document, pageURL *url.URL, article *models.ExtractedArticle, taskLog *logrus.Entry) {
	html, err := doc.Html()
	if err != nil {
		taskLog.Debugf("Could not render document for readability: %v", err)
		return
	}
	result, err := detect.Readability(html, pageURL)
	if err != nil {
		taskLog.Debugf("Readability fallback failed: %v", err)
		return
	}
	if article.Title == "" {
		article.Title = result.Title
	}
	if article.Description == "" {
		article.Description = result.Excerpt
	}
}
