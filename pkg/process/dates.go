package process

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// metaDateLayout is the long-form date some themes print in a post meta list
const metaDateLayout = "January 2, 2006"

// ExtractDate returns the publication date as YYYY-MM-DD when it can be
// parsed, otherwise the raw date text found on the page, otherwise "".
// A date is never invented.
func ExtractDate(doc *goquery.Document) string {
	raw := strings.TrimSpace(doc.Find("time[datetime]").First().AttrOr("datetime", ""))
	if raw != "" && len(raw) >= len(time.DateOnly) {
		if t, err := time.Parse(time.DateOnly, raw[:len(time.DateOnly)]); err == nil {
			return t.Format(time.DateOnly)
		}
	}

	alt := collapseSpace(doc.Find(`li[class*="meta-date"]`).First().Text())
	if alt != "" {
		if t, err := time.Parse(metaDateLayout, alt); err == nil {
			return t.Format(time.DateOnly)
		}
		return alt
	}
	return raw
}
