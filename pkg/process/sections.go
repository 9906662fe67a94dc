package process

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Section is a structural block of a listing page introduced by a heading
type Section struct {
	Title     string
	Selection *goquery.Selection
}

// ExtractSections decomposes a page into sections, in document order. Each
// h1-h3 heading belongs to its innermost section or div ancestor that holds
// at least one link; a container is titled by the first heading it claims.
// Layout wrappers around several sections therefore never absorb them.
func ExtractSections(doc *goquery.Document) []Section {
	var sections []Section
	claimed := make(map[*html.Node]bool)

	doc.Find("h1, h2, h3").Each(func(_ int, heading *goquery.Selection) {
		title := collapseSpace(heading.Text())
		if title == "" {
			return
		}
		// Parents are ordered nearest first
		container := heading.ParentsFiltered("section, div").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.Find("a[href]").Length() > 0
		}).First()
		if container.Length() == 0 || claimed[container.Get(0)] {
			return
		}
		claimed[container.Get(0)] = true
		sections = append(sections, Section{Title: title, Selection: container})
	})
	return sections
}

// SectionTitles returns the titles of sections in order
func SectionTitles(sections []Section) []string {
	titles := make([]string, len(sections))
	for i, s := range sections {
		titles[i] = s.Title
	}
	return titles
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
