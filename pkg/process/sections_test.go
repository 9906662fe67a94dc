package process

import (
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeSectionPage has exactly three link-bearing containers with headings
const threeSectionPage = `<html><body>
<header><h1>Site Name</h1><a href="/">Home</a></header>
<section id="latest">
  <h2>Latest News</h2>
  <a href="/2025/05/story-one">One</a>
  <a href="/2025/05/story-two">Two</a>
</section>
<section id="events">
  <h2>Upcoming Events</h2>
  <a href="/agenda/meetup">Meetup</a>
</section>
<div class="block">
  <h3>Funding Rounds</h3>
  <ul><li><a href="/2025/05/story-three">Three</a></li></ul>
</div>
</body></html>`

func TestExtractSections(t *testing.T) {
	sections := ExtractSections(mustDoc(t, threeSectionPage))

	require.Len(t, sections, 3)
	assert.Equal(t, []string{"Latest News", "Upcoming Events", "Funding Rounds"}, SectionTitles(sections))
	assert.Equal(t, "latest", sections[0].Selection.AttrOr("id", ""))
	assert.Equal(t, "events", sections[1].Selection.AttrOr("id", ""))
	assert.Equal(t, "block", sections[2].Selection.AttrOr("class", ""))
}

func TestExtractSections_HeadingBelongsToInnermostContainer(t *testing.T) {
	doc := mustDoc(t, `<html><body>
<div class="outer"><section><h2>News</h2><a href="/a">A</a></section><a href="/b">B</a></div>
</body></html>`)
	sections := ExtractSections(doc)
	require.Len(t, sections, 1)
	assert.Equal(t, "News", sections[0].Title)
	assert.Equal(t, "section", goquery.NodeName(sections[0].Selection))
	assert.Equal(t, 1, sections[0].Selection.Find("a[href]").Length())
}

func TestExtractSections_LayoutWrapperDoesNotAbsorbSections(t *testing.T) {
	doc := mustDoc(t, `<html><body>
<div id="page">
  <section id="s1"><h2>Startups</h2><a href="/2025/05/one">One</a></section>
  <section id="s2"><h2>Events</h2><a href="/2025/05/two">Two</a></section>
  <section id="s3"><h2>Funding</h2><a href="/2025/05/three">Three</a></section>
</div>
</body></html>`)
	sections := ExtractSections(doc)

	require.Len(t, sections, 3)
	assert.Equal(t, []string{"Startups", "Events", "Funding"}, SectionTitles(sections))
	for i, id := range []string{"s1", "s2", "s3"} {
		assert.Equal(t, id, sections[i].Selection.AttrOr("id", ""))
		assert.Equal(t, 1, sections[i].Selection.Find("a[href]").Length())
	}
}

func TestExtractSections_HeadingInLinklessHeader(t *testing.T) {
	doc := mustDoc(t, `<html><body>
<div class="card"><div class="card-header"><h2>Fintech</h2></div>
  <ul><li><a href="/2025/05/pix">Pix</a></li></ul>
</div>
</body></html>`)
	sections := ExtractSections(doc)
	require.Len(t, sections, 1)
	assert.Equal(t, "card", sections[0].Selection.AttrOr("class", ""))
}

func TestExtractSections_WrapperIsItsOwnSection(t *testing.T) {
	doc := mustDoc(t, `<html><body>
<div id="wrap"><h1>Portal</h1>
  <section><h2>Startups</h2><a href="/s/1">1</a></section>
</div>
</body></html>`)
	assert.Equal(t, []string{"Portal", "Startups"}, SectionTitles(ExtractSections(doc)))
}

func TestExtractSections_SkipsEmptyAndLinkless(t *testing.T) {
	doc := mustDoc(t, `<html><body>
<section><h2>   </h2><a href="/a">A</a></section>
<section><h2>No links here</h2><p>text</p></section>
</body></html>`)
	assert.Empty(t, ExtractSections(doc))
}
