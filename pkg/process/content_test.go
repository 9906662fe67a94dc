package process

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latamwire/news-crawler/pkg/detect"
	"github.com/latamwire/news-crawler/pkg/utils"
)

func newTestExtractor(profiles map[string]string, extra ...string) *Extractor {
	return NewExtractor(detect.NewRegistry(profiles, testLogger()), extra, testLogger())
}

func TestExtract_GenericRegion(t *testing.T) {
	doc := mustDoc(t, `<html><head><meta name="description" content="meta summary"></head><body>
<nav><p>Menu text</p></nav>
<article>
  <h1>  Kavak raises   $100M </h1>
  <time datetime="2025-05-16T09:00:00Z">May 16</time>
  <p>Mexican used-car marketplace   Kavak raised a new round.</p>
  <p>The round was led by regional funds.</p>
  <p>Mexican used-car marketplace Kavak raised a new round.</p>
  <aside><p>Related: other news</p></aside>
  <form><p>Your Name</p></form>
  <p>Leave a Comment below</p>
  <footer><p>Copyright</p></footer>
</article>
</body></html>`)

	got, err := newTestExtractor(nil).Extract(doc, mustURL(t, "https://news.example.com/2025/05/kavak"))
	require.NoError(t, err)
	assert.Equal(t, "https://news.example.com/2025/05/kavak", got.URL)
	assert.Equal(t, "Kavak raises $100M", got.Title)
	assert.Equal(t, "Mexican used-car marketplace Kavak raised a new round.", got.Description)
	assert.Equal(t, "Mexican used-car marketplace Kavak raised a new round. The round was led by regional funds.", got.Body)
	assert.Equal(t, "2025-05-16", got.Date)
}

func TestExtract_DomainProfileFirst(t *testing.T) {
	doc := mustDoc(t, `<html><body>
<h1>Title</h1>
<div class="story-body"><p>Profile paragraph.</p></div>
<div class="post-sidebar"><p>Sidebar paragraph.</p></div>
</body></html>`)

	got, err := newTestExtractor(map[string]string{"news.example.com": ".story-body"}).
		Extract(doc, mustURL(t, "https://news.example.com/a"))
	require.NoError(t, err)
	assert.Equal(t, "Profile paragraph.", got.Body)
}

func TestExtract_ProfileWithoutParagraphsFallsBack(t *testing.T) {
	doc := mustDoc(t, `<html><body>
<h1>Title</h1>
<div class="story-body"><span>no paragraphs</span></div>
<div class="post"><p>Generic paragraph.</p></div>
</body></html>`)

	got, err := newTestExtractor(map[string]string{"news.example.com": ".story-body"}).
		Extract(doc, mustURL(t, "https://news.example.com/a"))
	require.NoError(t, err)
	assert.Equal(t, "Generic paragraph.", got.Body)
}

func TestExtract_WholeDocumentFallback(t *testing.T) {
	doc := mustDoc(t, `<html><body><h1>T</h1><main><p>Only paragraph.</p></main></body></html>`)

	got, err := newTestExtractor(nil).Extract(doc, mustURL(t, "https://news.example.com/a"))
	require.NoError(t, err)
	assert.Equal(t, "Only paragraph.", got.Body)
}

func TestExtract_BoilerplateSuppression(t *testing.T) {
	doc := mustDoc(t, `<html><body><article><h1>T</h1>
<p>Real content.</p>
<p>Your email address will not be published. Required fields are marked *</p>
<p>Website</p>
<p>Subscribe to our newsletter</p>
</article></body></html>`)

	got, err := newTestExtractor(nil, "Subscribe to our newsletter").Extract(doc, mustURL(t, "https://news.example.com/a"))
	require.NoError(t, err)
	assert.Equal(t, "Real content.", got.Body)

	// Deterministic across runs
	again, err := newTestExtractor(nil, "Subscribe to our newsletter").Extract(doc, mustURL(t, "https://news.example.com/a"))
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestExtract_EmptyBody(t *testing.T) {
	doc := mustDoc(t, `<html><body><h1>Title only</h1><nav><a href="/">Home</a></nav></body></html>`)

	_, err := newTestExtractor(nil).Extract(doc, mustURL(t, "https://news.example.com/a"))
	assert.ErrorIs(t, err, utils.ErrEmptyBody)
	assert.ErrorIs(t, err, utils.ErrExtraction)
}

func TestExtract_MetaDescriptionFallback(t *testing.T) {
	doc := mustDoc(t, `<html><head><meta name="description" content="Kavak raises a new round"></head>
<body><article><h1>Kavak</h1></article></body></html>`)

	got, err := newTestExtractor(nil).Extract(doc, mustURL(t, "https://news.example.com/kavak"))
	require.NoError(t, err)
	assert.Equal(t, "Kavak", got.Title)
	assert.Equal(t, "Kavak raises a new round", got.Description)
	assert.Empty(t, got.Body)
}

func TestExtract_OpenGraphDescriptionFallback(t *testing.T) {
	doc := mustDoc(t, `<html><head><meta property="og:description" content="Rappi closes Series G"></head>
<body><h1>Rappi</h1></body></html>`)

	got, err := newTestExtractor(nil).Extract(doc, mustURL(t, "https://news.example.com/rappi"))
	require.NoError(t, err)
	assert.Equal(t, "Rappi closes Series G", got.Description)
	assert.Empty(t, got.Body)
}

func TestExtract_TitleFallbacks(t *testing.T) {
	doc := mustDoc(t, `<!DOCTYPE html><html><head><title>Nubank expands to Colombia</title></head><body>
<article><p>Brazilian neobank Nubank announced its expansion to Colombia with a new credit card product aimed at young professionals.</p>
<p>The company said it expects to reach one million customers in the country within two years of launch.</p></article>
</body></html>`)

	got, err := newTestExtractor(nil).Extract(doc, mustURL(t, "https://news.example.com/nubank"))
	require.NoError(t, err)
	assert.Contains(t, got.Title, "Nubank expands to Colombia")
}

func TestExtract_RecoversPanic(t *testing.T) {
	doc := &goquery.Document{} // No root node: selection methods dereference nil
	_, err := newTestExtractor(nil).Extract(doc, mustURL(t, "https://news.example.com/a"))
	assert.ErrorIs(t, err, utils.ErrExtractorPanic)
	assert.True(t, errors.Is(err, utils.ErrExtraction))
}

func TestDefaultBoilerplatePhrases(t *testing.T) {
	e := newTestExtractor(nil)
	for _, phrase := range DefaultBoilerplatePhrases {
		assert.True(t, e.isBoilerplate("prefix "+phrase+" suffix"), phrase)
	}
	assert.False(t, e.isBoilerplate(strings.ToLower("ordinary sentence")))
}
