package process

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/latamwire/news-crawler/pkg/parse"
	"github.com/latamwire/news-crawler/pkg/utils"
)

// socialHosts are platforms whose links never lead to articles
var socialHosts = []string{
	"twitter.com", "x.com", "t.co",
	"linkedin.com", "lnkd.in",
	"tiktok.com",
	"youtube.com", "youtu.be",
	"facebook.com", "fb.com",
	"instagram.com",
	"vimeo.com",
	"whatsapp.com", "wa.me",
	"t.me", "telegram.me",
}

// imageExtensions are rejected by suffix of the lowercased path
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".svg": true,
	".webp": true, ".tiff": true, ".ico": true, ".mng": true, ".pct": true, ".psd": true,
	".ai": true, ".drw": true, ".dxf": true, ".eps": true, ".ps": true, ".cdr": true,
}

// nonArticlePath matches taxonomy, author, media, pagination, event and about paths
var nonArticlePath = regexp.MustCompile(
	`(?i)/(?:category|categoria|categorias|tag|tags|etiqueta|section|seccion|secciones|` +
		`author|autor|authors|video|videos|event|events|evento|eventos|` +
		`about|about-us|acerca|acerca-de|sobre|sobre-nosotros|nosotros|quienes-somos)(?:/|$)` +
		`|/page/\d+/?$`,
)

// pageQuery matches pagination in the query string
var pageQuery = regexp.MustCompile(`(?i)(?:^|&)(?:page|paged|pagina|pg)=\d+`)

// LinkFilter decides which hyperlinks on a listing page are article candidates
type LinkFilter struct {
	rejectPatterns []*regexp.Regexp // Extra path patterns from configuration
	allowExternal  bool
}

// NewLinkFilter creates a LinkFilter. rejectPatterns are matched against the
// link path in addition to the built-in rules.
func NewLinkFilter(rejectPatterns []*regexp.Regexp, allowExternal bool) *LinkFilter {
	return &LinkFilter{rejectPatterns: rejectPatterns, allowExternal: allowExternal}
}

// Accept resolves href against pageURL and reports whether it is an article
// candidate. The resolved URL is returned when accepted.
func (f *LinkFilter) Accept(pageURL *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(href, "#") {
		return nil, false
	}

	link := parse.ResolveHref(pageURL, href)
	if link == nil || (link.Scheme != "http" && link.Scheme != "https") {
		return nil, false
	}
	if isSocialHost(link) {
		return nil, false
	}
	if !f.allowExternal && !parse.SameSite(link, pageURL) {
		return nil, false
	}

	linkPath := link.Path
	if linkPath == "" || linkPath == "/" {
		return nil, false // Site root
	}
	if imageExtensions[strings.ToLower(path.Ext(linkPath))] {
		return nil, false
	}
	if nonArticlePath.MatchString(linkPath) || pageQuery.MatchString(link.RawQuery) {
		return nil, false
	}
	if utils.MatchesAny(f.rejectPatterns, linkPath) {
		return nil, false
	}
	return link, true
}

// Collect returns the normalized article candidates among the links inside
// sel, skipping any already present in seen. seen is updated, so passing the
// same map for several selections deduplicates across them.
func (f *LinkFilter) Collect(sel *goquery.Selection, pageURL *url.URL, seen map[string]bool) []string {
	var links []string
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		link, ok := f.Accept(pageURL, a.AttrOr("href", ""))
		if !ok {
			return
		}
		normalized := parse.NormalizeURL(link)
		if seen[normalized] {
			return
		}
		seen[normalized] = true
		links = append(links, normalized)
	})
	return links
}

func isSocialHost(u *url.URL) bool {
	host := parse.SiteHost(u)
	for _, social := range socialHosts {
		if host == social || strings.HasSuffix(host, "."+social) {
			return true
		}
	}
	return false
}

// SectionLinks returns same-site category and tag pages linked from doc.
// These are crawled as further listings of the same target.
func SectionLinks(doc *goquery.Document, pageURL *url.URL) []string {
	var links []string
	seen := make(map[string]bool)
	doc.Find(`a[href*="/category/"], a[href*="/tag/"]`).Each(func(_ int, a *goquery.Selection) {
		link := parse.ResolveHref(pageURL, a.AttrOr("href", ""))
		if link == nil || (link.Scheme != "http" && link.Scheme != "https") || !parse.SameSite(link, pageURL) {
			return
		}
		normalized := parse.NormalizeURL(link)
		if normalized == parse.NormalizeURL(pageURL) || seen[normalized] {
			return
		}
		seen[normalized] = true
		links = append(links, normalized)
	})
	return links
}
