package detect

import (
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// Platform represents a detected publishing platform
type Platform string

const (
	PlatformUnknown   Platform = "unknown"
	PlatformWordPress Platform = "wordpress"
	PlatformGhost     Platform = "ghost"
	PlatformSubstack  Platform = "substack"
	PlatformMedium    Platform = "medium"
	PlatformDrupal    Platform = "drupal"
)

// Source tells where a Profile's selector came from
type Source string

const (
	SourceDomain   Source = "domain"   // Built-in or configured per-domain entry
	SourcePlatform Source = "platform" // Detected publishing platform
	SourceNone     Source = ""         // No profile; callers use the generic region
)

// Profile is the article-body locator chosen for one page
type Profile struct {
	Selector string
	Platform Platform
	Source   Source
}

// builtinProfiles are article-body containers for outlets the crawler is
// commonly seeded with. A selector matching zero paragraphs falls through to
// the generic article region, so a stale entry degrades gracefully.
var builtinProfiles = map[string]string{
	"latamlist.com":         ".entry-content",
	"contxto.com":           ".entry-content",
	"labsnews.com":          ".entry-content",
	"startupeable.com":      ".entry-content",
	"techcrunch.com":        ".wp-block-post-content, .article-content",
	"restofworld.org":       ".post-content",
	"bloomberglinea.com":    ".article-body, [class*=article-body]",
	"iupana.com":            ".entry-content",
	"pulsosocial.com":       ".entry-content",
	"startups.com.br":       ".entry-content",
	"neofeed.com.br":        ".content-text, .entry-content",
	"elcontribuyente.mx":    ".entry-content",
	"forbes.com.mx":         ".entry-content",
	"americaeconomia.com":   ".field--name-body",
	"tecnologia.com.co":     ".entry-content",
	"endeavor.org":          ".entry-content",
	"crunchbase.com":        ".entry-content",
	"news.crunchbase.com":   ".entry-content",
	"lavca.org":             ".entry-content",
	"emprendedores.news":    ".entry-content",
	"infobae.com":           ".article-body, .body-article",
	"clarin.com":            ".body-nota",
	"eleconomista.com.mx":   ".entry-content, .article-content",
	"expansion.mx":          ".article-body, .Page-articleBody",
	"valor.globo.com":       ".content-text__container",
	"exame.com":             ".article-content, #news-body",
	"larepublica.co":        ".html-content",
	"df.cl":                 ".article-body",
	"gestion.pe":            ".story-contents__content",
	"americasquarterly.org": ".entry-content",
}

// Registry maps a page to the container its article body lives in: an
// explicit per-domain profile first, then a platform detected from the markup.
// Domain profiles are read-only after construction; detection results are
// cached per host.
type Registry struct {
	profiles map[string]string

	mu    sync.RWMutex
	cache map[string]Profile

	log *logrus.Entry
}

// NewRegistry creates a registry from the built-in profiles merged with
// overrides. An override replaces the built-in entry for the same domain.
func NewRegistry(overrides map[string]string, log *logrus.Entry) *Registry {
	profiles := make(map[string]string, len(builtinProfiles)+len(overrides))
	for domain, selector := range builtinProfiles {
		profiles[domain] = selector
	}
	for domain, selector := range overrides {
		profiles[normalizeDomain(domain)] = selector
	}
	return &Registry{
		profiles: profiles,
		cache:    make(map[string]Profile),
		log:      log,
	}
}

// Lookup returns the profile for pageURL, detecting the platform from doc
// when no domain profile exists. Source is SourceNone when nothing matched.
func (r *Registry) Lookup(doc *goquery.Document, pageURL *url.URL) Profile {
	host := normalizeDomain(pageURL.Hostname())

	if selector, ok := r.domainProfile(host); ok {
		return Profile{Selector: selector, Platform: PlatformUnknown, Source: SourceDomain}
	}

	r.mu.RLock()
	cached, ok := r.cache[host]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	profile := r.detectPlatform(doc)
	if profile.Source == SourcePlatform {
		r.log.WithFields(logrus.Fields{"host": host, "platform": profile.Platform}).Debug("Detected publishing platform")
	}
	r.mu.Lock()
	r.cache[host] = profile
	r.mu.Unlock()
	return profile
}

// Len returns the number of per-domain profiles
func (r *Registry) Len() int {
	return len(r.profiles)
}

// domainProfile matches host or any parent domain, so "www.contxto.com" and
// "es.contxto.com" both use the "contxto.com" entry.
func (r *Registry) domainProfile(host string) (string, bool) {
	for h := host; h != ""; {
		if selector, ok := r.profiles[h]; ok {
			return selector, true
		}
		dot := strings.IndexByte(h, '.')
		if dot < 0 {
			break
		}
		h = h[dot+1:]
		if !strings.Contains(h, ".") {
			break // Never match a bare TLD
		}
	}
	return "", false
}

func (r *Registry) detectPlatform(doc *goquery.Document) Profile {
	html, _ := doc.Html()
	for _, sig := range platformSignatures {
		if sig.Matches(doc, html) {
			return Profile{Selector: sig.Selector, Platform: sig.Platform, Source: SourcePlatform}
		}
	}
	return Profile{Platform: PlatformUnknown, Source: SourceNone}
}

func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(domain, "www.")
}
