package parse

import (
	"net"
	"net/url"
	"strings"
)

// trackingParams are query keys that never change page content and would
// otherwise defeat deduplication of shared links.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"ref":    true,
}

// NormalizeURL standardizes a URL for deduplication.
// It lowercases scheme and host, drops default ports and the fragment, trims a
// trailing slash (except on the root path), removes utm_* and other tracking
// parameters, and re-encodes the remaining query with sorted keys.
// Pagination parameters such as ?page=2 are kept.
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil {
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = strings.TrimRight(normalized.Path, "/")
		if normalized.Path == "" {
			normalized.Path = "/"
		}
	}
	normalized.RawPath = ""

	normalized.Fragment = ""
	normalized.RawFragment = ""
	normalized.RawQuery = cleanQuery(u.Query())

	return normalized.String()
}

func cleanQuery(values url.Values) string {
	for key := range values {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || trackingParams[lower] {
			values.Del(key)
		}
	}
	return values.Encode() // Encode sorts by key
}

// ParseAndNormalize parses a URL string using the stricter url.ParseRequestURI (requiring a scheme) and then normalizes it using NormalizeURL
// Returns the normalized string, the parsed URL object, and any parse error
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(strings.TrimSpace(urlStr))
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(parsed), parsed, nil
}

// ResolveHref resolves a raw href against the page it was found on.
// Returns nil for empty, fragment-only and unparsable hrefs.
func ResolveHref(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	return base.ResolveReference(ref)
}

// SiteHost returns the lowercased hostname without a leading "www."
func SiteHost(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// SameSite reports whether two URLs belong to the same site, treating the
// www. prefix as insignificant.
func SameSite(a, b *url.URL) bool {
	return a != nil && b != nil && SiteHost(a) == SiteHost(b)
}
