// Package urlnorm canonicalizes raw links into stable, comparable URLs.
//
// A normalized URL carries both its canonical string form and a dedup key.
// The key collapses cosmetic differences (case, default ports, fragments,
// trailing slashes) so the crawler recognizes revisits regardless of how a
// page was linked.
package urlnorm

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Rejection reasons surfaced by Normalize. Callers treat these as validation
// failures: the link is dropped and never retried.
var (
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	ErrExcluded          = errors.New("url matches an exclusion rule")
)

// NormalizedURL is the canonical form of a link plus its dedup key.
type NormalizedURL struct {
	// URL is the canonical absolute form, safe to fetch.
	URL string
	// Key identifies the page for deduplication. Two links to the same page
	// share a Key even when their raw forms differ.
	Key string
	// Host is the lowercased hostname without port, used for domain scoping.
	Host string
}

// Normalizer validates and canonicalizes raw links. Exclusion regexps and
// blocked host patterns are compiled once at construction.
type Normalizer struct {
	exclude []*regexp.Regexp
	blocked *hostBlocklist
}

// New compiles the exclusion patterns and blocked host list into a Normalizer.
func New(excludePatterns, blockedHosts []string) (*Normalizer, error) {
	n := &Normalizer{blocked: newHostBlocklist(blockedHosts)}
	for _, pat := range excludePatterns {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", pat, err)
		}
		n.exclude = append(n.exclude, re)
	}
	return n, nil
}

// Normalize resolves raw against base (nil base requires an absolute URL),
// canonicalizes it, and returns the normalized form. Non-HTTP(S) schemes,
// malformed URLs, and URLs matching an exclusion rule are rejected.
func (n *Normalizer) Normalize(raw string, base *url.URL) (NormalizedURL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return NormalizedURL{}, fmt.Errorf("parse url: empty input")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return NormalizedURL{}, fmt.Errorf("parse url %q: %w", raw, err)
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}

	canonicalize(parsed)

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return NormalizedURL{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, parsed.Scheme)
	}
	if parsed.Host == "" {
		return NormalizedURL{}, fmt.Errorf("parse url %q: missing host", raw)
	}

	canonical := parsed.String()
	if n != nil {
		if n.blocked.Blocked(parsed.Hostname()) {
			return NormalizedURL{}, fmt.Errorf("%w: host %q", ErrExcluded, parsed.Hostname())
		}
		for _, re := range n.exclude {
			if re.MatchString(canonical) {
				return NormalizedURL{}, fmt.Errorf("%w: pattern %q", ErrExcluded, re.String())
			}
		}
	}

	return NormalizedURL{
		URL:  canonical,
		Key:  dedupKey(parsed),
		Host: parsed.Hostname(),
	}, nil
}

// canonicalize rewrites u in place: lowercase scheme and host, default ports
// stripped, fragment dropped, empty path collapsed to "/", query parameters
// sorted so equivalent links print identically.
func canonicalize(u *url.URL) {
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	if u.Path == "" {
		u.Path = "/"
	}

	u.RawQuery = u.Query().Encode()
}

// dedupKey derives the page identity from a canonical URL. On top of the
// canonical form it strips a trailing slash (root path excepted) so "/a/"
// and "/a" map to the same page. The key is a pure function of the canonical
// form: recomputing it for the same page always yields the same string.
func dedupKey(u *url.URL) string {
	key := *u
	if key.Path != "/" && strings.HasSuffix(key.Path, "/") {
		key.Path = strings.TrimSuffix(key.Path, "/")
		key.RawPath = ""
	}
	return key.String()
}
