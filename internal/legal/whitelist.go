// Package legal fetches pages from whitelisted legal sources and keeps
// durable snapshots. A snapshot's text is the canonical evidence that quoted
// excerpts are validated against, so once written it never changes except
// through a force refresh.
package legal

import (
	"net/url"
	"strings"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
)

// Whitelist is the ordered set of allowed legal source domains.
type Whitelist []string

// NewWhitelist normalizes entries: lowercase, trimmed, leading dots stripped.
// Empty entries are dropped.
func NewWhitelist(domains []string) Whitelist {
	out := make(Whitelist, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Allows reports whether a host matches an entry exactly or as a dot-suffix
// ("www.gov.uk" matches "gov.uk", "notgov.uk" does not).
func (w Whitelist) Allows(host string) bool {
	host = normalizeHost(host)
	if host == "" {
		return false
	}
	for _, d := range w {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// CheckURL parses a URL and verifies its host against the whitelist,
// returning the normalized host. This runs before any network or cache I/O.
func (w Whitelist) CheckURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", cgerrors.ValidationError(
			"url must be an absolute http(s) URL", err).WithDetail("url", rawURL)
	}
	host := normalizeHost(u.Host)
	if !w.Allows(host) {
		return "", cgerrors.DomainNotAllowed(host)
	}
	return host, nil
}

// normalizeHost lowercases and strips any port.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(host, ":"); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return strings.TrimSuffix(host, ".")
}
