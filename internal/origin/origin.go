package origin

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrInvalidOrigin is returned for values that cannot be reduced to a
	// scheme://host origin.
	ErrInvalidOrigin = errors.New("origin: missing scheme or host")
)

// Wildcard accepts any origin wherever an allow-list or an expected origin
// is taken.
const Wildcard = "*"

// defaultPorts maps schemes to the port their URLs omit.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}

// Normalize reduces a raw origin or URL to its canonical scheme://host[:port]
// form: scheme and host lowercased, the scheme's default port stripped, and
// any path, query or fragment dropped. Two origins are equal exactly when
// their normalized forms are equal.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("origin: failed to parse %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidOrigin, raw)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()

	if port != "" && port != defaultPorts[scheme] {
		return scheme + "://" + net.JoinHostPort(host, port), nil
	}
	if strings.Contains(host, ":") {
		// Bare IPv6 literal needs its brackets back.
		return scheme + "://[" + host + "]", nil
	}
	return scheme + "://" + host, nil
}

// AllowList is a set of normalized origins. A single wildcard entry makes
// the list accept everything.
type AllowList struct {
	wildcard bool
	origins  map[string]struct{}
}

// NewAllowList normalizes each entry up front so membership checks compare
// canonical forms on both sides. Entries that are not valid origins are
// rejected here rather than silently never matching.
func NewAllowList(entries []string) (*AllowList, error) {
	l := &AllowList{origins: make(map[string]struct{}, len(entries))}
	for _, entry := range entries {
		if entry == Wildcard {
			l.wildcard = true
			continue
		}
		normalized, err := Normalize(entry)
		if err != nil {
			return nil, fmt.Errorf("origin: invalid allow-list entry %q: %w", entry, err)
		}
		l.origins[normalized] = struct{}{}
	}
	return l, nil
}

// Contains reports whether the given origin is allowed. The candidate is
// normalized before comparison; a candidate that does not parse as an origin
// is never allowed.
func (l *AllowList) Contains(raw string) bool {
	if l.wildcard {
		return true
	}
	normalized, err := Normalize(raw)
	if err != nil {
		return false
	}
	_, ok := l.origins[normalized]
	return ok
}
