package news

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL canonicalizes a URL so the store's uniqueness check treats
// trivially different spellings of the same address as one article.
//
// Canonical form: lowercase scheme and host, default ports stripped, fragment
// dropped, query parameters sorted by key. Path and parameter values are kept
// as-is since many providers encode article identity there.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q in url %q", u.Scheme, rawURL)
	}
	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	if scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	} else {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in url %q", rawURL)
	}
	u.Fragment = ""
	// Query().Encode() sorts keys, which is exactly the stability we need.
	u.RawQuery = u.Query().Encode()
	return u.String(), nil
}
