package resilience

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// Resolver follows provider indirection links to their real destination.
// Engine results rarely point at the article directly; they bounce through
// tracking hops and sometimes land on a verification page that carries the
// true target in a query parameter.
type Resolver struct {
	client   *http.Client
	detector *BlockDetector
	logger   *zap.Logger
	maxHops  int
}

// Parameter names that verification pages use to smuggle the real target.
var redirectParamNames = []string{"backurl", "u", "url", "dest", "rd", "target"}

var encodedURLPattern = regexp.MustCompile(`https?%3A%2F%2F[A-Za-z0-9%._~:/?#\[\]@!$&'()*+,;=-]+`)

// Recursion bound for nested indirection. Two levels cover every provider
// seen so far; the bound exists so a contrived cycle still terminates.
const maxResolveDepth = 3

// NewResolver builds a resolver with a bounded-redirect HTTP client.
func NewResolver(detector *BlockDetector, logger *zap.Logger, maxHops int, timeout time.Duration) *Resolver {
	if maxHops <= 0 {
		maxHops = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxHops {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return &Resolver{
		client:   client,
		detector: detector,
		logger:   logger,
		maxHops:  maxHops,
	}
}

// Resolve returns the final destination of rawURL. It never fails hard: any
// error yields the input URL unchanged so the article link stays usable.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) string {
	return r.resolve(ctx, rawURL, 0)
}

func (r *Resolver) resolve(ctx context.Context, rawURL string, depth int) string {
	if depth >= maxResolveDepth {
		return rawURL
	}

	final, err := r.follow(ctx, rawURL)
	if err != nil {
		r.logger.Debug("redirect resolution failed, keeping original link",
			zap.String("url", rawURL), zap.Error(err))
		return rawURL
	}

	if !r.detector.BlockedURL(final) {
		return final
	}

	// The chain dead-ended on a verification page. Dig the real target out
	// of its query string and resolve that instead.
	if target, ok := extractTarget(final); ok && target != rawURL {
		return r.resolve(ctx, target, depth+1)
	}
	return rawURL
}

// follow issues a redirect-following HEAD and falls back to a streamed GET
// when the server rejects HEAD.
func (r *Resolver) follow(ctx context.Context, rawURL string) (string, error) {
	final, status, err := r.request(ctx, http.MethodHead, rawURL)
	if err == nil && status != http.StatusMethodNotAllowed && status != http.StatusNotFound {
		return final, nil
	}
	final, _, err = r.request(ctx, http.MethodGet, rawURL)
	if err != nil {
		return "", err
	}
	return final, nil
}

func (r *Resolver) request(ctx context.Context, method, rawURL string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build %s request: %w", method, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()
	if method == http.MethodGet {
		// Drain a little so keep-alive connections can be reused. The body
		// itself is not needed, only the post-redirect URL.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
	}
	return resp.Request.URL.String(), resp.StatusCode, nil
}

// extractTarget pulls an embedded destination URL out of a verification
// page address, first from well-known parameter names, then from any
// URL-encoded http(s) substring.
func extractTarget(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	query := u.Query()
	for _, name := range redirectParamNames {
		candidate := query.Get(name)
		if candidate == "" {
			continue
		}
		if decoded, err := url.QueryUnescape(candidate); err == nil {
			candidate = decoded
		}
		if isHTTPURL(candidate) {
			return candidate, true
		}
	}
	if match := encodedURLPattern.FindString(rawURL); match != "" {
		if decoded, err := url.QueryUnescape(match); err == nil && isHTTPURL(decoded) {
			return decoded, true
		}
	}
	return "", false
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
