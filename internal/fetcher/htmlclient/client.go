// Package htmlclient wraps a Colly collector into a single-page GET client
// used by the lightweight fetch paths.
package htmlclient

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"newswatch/internal/resilience"
)

// Identity rotation pool. Providers fingerprint repeated identical agents,
// so every request draws a fresh one.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// Config controls collector behavior.
type Config struct {
	Timeout time.Duration
	// Delay bounds the randomized pause between successive result parses.
	Delay time.Duration
}

// Response is a fetched page.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Client executes single-page GETs through a cloned Colly collector per
// request, rotating the user agent each time.
type Client struct {
	cfg           Config
	baseCollector *colly.Collector

	mu  sync.Mutex
	rng *rand.Rand
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 500 * time.Millisecond
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Client{
		cfg:           cfg,
		baseCollector: c,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Get fetches rawURL and returns the page. Non-2xx statuses surface as a
// resilience.StatusError so the retry policy can classify them.
func (c *Client) Get(ctx context.Context, rawURL string) (Response, error) {
	var (
		result   Response
		fetchErr error
	)

	collector := c.baseCollector.Clone()
	collector.UserAgent = c.RandomUserAgent()
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(c.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	})
	collector.OnResponse(func(r *colly.Response) {
		result = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = &resilience.StatusError{Code: r.StatusCode}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return Response{}, fetchErr
		}
		if err != nil {
			return Response{}, fmt.Errorf("visit %s: %w", rawURL, err)
		}
		return result, nil
	}
}

// RandomUserAgent draws one identity from the rotation pool.
func (c *Client) RandomUserAgent() string {
	return RandomUserAgent()
}

var (
	poolMu  sync.Mutex
	poolRNG = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// RandomUserAgent draws one identity from the rotation pool. Safe for
// concurrent use.
func RandomUserAgent() string {
	poolMu.Lock()
	defer poolMu.Unlock()
	return userAgents[poolRNG.Intn(len(userAgents))]
}

// ParseDelay sleeps a randomized fraction of the configured delay. Fetchers
// call it between successive result parses to stay under provider radar.
func (c *Client) ParseDelay(ctx context.Context) {
	c.mu.Lock()
	jitter := time.Duration(c.rng.Int63n(int64(c.cfg.Delay)))
	c.mu.Unlock()
	select {
	case <-ctx.Done():
	case <-time.After(c.cfg.Delay/2 + jitter):
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
