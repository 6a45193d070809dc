// Package searchapi implements fetchers for structured JSON search APIs.
package searchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"newswatch/internal/metrics"
	"newswatch/internal/news"
	"newswatch/internal/resilience"
)

const googleEndpoint = "https://www.googleapis.com/customsearch/v1"

// Google queries the Custom Search JSON API.
type Google struct {
	apiKey   string
	engineID string
	client   *http.Client
	retry    *resilience.ExponentialRetryPolicy
	clock    news.Clock
	logger   *zap.Logger
	endpoint string
}

// GoogleOptions configures the Google fetcher.
type GoogleOptions struct {
	APIKey         string
	SearchEngineID string
	Timeout        time.Duration
	Retry          *resilience.ExponentialRetryPolicy
	Clock          news.Clock
	Logger         *zap.Logger
}

// NewGoogle builds the Google API fetcher.
func NewGoogle(opts GoogleOptions) *Google {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Google{
		apiKey:   opts.APIKey,
		engineID: opts.SearchEngineID,
		client:   &http.Client{Timeout: opts.Timeout},
		retry:    opts.Retry,
		clock:    opts.Clock,
		logger:   opts.Logger.Named("google"),
		endpoint: googleEndpoint,
	}
}

// Source identifies the provider.
func (g *Google) Source() news.Source {
	return news.SourceGoogle
}

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Fetch queries the API for keyword. Any error yields an empty slice.
func (g *Google) Fetch(ctx context.Context, keyword string, maxResults int) []news.Article {
	start := time.Now()

	// The API caps num at 10 per request.
	num := maxResults
	if num > 10 {
		num = 10
	}
	query := url.Values{}
	query.Set("key", g.apiKey)
	query.Set("cx", g.engineID)
	query.Set("q", keyword)
	query.Set("num", strconv.Itoa(num))
	query.Set("sort", "date")

	var parsed googleResponse
	err := g.retry.Do(ctx, g.logger, func() error {
		return getJSON(ctx, g.client, g.endpoint+"?"+query.Encode(), &parsed)
	})
	if err != nil {
		g.logger.Warn("google api query failed", zap.Error(err))
		metrics.ObserveFetch(string(g.Source()), news.OutcomeError.String(), 0, time.Since(start))
		return nil
	}

	articles := make([]news.Article, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Link == "" || item.Title == "" {
			continue
		}
		canonical, err := news.NormalizeURL(item.Link)
		if err != nil {
			continue
		}
		articles = append(articles, news.Article{
			Title:     strings.TrimSpace(item.Title),
			URL:       canonical,
			Content:   strings.TrimSpace(item.Snippet),
			Source:    g.Source(),
			Keyword:   keyword,
			CrawledAt: g.clock.Now(),
		})
	}
	metrics.ObserveFetch(string(g.Source()), news.Ok(articles).Kind.String(), len(articles), time.Since(start))
	return articles
}

// getJSON fetches a URL and decodes the JSON body, mapping non-2xx statuses
// to resilience.StatusError for retry classification.
func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("api request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.CopyN(io.Discard, resp.Body, 1024)
		return &resilience.StatusError{Code: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
