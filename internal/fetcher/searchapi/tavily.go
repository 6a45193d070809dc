package searchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"newswatch/internal/metrics"
	"newswatch/internal/news"
	"newswatch/internal/resilience"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// Tavily queries the Tavily search API with topic=news.
type Tavily struct {
	apiKey   string
	client   *http.Client
	retry    *resilience.ExponentialRetryPolicy
	clock    news.Clock
	logger   *zap.Logger
	endpoint string
}

// TavilyOptions configures the Tavily fetcher.
type TavilyOptions struct {
	APIKey  string
	Timeout time.Duration
	Retry   *resilience.ExponentialRetryPolicy
	Clock   news.Clock
	Logger  *zap.Logger
}

// NewTavily builds the Tavily fetcher.
func NewTavily(opts TavilyOptions) *Tavily {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Tavily{
		apiKey:   opts.APIKey,
		client:   &http.Client{Timeout: opts.Timeout},
		retry:    opts.Retry,
		clock:    opts.Clock,
		logger:   opts.Logger.Named("tavily"),
		endpoint: tavilyEndpoint,
	}
}

// Source identifies the provider.
func (t *Tavily) Source() news.Source {
	return news.SourceTavily
}

type tavilyRequest struct {
	Query      string `json:"query"`
	Topic      string `json:"topic"`
	MaxResults int    `json:"max_results"`
	Days       int    `json:"days"`
}

type tavilyResponse struct {
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		PublishedDate string  `json:"published_date"`
		Score         float64 `json:"score"`
	} `json:"results"`
}

// Fetch queries the API for keyword. Any error yields an empty slice.
func (t *Tavily) Fetch(ctx context.Context, keyword string, maxResults int) []news.Article {
	start := time.Now()

	payload, err := json.Marshal(tavilyRequest{
		Query:      keyword,
		Topic:      "news",
		MaxResults: maxResults,
		Days:       7,
	})
	if err != nil {
		t.logger.Warn("tavily request marshal failed", zap.Error(err))
		return nil
	}

	var parsed tavilyResponse
	err = t.retry.Do(ctx, t.logger, func() error {
		return t.post(ctx, payload, &parsed)
	})
	if err != nil {
		t.logger.Warn("tavily api query failed", zap.Error(err))
		metrics.ObserveFetch(string(t.Source()), news.OutcomeError.String(), 0, time.Since(start))
		return nil
	}

	articles := make([]news.Article, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		if item.URL == "" || item.Title == "" {
			continue
		}
		canonical, err := news.NormalizeURL(item.URL)
		if err != nil {
			continue
		}
		article := news.Article{
			Title:     strings.TrimSpace(item.Title),
			URL:       canonical,
			Content:   strings.TrimSpace(item.Content),
			Source:    t.Source(),
			Keyword:   keyword,
			CrawledAt: t.clock.Now(),
		}
		if ts, err := time.Parse(time.RFC3339, item.PublishedDate); err == nil {
			article.PublishedAt = &ts
		}
		articles = append(articles, article)
	}
	metrics.ObserveFetch(string(t.Source()), news.Ok(articles).Kind.String(), len(articles), time.Since(start))
	return articles
}

func (t *Tavily) post(ctx context.Context, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	resp, err := t.client.Do(req)
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
