// Package toutiao implements the browser-rendered Toutiao search fetcher.
// The site assembles its result list in JavaScript and gates plain HTTP
// clients, so every fetch goes through headless Chrome.
package toutiao

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"newswatch/internal/headless"
	"newswatch/internal/metrics"
	"newswatch/internal/news"
	"newswatch/internal/resilience"
)

const searchURL = "https://so.toutiao.com/search?dvpf=pc&source=input&keyword="

// Renderer is the slice of headless.Session this fetcher needs.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (string, error)
}

var _ Renderer = (*headless.Session)(nil)

// Fetcher renders Toutiao search pages headlessly.
type Fetcher struct {
	session  Renderer
	detector *resilience.BlockDetector
	clock    news.Clock
	logger   *zap.Logger
}

// New builds the fetcher.
func New(session Renderer, detector *resilience.BlockDetector, clock news.Clock, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		session:  session,
		detector: detector,
		clock:    clock,
		logger:   logger.Named("toutiao"),
	}
}

// Source identifies the provider.
func (f *Fetcher) Source() news.Source {
	return news.SourceToutiao
}

// Fetch renders the search page for keyword. Any render or parse failure
// yields an empty slice.
func (f *Fetcher) Fetch(ctx context.Context, keyword string, maxResults int) []news.Article {
	start := time.Now()
	out := f.fetch(ctx, keyword, maxResults)
	metrics.ObserveFetch(string(f.Source()), out.Kind.String(), len(out.Articles), time.Since(start))
	return out.Articles
}

func (f *Fetcher) fetch(ctx context.Context, keyword string, maxResults int) news.Outcome {
	html, err := f.session.Render(ctx, searchURL+queryEscape(keyword))
	if err != nil {
		f.logger.Warn("headless render failed", zap.Error(err))
		return news.Failed(err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return news.Failed(err)
	}
	if f.detector.BlockedPage(doc.Find("title").Text(), []byte(html)) {
		f.logger.Warn("search page is a verification page, skipping")
		return news.Blocked()
	}

	var articles []news.Article
	doc.Find("div.result-content").EachWithBreak(func(_ int, card *goquery.Selection) bool {
		anchor := card.Find("a[href]").First()
		link, _ := anchor.Attr("href")
		title := strings.TrimSpace(card.Find("div.title, a.title, h3").First().Text())
		if title == "" {
			title = strings.TrimSpace(anchor.Text())
		}
		if link == "" || title == "" {
			return true
		}
		canonical, err := news.NormalizeURL(link)
		if err != nil {
			return true
		}
		articles = append(articles, news.Article{
			Title:     title,
			URL:       canonical,
			Content:   strings.TrimSpace(card.Find("div.abstract, p").First().Text()),
			Source:    f.Source(),
			Keyword:   keyword,
			CrawledAt: f.clock.Now(),
		})
		return len(articles) < maxResults
	})
	return news.Ok(articles)
}

func queryEscape(s string) string {
	return url.QueryEscape(s)
}
