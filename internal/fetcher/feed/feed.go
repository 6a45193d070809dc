// Package feed implements RSS/Atom fetchers. Feeds cannot be queried, so
// the keyword filter runs client-side over every entry.
package feed

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"newswatch/internal/fetcher/htmlclient"
	"newswatch/internal/metrics"
	"newswatch/internal/news"
)

// TruncationMarker closes a capped content snippet so readers can tell the
// body continues at the source.
const TruncationMarker = "..."

// Fetcher pulls one feed and filters its entries by keyword.
type Fetcher struct {
	source   news.Source
	feedURL  string
	clock    news.Clock
	logger   *zap.Logger
	maxRunes int
}

// Options configures a feed fetcher.
type Options struct {
	Source   news.Source
	FeedURL  string
	MaxRunes int
	Clock    news.Clock
	Logger   *zap.Logger
}

// New builds a feed fetcher.
func New(opts Options) *Fetcher {
	if opts.MaxRunes <= 0 {
		opts.MaxRunes = 500
	}
	return &Fetcher{
		source:   opts.Source,
		feedURL:  opts.FeedURL,
		clock:    opts.Clock,
		logger:   opts.Logger.Named(string(opts.Source)),
		maxRunes: opts.MaxRunes,
	}
}

// Source identifies the feed.
func (f *Fetcher) Source() news.Source {
	return f.source
}

// Fetch pulls the feed and keeps entries mentioning keyword in title or
// body, case-insensitively. Any feed or parse error yields an empty slice.
func (f *Fetcher) Fetch(ctx context.Context, keyword string, maxResults int) []news.Article {
	start := time.Now()
	articles := f.fetch(ctx, keyword, maxResults)
	outcome := news.Ok(articles).Kind
	metrics.ObserveFetch(string(f.source), outcome.String(), len(articles), time.Since(start))
	return articles
}

func (f *Fetcher) fetch(ctx context.Context, keyword string, maxResults int) []news.Article {
	// A gofeed.Parser lazily initializes shared internals on first use, so
	// concurrent fetches each get their own, with a fresh identity.
	parser := gofeed.NewParser()
	parser.UserAgent = htmlclient.RandomUserAgent()
	parsed, err := parser.ParseURLWithContext(f.feedURL, ctx)
	if err != nil {
		f.logger.Warn("feed pull failed", zap.String("feed", f.feedURL), zap.Error(err))
		return nil
	}

	needle := strings.ToLower(keyword)
	var articles []news.Article
	for _, item := range parsed.Items {
		if len(articles) >= maxResults {
			break
		}
		if item == nil || item.Link == "" {
			continue
		}
		body := itemBody(item)
		if !matchesKeyword(needle, item.Title, body) {
			continue
		}
		canonical, err := news.NormalizeURL(item.Link)
		if err != nil {
			f.logger.Debug("skipping entry with unusable link",
				zap.String("link", item.Link), zap.Error(err))
			continue
		}
		articles = append(articles, news.Article{
			Title:       strings.TrimSpace(item.Title),
			URL:         canonical,
			Content:     CapContent(body, f.maxRunes),
			Source:      f.source,
			Keyword:     keyword,
			CrawledAt:   f.clock.Now(),
			PublishedAt: item.PublishedParsed,
		})
	}
	return articles
}

// itemBody prefers the full content block and strips any HTML markup.
func itemBody(item *gofeed.Item) string {
	raw := item.Content
	if raw == "" {
		raw = item.Description
	}
	if raw == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return strings.TrimSpace(doc.Text())
}

func matchesKeyword(needle, title, body string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(title), needle) ||
		strings.Contains(strings.ToLower(body), needle)
}

// CapContent truncates s to maxRunes runes, appending the truncation marker
// when anything was cut.
func CapContent(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + TruncationMarker
}
