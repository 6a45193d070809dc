// Package engine implements search-engine scraping fetchers. Each engine is
// described by a URL builder and a goquery selector set; the fetch path,
// fallback behavior, and fail-soft guarantees are shared.
package engine

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"newswatch/internal/fetcher/htmlclient"
	"newswatch/internal/headless"
	"newswatch/internal/metrics"
	"newswatch/internal/news"
	"newswatch/internal/resilience"
)

// descriptor captures what differs between engines.
type descriptor struct {
	source    news.Source
	searchURL func(keyword string) string
	parse     func(doc *goquery.Document, max int) []rawResult
}

type rawResult struct {
	title   string
	link    string
	snippet string
}

// Fetcher scrapes one search engine. It first tries a plain HTTP fetch and
// falls back to a headless render when that is blocked, empty, or broken.
type Fetcher struct {
	desc     descriptor
	client   *htmlclient.Client
	session  *headless.Session
	retry    *resilience.ExponentialRetryPolicy
	chain    *resilience.FallbackChain
	detector *resilience.BlockDetector
	resolver *resilience.Resolver
	clock    news.Clock
	logger   *zap.Logger
}

// Deps bundles the shared collaborators for engine fetchers.
type Deps struct {
	Client   *htmlclient.Client
	Session  *headless.Session
	Retry    *resilience.ExponentialRetryPolicy
	Detector *resilience.BlockDetector
	Resolver *resilience.Resolver
	Clock    news.Clock
	Logger   *zap.Logger
}

func newFetcher(desc descriptor, deps Deps) *Fetcher {
	return &Fetcher{
		desc:     desc,
		client:   deps.Client,
		session:  deps.Session,
		retry:    deps.Retry,
		chain:    resilience.NewFallbackChain(deps.Logger.Named(string(desc.source))),
		detector: deps.Detector,
		resolver: deps.Resolver,
		clock:    deps.Clock,
		logger:   deps.Logger.Named(string(desc.source)),
	}
}

// Source identifies the engine.
func (f *Fetcher) Source() news.Source {
	return f.desc.source
}

// Fetch scrapes the engine's result page for keyword. It never fails: any
// outcome other than success degrades to an empty slice.
func (f *Fetcher) Fetch(ctx context.Context, keyword string, maxResults int) []news.Article {
	start := time.Now()
	attempts := []resilience.Attempt{
		{Name: "lightweight", Run: func(ctx context.Context) news.Outcome {
			return f.fetchLightweight(ctx, keyword, maxResults)
		}},
	}
	if f.session != nil {
		attempts = append(attempts, resilience.Attempt{
			Name: "headless",
			Run: func(ctx context.Context) news.Outcome {
				return f.fetchHeadless(ctx, keyword, maxResults)
			},
		})
	}

	out := f.chain.Execute(ctx, attempts...)
	metrics.ObserveFetch(string(f.desc.source), out.Kind.String(), len(out.Articles), time.Since(start))
	if out.Kind != news.OutcomeOK {
		return nil
	}
	return out.Articles
}

func (f *Fetcher) fetchLightweight(ctx context.Context, keyword string, maxResults int) news.Outcome {
	searchURL := f.desc.searchURL(keyword)

	var resp htmlclient.Response
	err := f.retry.Do(ctx, f.logger, func() error {
		var getErr error
		resp, getErr = f.client.Get(ctx, searchURL)
		return getErr
	})
	if err != nil {
		return news.Failed(err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return news.Failed(err)
	}
	if f.detector.BlockedURL(resp.URL) || f.detector.BlockedPage(doc.Find("title").Text(), resp.Body) {
		return news.Blocked()
	}

	raw := f.desc.parse(doc, maxResults)
	if irrelevant(keyword, raw) {
		f.logger.Info("lightweight results look unrelated to keyword, deferring to headless",
			zap.String("keyword", keyword), zap.Int("results", len(raw)))
		return news.Outcome{Kind: news.OutcomeEmpty}
	}
	return news.Ok(f.collect(ctx, raw, keyword))
}

func (f *Fetcher) fetchHeadless(ctx context.Context, keyword string, maxResults int) news.Outcome {
	html, err := f.session.Render(ctx, f.desc.searchURL(keyword))
	if err != nil {
		return news.Failed(err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return news.Failed(err)
	}
	if f.detector.BlockedPage(doc.Find("title").Text(), []byte(html)) {
		return news.Blocked()
	}
	return news.Ok(f.collect(ctx, f.desc.parse(doc, maxResults), keyword))
}

// irrelevant reports whether lightweight results look like unrelated
// bleed-through: the keyword appears nowhere, or a majority of entries repeat
// one phrase that has nothing to do with it. Engines sometimes serve trending
// or promoted pages to non-browser clients.
func irrelevant(keyword string, results []rawResult) bool {
	if len(results) == 0 {
		return false
	}
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return false
	}

	matched := 0
	prefixes := make(map[string]int, len(results))
	for _, r := range results {
		text := strings.ToLower(r.title + " " + r.snippet)
		for _, term := range strings.Fields(kw) {
			if strings.Contains(text, term) {
				matched++
				break
			}
		}
		if p := titlePrefix(r.title); p != "" {
			prefixes[p]++
		}
	}
	if matched == 0 {
		return true
	}
	for prefix, n := range prefixes {
		if n*2 > len(results) && !strings.Contains(kw, prefix) && !strings.Contains(prefix, kw) {
			return true
		}
	}
	return false
}

// titlePrefix keys a result by the leading runes of its lowercased title so
// near-identical entries about one entity collapse to the same bucket.
func titlePrefix(title string) string {
	runes := []rune(strings.ToLower(strings.TrimSpace(title)))
	if len(runes) > 10 {
		runes = runes[:10]
	}
	return string(runes)
}

// collect turns parsed results into articles, resolving indirection links
// and pausing between entries. Malformed entries are skipped, not fatal.
func (f *Fetcher) collect(ctx context.Context, raw []rawResult, keyword string) []news.Article {
	articles := make([]news.Article, 0, len(raw))
	for i, r := range raw {
		if r.title == "" || r.link == "" {
			continue
		}
		link := f.resolver.Resolve(ctx, r.link)
		canonical, err := news.NormalizeURL(link)
		if err != nil {
			f.logger.Debug("skipping result with unusable link",
				zap.String("link", r.link), zap.Error(err))
			continue
		}
		articles = append(articles, news.Article{
			Title:     strings.TrimSpace(r.title),
			URL:       canonical,
			Content:   strings.TrimSpace(r.snippet),
			Source:    f.desc.source,
			Keyword:   keyword,
			CrawledAt: f.clock.Now(),
		})
		if i < len(raw)-1 {
			f.client.ParseDelay(ctx)
		}
	}
	return articles
}

func queryEscape(keyword string) string {
	return url.QueryEscape(keyword)
}
