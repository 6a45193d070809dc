package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"newswatch/internal/fetcher/htmlclient"
	"newswatch/internal/metrics"
	"newswatch/internal/news"
	"newswatch/internal/resilience"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func testDeps(t *testing.T) Deps {
	t.Helper()
	metrics.Init()
	detector := resilience.NewBlockDetector()
	return Deps{
		Client:   htmlclient.New(htmlclient.Config{Timeout: 5 * time.Second, Delay: time.Millisecond}),
		Retry:    resilience.NewRetryPolicy(1, time.Millisecond, 2*time.Millisecond),
		Detector: detector,
		Resolver: resilience.NewResolver(detector, zap.NewNop(), 3, 2*time.Second),
		Clock:    fixedClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)},
		Logger:   zap.NewNop(),
	}
}

func TestEngineFetcher_ParsesResults(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><title>results</title><body>
			<div class="news-card"><a class="title" href="%s/story/1">AI chips surge</a><div class="snippet">Funding news.</div></div>
			<div class="news-card"><a class="title" href="%s/story/2">Second story</a><div class="snippet">More news.</div></div>
		</body></html>`, srv.URL, srv.URL)
	})
	mux.HandleFunc("/story/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	f := newFetcher(descriptor{
		source:    "bing",
		searchURL: func(string) string { return srv.URL + "/search" },
		parse:     parseBing,
	}, testDeps(t))

	articles := f.Fetch(context.Background(), "AI chips", 10)
	require.Len(t, articles, 2)
	require.Equal(t, "AI chips surge", articles[0].Title)
	require.Equal(t, news.Source("bing"), articles[0].Source)
	require.Equal(t, "AI chips", articles[0].Keyword)
	require.Equal(t, srv.URL+"/story/1", articles[0].URL)
	require.False(t, articles[0].CrawledAt.IsZero())
}

func TestEngineFetcher_MaxResultsBound(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>")
		for i := 0; i < 10; i++ {
			fmt.Fprintf(w, `<div class="news-card"><a class="title" href="%s/story/%d">Story %d</a></div>`, srv.URL, i, i)
		}
		fmt.Fprint(w, "</body></html>")
	})
	mux.HandleFunc("/story/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	f := newFetcher(descriptor{
		source:    "bing",
		searchURL: func(string) string { return srv.URL + "/search" },
		parse:     parseBing,
	}, testDeps(t))

	articles := f.Fetch(context.Background(), "Story", 3)
	require.Len(t, articles, 3)
}

func TestEngineFetcher_FailSoftOnDeadTransport(t *testing.T) {
	t.Parallel()

	f := newFetcher(descriptor{
		source:    "bing",
		searchURL: func(string) string { return "http://127.0.0.1:1/search" },
		parse:     parseBing,
	}, testDeps(t))

	require.Empty(t, f.Fetch(context.Background(), "k", 5))
}

func TestEngineFetcher_BlockedPageYieldsNothing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><title>百度安全验证</title><body>verify</body></html>`)
	}))
	defer srv.Close()

	f := newFetcher(descriptor{
		source:    "bing",
		searchURL: func(string) string { return srv.URL },
		parse:     parseBing,
	}, testDeps(t))

	require.Empty(t, f.Fetch(context.Background(), "k", 5))
}

func TestEngineFetcher_SkipsMalformedEntries(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<div class="news-card"><a class="title">No link here</a></div>
			<div class="news-card"><a class="title" href="%s/ok">Good story</a></div>
		</body></html>`, srv.URL)
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	f := newFetcher(descriptor{
		source:    "bing",
		searchURL: func(string) string { return srv.URL + "/search" },
		parse:     parseBing,
	}, testDeps(t))

	articles := f.Fetch(context.Background(), "story", 5)
	require.Len(t, articles, 1)
	require.Equal(t, "Good story", articles[0].Title)
}

func TestEngineFetcher_UnrelatedResultsYieldNothingWithoutHeadless(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<div class="news-card"><a class="title" href="%s/a">World Economic Forum annual meeting</a></div>
			<div class="news-card"><a class="title" href="%s/b">World Economic Forum davos agenda</a></div>
		</body></html>`, srv.URL, srv.URL)
	})

	f := newFetcher(descriptor{
		source:    "bing",
		searchURL: func(string) string { return srv.URL + "/search" },
		parse:     parseBing,
	}, testDeps(t))

	require.Empty(t, f.Fetch(context.Background(), "量子计算", 5))
}

func TestIrrelevant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		keyword string
		results []rawResult
		want    bool
	}{
		{
			name:    "keyword absent everywhere",
			keyword: "量子计算",
			results: []rawResult{
				{title: "Celebrity gossip roundup"},
				{title: "Sports scores tonight"},
			},
			want: true,
		},
		{
			name:    "keyword matches some results",
			keyword: "量子计算",
			results: []rawResult{
				{title: "量子计算新突破", snippet: "实验进展"},
				{title: "Unrelated story"},
			},
			want: false,
		},
		{
			name:    "dominant unrelated entity",
			keyword: "量子计算",
			results: []rawResult{
				{title: "World Economic Forum opens", snippet: "量子计算提及"},
				{title: "World Economic Forum day two"},
				{title: "World Economic Forum closes"},
			},
			want: true,
		},
		{
			name:    "dominant phrase is the keyword itself",
			keyword: "量子计算",
			results: []rawResult{
				{title: "量子计算产业报告"},
				{title: "量子计算人才缺口"},
				{title: "量子计算芯片进展"},
			},
			want: false,
		},
		{
			name:    "no results is not irrelevant",
			keyword: "量子计算",
			results: nil,
			want:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, irrelevant(tt.keyword, tt.results))
		})
	}
}

func TestParseBaidu(t *testing.T) {
	t.Parallel()

	const page = `<html><body>
		<div class="result c-container"><h3><a href="https://www.baidu.com/link?url=abc">芯片产业新闻</a></h3><div class="c-abstract">行业摘要内容</div></div>
		<div class="result c-container"><h3><a href="/link?url=def">相对链接结果</a></h3><div class="c-abstract">另一条摘要</div></div>
		<div class="result c-container"><h3><a href="https://www.baidu.com/link?url=ghi">无摘要结果</a></h3><span>正文片段替代摘要</span></div>
	</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	results := parseBaidu(doc, 10)
	require.Len(t, results, 3)
	require.Equal(t, "芯片产业新闻", results[0].title)
	require.Equal(t, "https://www.baidu.com/link?url=abc", results[0].link)
	require.Equal(t, "行业摘要内容", results[0].snippet)
	require.Equal(t, "https://www.baidu.com/link?url=def", results[1].link, "relative links are anchored to the engine host")
	require.Equal(t, "正文片段替代摘要", results[2].snippet, "card text stands in when the abstract block is absent")
}

func TestParseBaidu_LayoutFallback(t *testing.T) {
	t.Parallel()

	const page = `<html><body>
		<div class="result-op"><h3><a href="https://www.baidu.com/link?url=xyz">新版式结果</a></h3><div class="content-right">新版式摘要</div></div>
	</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	results := parseBaidu(doc, 10)
	require.Len(t, results, 1)
	require.Equal(t, "新版式结果", results[0].title)
	require.Equal(t, "新版式摘要", results[0].snippet)
}

func TestParseYahoo(t *testing.T) {
	t.Parallel()

	const page = `<html><body>
		<div class="NewsArticle"><h4><a href="https://news.example.com/a">Headline A</a></h4><p>Summary A</p></div>
		<div class="NewsArticle"><h4><a href="https://news.example.com/b">Headline B</a></h4><p>Summary B</p></div>
	</body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	results := parseYahoo(doc, 10)
	require.Len(t, results, 2)
	require.Equal(t, "Headline A", results[0].title)
	require.Equal(t, "https://news.example.com/a", results[0].link)
	require.Equal(t, "Summary A", results[0].snippet)
}
