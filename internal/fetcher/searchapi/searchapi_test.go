package searchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"newswatch/internal/metrics"
	"newswatch/internal/news"
	"newswatch/internal/resilience"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testClock = fixedClock{now: time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)}

func testRetry() *resilience.ExponentialRetryPolicy {
	return resilience.NewRetryPolicy(1, time.Millisecond, 2*time.Millisecond)
}

func TestGoogle_Fetch(t *testing.T) {
	t.Parallel()
	metrics.Init()

	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, `{"items":[
			{"title":"Chip maker raises round","link":"https://news.example.com/a","snippet":"Funding."},
			{"title":"","link":"https://news.example.com/skip","snippet":"no title"},
			{"title":"Fab expansion","link":"https://news.example.com/b","snippet":"Capacity."}
		]}`)
	}))
	defer srv.Close()

	g := NewGoogle(GoogleOptions{
		APIKey:         "key",
		SearchEngineID: "cx",
		Retry:          testRetry(),
		Clock:          testClock,
		Logger:         zap.NewNop(),
	})
	g.endpoint = srv.URL

	articles := g.Fetch(context.Background(), "AI芯片", 5)
	require.Len(t, articles, 2)
	require.Equal(t, news.SourceGoogle, articles[0].Source)
	require.Equal(t, "AI芯片", articles[0].Keyword)
	require.Equal(t, "https://news.example.com/a", articles[0].URL)
	require.Equal(t, []string{"AI芯片"}, gotQuery["q"])
	require.Equal(t, []string{"5"}, gotQuery["num"])
}

func TestGoogle_FailSoftOnServerError(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	g := NewGoogle(GoogleOptions{
		APIKey: "key",
		Retry:  testRetry(),
		Clock:  testClock,
		Logger: zap.NewNop(),
	})
	g.endpoint = srv.URL

	require.Empty(t, g.Fetch(context.Background(), "k", 5))
}

func TestGoogle_CapsNumAtTen(t *testing.T) {
	t.Parallel()
	metrics.Init()

	var gotNum string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotNum = r.URL.Query().Get("num")
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer srv.Close()

	g := NewGoogle(GoogleOptions{Retry: testRetry(), Clock: testClock, Logger: zap.NewNop()})
	g.endpoint = srv.URL

	g.Fetch(context.Background(), "k", 25)
	require.Equal(t, "10", gotNum)
}

func TestTavily_Fetch(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tvly-key", r.Header.Get("Authorization"))
		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "news", req.Topic)
		fmt.Fprint(w, `{"results":[
			{"title":"Edge inference startup","url":"https://news.example.com/t1","content":"Chips at the edge.","published_date":"2026-08-30T06:00:00Z","score":0.92}
		]}`)
	}))
	defer srv.Close()

	tv := NewTavily(TavilyOptions{
		APIKey: "tvly-key",
		Retry:  testRetry(),
		Clock:  testClock,
		Logger: zap.NewNop(),
	})
	tv.endpoint = srv.URL

	articles := tv.Fetch(context.Background(), "AI芯片", 5)
	require.Len(t, articles, 1)
	require.Equal(t, news.SourceTavily, articles[0].Source)
	require.NotNil(t, articles[0].PublishedAt)
	require.Equal(t, 2026, articles[0].PublishedAt.Year())
}

func TestTavily_FailSoftOnDeadEndpoint(t *testing.T) {
	t.Parallel()
	metrics.Init()

	tv := NewTavily(TavilyOptions{
		APIKey: "tvly-key",
		Retry:  testRetry(),
		Clock:  testClock,
		Logger: zap.NewNop(),
	})
	tv.endpoint = "http://127.0.0.1:1/search"

	require.Empty(t, tv.Fetch(context.Background(), "k", 5))
}

func TestTavily_RetriesTransientStatus(t *testing.T) {
	t.Parallel()
	metrics.Init()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"results":[{"title":"Recovered","url":"https://news.example.com/r","content":"ok"}]}`)
	}))
	defer srv.Close()

	tv := NewTavily(TavilyOptions{
		APIKey: "tvly-key",
		Retry:  resilience.NewRetryPolicy(2, time.Millisecond, 2*time.Millisecond),
		Clock:  testClock,
		Logger: zap.NewNop(),
	})
	tv.endpoint = srv.URL

	articles := tv.Fetch(context.Background(), "k", 5)
	require.Len(t, articles, 1)
	require.Equal(t, 2, calls)
}
