package htmlclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"newswatch/internal/resilience"
)

func TestClient_Get(t *testing.T) {
	t.Parallel()

	var seenAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAgent = r.UserAgent()
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	c := New(Config{Timeout: 5 * time.Second})
	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "hello")
	require.NotEmpty(t, seenAgent)
}

func TestClient_GetSurfacesStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{Timeout: 5 * time.Second})
	_, err := c.Get(context.Background(), srv.URL)

	var statusErr *resilience.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
}

func TestClient_RandomUserAgentStaysInPool(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	pool := map[string]bool{}
	for _, ua := range userAgents {
		pool[ua] = true
	}
	for i := 0; i < 50; i++ {
		require.True(t, pool[c.RandomUserAgent()])
	}
}

func TestClient_ParseDelayRespectsCancel(t *testing.T) {
	t.Parallel()

	c := New(Config{Delay: 10 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	c.ParseDelay(ctx)
	require.Less(t, time.Since(start), time.Second)
}
