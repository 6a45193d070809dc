package resilience

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	return NewResolver(NewBlockDetector(), zap.NewNop(), 5, 5*time.Second)
}

func TestResolver_FollowsRedirectChain(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/hop1", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hop2", http.StatusFound)
	})
	mux.HandleFunc("/hop2", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/article", http.StatusFound)
	})
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	got := newTestResolver(t).Resolve(context.Background(), srv.URL+"/hop1")
	require.Equal(t, srv.URL+"/article", got)
}

func TestResolver_TerminatesOnRedirectCycle(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/a", http.StatusFound)
	})

	done := make(chan string, 1)
	go func() {
		done <- newTestResolver(t).Resolve(context.Background(), srv.URL+"/a")
	}()

	select {
	case got := <-done:
		// Termination is the property under test; the resolver parks on
		// whichever node the hop bound landed on.
		require.Contains(t, got, srv.URL)
	case <-time.After(5 * time.Second):
		t.Fatal("resolver did not terminate on a redirect cycle")
	}
}

func TestResolver_FallsBackToGETWhenHEADRejected(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/entry", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>article</html>"))
	})

	got := newTestResolver(t).Resolve(context.Background(), srv.URL+"/entry")
	require.Equal(t, srv.URL+"/final", got)
}

func TestResolver_ExtractsTargetFromVerificationPage(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	target := srv.URL + "/article"
	mux.HandleFunc("/link", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/captcha?backurl="+url.QueryEscape(target), http.StatusFound)
	})
	mux.HandleFunc("/captcha", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	got := newTestResolver(t).Resolve(context.Background(), srv.URL+"/link")
	require.Equal(t, target, got)
}

func TestResolver_KeepsOriginalOnError(t *testing.T) {
	t.Parallel()

	r := NewResolver(NewBlockDetector(), zap.NewNop(), 5, 200*time.Millisecond)
	const dead = "http://127.0.0.1:1/nothing"
	require.Equal(t, dead, r.Resolve(context.Background(), dead))
}

func TestExtractTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{
			name: "backurl param",
			in:   "https://wappass.baidu.com/captcha?backurl=https%3A%2F%2Fnews.example.com%2Fstory",
			want: "https://news.example.com/story",
			ok:   true,
		},
		{
			name: "u param",
			in:   "https://gate.example.com/verify?u=https://dest.example.com/a",
			want: "https://dest.example.com/a",
			ok:   true,
		},
		{
			name: "encoded substring outside params",
			in:   "https://gate.example.com/captcha/https%3A%2F%2Fdest.example.com%2Fb",
			want: "https://dest.example.com/b",
			ok:   true,
		},
		{
			name: "nothing embedded",
			in:   "https://gate.example.com/captcha",
			ok:   false,
		},
		{
			name: "non-url param value",
			in:   "https://gate.example.com/captcha?dest=12345",
			ok:   false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := extractTarget(tt.in)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Equal(t, tt.want, got)
			}
		})
	}
}
