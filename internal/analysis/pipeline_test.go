package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"newswatch/internal/metrics"
	"newswatch/internal/news"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeStore struct {
	mu       sync.Mutex
	inserted map[string]bool
	analyses []news.AnalysisResult
	pending  []news.Article
	insertFn func(news.Article) (news.InsertResult, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{inserted: map[string]bool{}}
}

func (f *fakeStore) InsertIfAbsent(_ context.Context, a news.Article) (news.InsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertFn != nil {
		return f.insertFn(a)
	}
	if f.inserted[a.URL] {
		return news.InsertResult{Inserted: false, ID: 1}, nil
	}
	f.inserted[a.URL] = true
	return news.InsertResult{Inserted: true, ID: int64(len(f.inserted))}, nil
}

func (f *fakeStore) SaveAnalysis(_ context.Context, r news.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyses = append(f.analyses, r)
	return nil
}

func (f *fakeStore) savedAnalyses() []news.AnalysisResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]news.AnalysisResult(nil), f.analyses...)
}

func (f *fakeStore) ListByKeyword(context.Context, string, int) ([]news.Article, error) {
	return nil, nil
}

func (f *fakeStore) ListRecentByKeyword(context.Context, string, time.Time, int) ([]news.Article, error) {
	return nil, nil
}

func (f *fakeStore) List(context.Context, news.ArticleFilter) ([]news.Article, error) {
	return nil, nil
}

// ListPendingAnalysis returns seeded pending articles minus any that have a
// saved verdict.
func (f *fakeStore) ListPendingAnalysis(context.Context, int) ([]news.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	analyzed := map[string]bool{}
	for _, r := range f.analyses {
		analyzed[r.URL] = true
	}
	var out []news.Article
	for _, a := range f.pending {
		if !analyzed[a.URL] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeClassifier struct {
	mu     sync.Mutex
	calls  int
	err    error
	result news.AnalysisResult
}

func (f *fakeClassifier) Analyze(context.Context, string, string, time.Time) (news.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return news.AnalysisResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var testClock = fixedClock{now: time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)}

func newTestPipeline(t *testing.T, store news.ArticleStore, classifier news.Classifier) *Pipeline {
	t.Helper()
	metrics.Init()
	return New(store, classifier, testClock, zap.NewNop(), Options{
		Workers:    2,
		QueueDepth: 16,
		Timeout:    time.Second,
	})
}

func TestPipeline_InsertSchedulesClassification(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	classifier := &fakeClassifier{result: news.AnalysisResult{
		Status:          news.AnalysisSuccess,
		ImportanceScore: 90,
		AnalyzedAt:      testClock.Now(),
	}}
	p := newTestPipeline(t, store, classifier)
	p.Start(context.Background())

	res, err := p.Ingest(context.Background(), news.Article{URL: "https://n.example/a", Title: "A"})
	require.NoError(t, err)
	require.True(t, res.Inserted)

	require.Eventually(t, func() bool {
		saved := store.savedAnalyses()
		return len(saved) == 1 && saved[0].Status == news.AnalysisSuccess
	}, 2*time.Second, 10*time.Millisecond)
	p.Stop()

	saved := store.savedAnalyses()
	require.Equal(t, "https://n.example/a", saved[0].URL)
	require.Equal(t, 90.0, saved[0].ImportanceScore)
}

func TestPipeline_DuplicateSkipsClassification(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	classifier := &fakeClassifier{}
	p := newTestPipeline(t, store, classifier)
	p.Start(context.Background())

	a := news.Article{URL: "https://n.example/dup", Title: "A"}
	first, err := p.Ingest(context.Background(), a)
	require.NoError(t, err)
	require.True(t, first.Inserted)

	second, err := p.Ingest(context.Background(), a)
	require.NoError(t, err)
	require.False(t, second.Inserted)

	require.Eventually(t, func() bool {
		return len(store.savedAnalyses()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	p.Stop()

	require.Equal(t, 1, classifier.callCount(), "losers must not be classified")
}

func TestPipeline_ClassifierFailureWritesNeutralTerminalResult(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	classifier := &fakeClassifier{err: errors.New("model overloaded")}
	p := newTestPipeline(t, store, classifier)
	p.Start(context.Background())

	_, err := p.Ingest(context.Background(), news.Article{URL: "https://n.example/f", Title: "F"})
	require.NoError(t, err, "classifier trouble never surfaces through insert")

	require.Eventually(t, func() bool {
		return len(store.savedAnalyses()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	p.Stop()

	saved := store.savedAnalyses()
	require.Equal(t, news.AnalysisFailed, saved[0].Status)
	require.Equal(t, news.DefaultImportance, saved[0].ImportanceScore)
}

func TestPipeline_NilClassifierFinalizesImmediately(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	p := newTestPipeline(t, store, nil)
	p.Start(context.Background())

	_, err := p.Ingest(context.Background(), news.Article{URL: "https://n.example/n"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(store.savedAnalyses()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	p.Stop()

	saved := store.savedAnalyses()
	require.Equal(t, news.AnalysisSuccess, saved[0].Status)
	require.Equal(t, news.DefaultImportance, saved[0].ImportanceScore)
}

func TestPipeline_IngestAfterStopLeavesArticlePending(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	p := newTestPipeline(t, store, &fakeClassifier{})
	p.Start(context.Background())
	p.Stop()

	// A crawl run that outlives shutdown must not crash the hand-off.
	res, err := p.Ingest(context.Background(), news.Article{URL: "https://n.example/late", Title: "Late"})
	require.NoError(t, err)
	require.True(t, res.Inserted, "the row is stored even when no worker will classify it")
	require.Empty(t, store.savedAnalyses())
}

func TestPipeline_SweepRequeuesPendingRows(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.pending = []news.Article{
		{URL: "https://n.example/stalled", Title: "Stalled"},
	}
	classifier := &fakeClassifier{result: news.AnalysisResult{
		Status:          news.AnalysisSuccess,
		ImportanceScore: 70,
		AnalyzedAt:      testClock.Now(),
	}}
	metrics.Init()
	p := New(store, classifier, testClock, zap.NewNop(), Options{
		Workers:       1,
		QueueDepth:    4,
		Timeout:       time.Second,
		SweepInterval: 20 * time.Millisecond,
	})
	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool {
		saved := store.savedAnalyses()
		return len(saved) >= 1 && saved[0].URL == "https://n.example/stalled"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPipeline_InsertErrorPropagates(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.insertFn = func(news.Article) (news.InsertResult, error) {
		return news.InsertResult{}, errors.New("connection lost")
	}
	p := newTestPipeline(t, store, &fakeClassifier{})
	p.Start(context.Background())
	defer p.Stop()

	_, err := p.Ingest(context.Background(), news.Article{URL: "https://n.example/x"})
	require.Error(t, err)
}
