package crawler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/skrushinsky/torspider-go/internal/plugins"
	"github.com/skrushinsky/torspider-go/internal/report"
	"github.com/skrushinsky/torspider-go/internal/store/fakestore"
)

// mockFetcher is a hand-rolled fake: a map of canned responses/errors per
// URL.
type mockFetcher struct {
	mu        sync.Mutex
	responses map[string]*FetchResponse
	errors    map[string]error
}

func (m *mockFetcher) Visit(ctx context.Context, url string) (*FetchResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errors[url]; ok {
		return nil, err
	}
	if resp, ok := m.responses[url]; ok {
		return resp, nil
	}
	return nil, errors.New("url not found in mock")
}

func htmlResponse(url string, body string) *FetchResponse {
	return &FetchResponse{
		EffectiveURL: url,
		Header:       map[string][]string(http.Header{"Content-Type": {"text/html"}}),
		Body:         []byte(body),
	}
}

func newTestRegistry(collect *[]report.Report, mu *sync.Mutex) *plugins.Registry {
	name := "collect-" + time.Now().String()
	plugins.RegisterConsumer(name, func(_ context.Context, r report.Report) error {
		mu.Lock()
		*collect = append(*collect, r)
		mu.Unlock()
		return nil
	})
	return plugins.Load([]string{name})
}

func TestWorker_SuccessRegistersAndAdmitsLinks(t *testing.T) {
	s := fakestore.New()
	ctx := context.Background()

	if err := s.PutTask(ctx, "http://a.test/"); err != nil {
		t.Fatalf("PutTask: %v", err)
	}

	fetcher := &mockFetcher{
		responses: map[string]*FetchResponse{
			"http://a.test/": htmlResponse("http://a.test/", `<html><body>
				<a href="/inner">inner</a>
				<a href="https://b.test/outer">outer</a>
			</body></html>`),
		},
	}

	var reports []report.Report
	var mu sync.Mutex
	registry := newTestRegistry(&reports, &mu)

	w := NewWorker(WorkerConfig{
		Store:            s,
		Fetcher:          fetcher,
		Plugins:          registry,
		FollowOuterLinks: true,
		FollowInnerLinks: true,
		Name:             "test-worker",
	})

	task, err := s.GetTask(ctx)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	w.processTask(ctx, task)

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	if reports[0].Error != "" {
		t.Errorf("report error = %q, want empty", reports[0].Error)
	}

	known, _ := s.IsKnownTask(ctx, "http://a.test/")
	if !known {
		t.Error("task should be known after processing")
	}
	knownInner, _ := s.IsKnownTask(ctx, "http://a.test/inner")
	knownOuter, _ := s.IsKnownTask(ctx, "https://b.test/outer")
	if !knownInner || !knownOuter {
		t.Errorf("expected both inner and outer links admitted: inner=%v outer=%v", knownInner, knownOuter)
	}
}

func TestWorker_FetchFailureRegistersFailure(t *testing.T) {
	s := fakestore.New()
	ctx := context.Background()
	s.PutTask(ctx, "http://fail.test/")

	fetcher := &mockFetcher{
		errors: map[string]error{"http://fail.test/": errors.New("boom")},
	}

	var reports []report.Report
	var mu sync.Mutex
	registry := newTestRegistry(&reports, &mu)

	w := NewWorker(WorkerConfig{Store: s, Fetcher: fetcher, Plugins: registry, Name: "test-worker"})

	task, _ := s.GetTask(ctx)
	w.processTask(ctx, task)

	mu.Lock()
	defer mu.Unlock()
	if len(reports) != 1 || reports[0].Error == "" {
		t.Fatalf("expected one failure report, got %+v", reports)
	}

	known, _ := s.IsKnownTask(ctx, "http://fail.test/")
	if !known {
		t.Error("failed task should still be known (in failure set)")
	}
}

func TestWorker_DoesNotAdmitInnerLinksWhenDisabled(t *testing.T) {
	s := fakestore.New()
	ctx := context.Background()
	s.PutTask(ctx, "http://a.test/")

	fetcher := &mockFetcher{
		responses: map[string]*FetchResponse{
			"http://a.test/": htmlResponse("http://a.test/", `<a href="/inner">inner</a>`),
		},
	}

	var reports []report.Report
	var mu sync.Mutex
	registry := newTestRegistry(&reports, &mu)

	w := NewWorker(WorkerConfig{
		Store: s, Fetcher: fetcher, Plugins: registry,
		FollowInnerLinks: false, FollowOuterLinks: true,
		Name: "test-worker",
	})

	task, _ := s.GetTask(ctx)
	w.processTask(ctx, task)

	known, _ := s.IsKnownTask(ctx, "http://a.test/inner")
	if known {
		t.Error("inner link should not have been admitted")
	}
}

func TestWorker_ThrottlingSkipsAdmission(t *testing.T) {
	s := fakestore.New()
	ctx := context.Background()
	s.PutTask(ctx, "http://a.test/")
	// Pad pending so passed/pending stays below the ratio after one success.
	for i := 0; i < 10; i++ {
		s.PutTask(ctx, "http://pad.test/"+string(rune('a'+i)))
	}

	fetcher := &mockFetcher{
		responses: map[string]*FetchResponse{
			"http://a.test/": htmlResponse("http://a.test/", `<a href="https://b.test/outer">outer</a>`),
		},
	}

	var reports []report.Report
	var mu sync.Mutex
	registry := newTestRegistry(&reports, &mu)

	w := NewWorker(WorkerConfig{
		Store: s, Fetcher: fetcher, Plugins: registry,
		FollowOuterLinks: true, ThrottlingRatio: 0.9,
		Name: "test-worker",
	})

	task, _ := s.GetTask(ctx)
	w.processTask(ctx, task)

	known, _ := s.IsKnownTask(ctx, "https://b.test/outer")
	if known {
		t.Error("link should not be admitted while throttled")
	}
}

func TestWorker_PageLimitSkipsAdmission(t *testing.T) {
	s := fakestore.New()
	ctx := context.Background()
	s.PutTask(ctx, "http://a.test/")

	fetcher := &mockFetcher{
		responses: map[string]*FetchResponse{
			"http://a.test/": htmlResponse("http://a.test/", `<a href="https://b.test/outer">outer</a>`),
		},
	}

	var reports []report.Report
	var mu sync.Mutex
	registry := newTestRegistry(&reports, &mu)

	w := NewWorker(WorkerConfig{
		Store: s, Fetcher: fetcher, Plugins: registry,
		FollowOuterLinks: true, MaxPages: 1,
		Name: "test-worker",
	})

	task, _ := s.GetTask(ctx)
	done := w.processTask(ctx, task)

	if !done {
		t.Error("processTask should report the page limit reached")
	}
	known, _ := s.IsKnownTask(ctx, "https://b.test/outer")
	if known {
		t.Error("link should not be admitted once the page limit is reached")
	}
}

func TestAdmitSeed_SkipsKnownAndRejectsMalformed(t *testing.T) {
	s := fakestore.New()
	ctx := context.Background()

	if err := AdmitSeed(ctx, s, "http://example.com/"); err != nil {
		t.Fatalf("AdmitSeed: %v", err)
	}
	if err := AdmitSeed(ctx, s, "http://example.com/"); err != nil {
		t.Fatalf("AdmitSeed (duplicate): %v", err)
	}
	if err := AdmitSeed(ctx, s, "/relative-no-authority"); err == nil {
		t.Fatal("expected malformed URL error for authority-less seed")
	}
}
