package crawler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/skrushinsky/torspider-go/internal/report"
	"github.com/skrushinsky/torspider-go/internal/store/fakestore"
)

func TestController_CrawlsSeedsAndStops(t *testing.T) {
	s := fakestore.New()

	fetcher := &mockFetcher{
		responses: map[string]*FetchResponse{
			"http://a.test/":  htmlResponse("http://a.test/", `<a href="https://b.test/">b</a>`),
			"https://b.test/": htmlResponse("https://b.test/", `<p>leaf</p>`),
		},
	}

	var reports []report.Report
	var mu sync.Mutex
	registry := newTestRegistry(&reports, &mu)

	ctrl, err := NewController(ControllerConfig{
		Store:            s,
		Fetcher:          fetcher,
		Plugins:          registry,
		Seeds:            []string{"http://a.test/"},
		Workers:          2,
		MaxPages:         2,
		FollowOuterLinks: true,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	ctrl.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ctrl.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reports) < 2 {
		t.Fatalf("got %d reports, want at least 2", len(reports))
	}
}

func TestController_RejectsBadConfig(t *testing.T) {
	s := fakestore.New()
	_, err := NewController(ControllerConfig{Store: s, Workers: 0})
	if err == nil {
		t.Fatal("expected error for zero workers")
	}
}

func TestController_ClearTasksWipesStore(t *testing.T) {
	s := fakestore.New()
	s.PutTask(context.Background(), "http://stale.test/")

	var reports []report.Report
	var mu sync.Mutex
	registry := newTestRegistry(&reports, &mu)

	ctrl, err := NewController(ControllerConfig{
		Store:      s,
		Fetcher:    &mockFetcher{},
		Plugins:    registry,
		Seeds:      nil,
		Workers:    1,
		MaxPages:   1,
		ClearTasks: true,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	ctrl.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	ctrl.Run(ctx)

	known, _ := s.IsKnownTask(context.Background(), "http://stale.test/")
	if known {
		t.Error("ClearTasks should have wiped the pre-existing task")
	}
}
