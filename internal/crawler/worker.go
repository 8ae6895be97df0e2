// Package crawler implements the Worker and Controller: the crawl's only
// stateful in-process actors, synchronized solely through the coordination
// store.
package crawler

import (
	"context"
	"log"
	"time"

	"github.com/skrushinsky/torspider-go/internal/crawlerr"
	"github.com/skrushinsky/torspider-go/internal/extract"
	"github.com/skrushinsky/torspider-go/internal/plugins"
	"github.com/skrushinsky/torspider-go/internal/report"
	"github.com/skrushinsky/torspider-go/internal/store"
	"github.com/skrushinsky/torspider-go/internal/urlcanon"
)

// Fetcher performs one HTTP GET. The command's fetcherAdapter adapts
// *fetch.Client to it; an interface here so workers can be tested without
// real network I/O.
type Fetcher interface {
	Visit(ctx context.Context, url string) (*FetchResponse, error)
}

// FetchResponse is the subset of fetch.Response the worker needs.
type FetchResponse struct {
	EffectiveURL string
	Header       map[string][]string
	Body         []byte
}

// storeRetryDelay is how long the worker sleeps before retrying a store
// operation; the store is assumed to come back.
const storeRetryDelay = 2 * time.Second

// yieldDelay is the cooperative yield after each task.
const yieldDelay = 10 * time.Millisecond

// WorkerConfig configures a single Worker.
type WorkerConfig struct {
	Store            store.Store
	Fetcher          Fetcher
	Plugins          *plugins.Registry
	MaxPages         int
	FollowOuterLinks bool
	FollowInnerLinks bool
	ThrottlingRatio  float64
	Name             string
}

// Worker drives tasks through the coordination store's state machine: pop,
// fetch, extract, fan out to consumers, register terminal state, admit new
// links. It never retries a failed URL.
type Worker struct {
	cfg WorkerConfig
}

// NewWorker builds a Worker from cfg.
func NewWorker(cfg WorkerConfig) *Worker {
	return &Worker{cfg: cfg}
}

// Run drives the worker loop until ctx is cancelled or the controller signals
// completion via stop being closed. A worker parked inside the store's
// blocking pop is released by cancelling that call; a worker mid-task
// finishes its terminal transition first.
func (w *Worker) Run(ctx context.Context, stop <-chan struct{}) {
	popCtx, cancelPop := context.WithCancel(ctx)
	defer cancelPop()
	go func() {
		select {
		case <-stop:
			cancelPop()
		case <-popCtx.Done():
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		task, err := w.nextTask(popCtx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		done := w.processTask(ctx, task)
		if done {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(yieldDelay):
		}
	}
}

// nextTask pops the next task, retrying while the store is unavailable.
func (w *Worker) nextTask(ctx context.Context) (string, error) {
	for {
		task, err := w.cfg.Store.GetTask(ctx)
		if err == nil {
			return task, nil
		}
		if _, isNoTask := err.(store.ErrNoTask); isNoTask {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Printf("%s: store unavailable, retrying get_task: %v", w.cfg.Name, err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(storeRetryDelay):
		}
	}
}

// processTask drives one task from working through its terminal state and
// admits its follow-on links. It returns true when the crawl's page limit
// has been reached and the worker should exit.
func (w *Worker) processTask(ctx context.Context, task string) bool {
	resp, err := w.cfg.Fetcher.Visit(ctx, task)
	if err != nil {
		w.finishFailure(ctx, task, err)
		return false
	}

	page := extract.New(task, resp.EffectiveURL, resp.Body, resp.Header)
	rec := page.AsDict()

	w.cfg.Plugins.Fanout(ctx, report.Report{URL: task, TS: time.Now(), Page: &rec})
	w.registerWithRetry(ctx, task, true)

	if w.checkPageLimit(ctx) {
		return true
	}

	if w.shouldThrottle(ctx) {
		return false
	}

	w.admitLinks(ctx, page)
	return false
}

func (w *Worker) finishFailure(ctx context.Context, task string, cause error) {
	log.Printf("%s: failed %s: %v", w.cfg.Name, task, cause)
	w.cfg.Plugins.Fanout(ctx, report.Report{URL: task, TS: time.Now(), Error: cause.Error()})
	w.registerWithRetry(ctx, task, false)
}

// registerWithRetry calls RegisterSuccess/RegisterFailure, retrying on a
// store outage.
func (w *Worker) registerWithRetry(ctx context.Context, task string, success bool) {
	for {
		var err error
		if success {
			err = w.cfg.Store.RegisterSuccess(ctx, task)
		} else {
			err = w.cfg.Store.RegisterFailure(ctx, task)
		}
		if err == nil || ctx.Err() != nil {
			return
		}
		log.Printf("%s: store unavailable registering %s, retrying: %v", w.cfg.Name, task, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(storeRetryDelay):
		}
	}
}

func (w *Worker) checkPageLimit(ctx context.Context) bool {
	if w.cfg.MaxPages <= 0 {
		return false
	}
	passed, err := w.cfg.Store.PassedCount(ctx)
	if err != nil {
		log.Printf("%s: passed_count failed: %v", w.cfg.Name, err)
		return false
	}
	return passed >= int64(w.cfg.MaxPages)
}

// shouldThrottle reports whether link admission should be skipped this
// round: passed/pending < ratio means the queue is growing faster than
// pages complete.
func (w *Worker) shouldThrottle(ctx context.Context) bool {
	if w.cfg.ThrottlingRatio <= 0 {
		return false
	}
	pending, err := w.cfg.Store.PendingCount(ctx)
	if err != nil || pending <= 0 {
		return false
	}
	passed, err := w.cfg.Store.PassedCount(ctx)
	if err != nil {
		return false
	}
	return float64(passed)/float64(pending) < w.cfg.ThrottlingRatio
}

func (w *Worker) admitLinks(ctx context.Context, page *extract.Page) {
	links := page.PartitionLinks()
	if w.cfg.FollowOuterLinks {
		for _, link := range links.Outer {
			w.admit(ctx, link)
		}
	}
	if w.cfg.FollowInnerLinks {
		for _, link := range links.Inner {
			w.admit(ctx, link)
		}
	}
}

// admit adds link to pending if it is not already known. Store errors are
// logged and skip the single link.
func (w *Worker) admit(ctx context.Context, link string) {
	known, err := w.cfg.Store.IsKnownTask(ctx, link)
	if err != nil {
		log.Printf("%s: is_known_task(%s) failed: %v", w.cfg.Name, link, err)
		return
	}
	if known {
		return
	}
	if err := w.cfg.Store.PutTask(ctx, link); err != nil {
		log.Printf("%s: put_task(%s) failed: %v", w.cfg.Name, link, err)
	}
}

// AdmitSeed normalizes and admits a seed URL, used by the Controller during
// bootstrap. It mirrors admit but fails loudly on a malformed seed rather
// than silently skipping, since a bad seed is an operator error.
func AdmitSeed(ctx context.Context, s store.Store, rawURL string) error {
	parts, err := urlcanon.Norm(rawURL, "")
	if err != nil {
		return &crawlerr.MalformedURLError{URL: rawURL, Reason: err.Error()}
	}
	normalized := urlcanon.JoinParts(parts)

	known, err := s.IsKnownTask(ctx, normalized)
	if err != nil {
		return err
	}
	if known {
		return nil
	}
	return s.PutTask(ctx, normalized)
}
