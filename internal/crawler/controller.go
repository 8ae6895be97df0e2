package crawler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/skrushinsky/torspider-go/internal/plugins"
	"github.com/skrushinsky/torspider-go/internal/store"
)

// pollInterval is the cadence at which the Controller checks passed_count
// against max_pages.
const pollInterval = 5 * time.Second

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Store            store.Store
	Fetcher          Fetcher
	Plugins          *plugins.Registry
	Seeds            []string
	Workers          int
	MaxPages         int
	ClearTasks       bool
	FollowOuterLinks bool
	FollowInnerLinks bool
	ThrottlingRatio  float64
}

// Controller spawns workers, seeds the queue, and monitors completion.
// It is the only component that runs startup/shutdown plug-ins and owns
// the crawl's overall lifetime.
type Controller struct {
	cfg          ControllerConfig
	pollInterval time.Duration
}

// NewController validates cfg and returns a ready Controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be greater than 0")
	}
	if cfg.MaxPages < 0 {
		return nil, fmt.Errorf("max_pages cannot be negative")
	}
	if cfg.Plugins == nil {
		cfg.Plugins = plugins.Load(nil)
	}
	return &Controller{cfg: cfg, pollInterval: pollInterval}, nil
}

// Run executes the full crawl lifecycle: optional store wipe, seed
// admission, worker fan-out, and a passed_count poll loop that terminates
// the crawl once max_pages is reached (0 = unlimited, runs until ctx is
// cancelled).
func (c *Controller) Run(ctx context.Context) error {
	c.cfg.Plugins.RunInit(ctx)
	defer c.cfg.Plugins.RunDone(ctx)

	if c.cfg.ClearTasks {
		if err := c.cfg.Store.ClearAll(ctx); err != nil {
			return fmt.Errorf("clearing store: %w", err)
		}
	}

	for _, seed := range c.cfg.Seeds {
		if err := AdmitSeed(ctx, c.cfg.Store, seed); err != nil {
			log.Printf("controller: skipping seed %q: %v", seed, err)
			continue
		}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		w := NewWorker(WorkerConfig{
			Store:            c.cfg.Store,
			Fetcher:          c.cfg.Fetcher,
			Plugins:          c.cfg.Plugins,
			MaxPages:         c.cfg.MaxPages,
			FollowOuterLinks: c.cfg.FollowOuterLinks,
			FollowInnerLinks: c.cfg.FollowInnerLinks,
			ThrottlingRatio:  c.cfg.ThrottlingRatio,
			Name:             fmt.Sprintf("worker-%d", i+1),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx, stop)
		}()
	}

	err := c.watch(ctx, stop)
	wg.Wait()
	return err
}

// watch polls passed_count on pollInterval and closes stop once max_pages is
// reached, or returns when ctx is cancelled.
func (c *Controller) watch(ctx context.Context, stop chan struct{}) error {
	if c.cfg.MaxPages <= 0 {
		<-ctx.Done()
		close(stop)
		return ctx.Err()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	check := func() bool {
		passed, err := c.cfg.Store.PassedCount(ctx)
		if err != nil {
			log.Printf("controller: passed_count failed: %v", err)
			return false
		}
		if passed >= int64(c.cfg.MaxPages) {
			log.Printf("controller: page limit (%d) reached, stopping", c.cfg.MaxPages)
			close(stop)
			return true
		}
		return false
	}

	for {
		select {
		case <-ctx.Done():
			close(stop)
			return ctx.Err()
		case <-ticker.C:
			if check() {
				return nil
			}
		}
	}
}
