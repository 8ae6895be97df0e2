// Package plugins implements the crawler's three named extension points:
// "init" (run once before the crawl), "done" (run once after), and
// "consume" (one report sink per registered entry). Plug-ins register
// themselves into package-level maps from their init() functions; the
// enabled subset is frozen into a Registry at startup.
package plugins

import (
	"context"
	"log"
	"sync"

	"github.com/skrushinsky/torspider-go/internal/report"
)

// Consumer receives every finished report. It must not panic; the registry
// recovers and logs on behalf of callers that forget to.
type Consumer func(ctx context.Context, r report.Report) error

// Hook is a startup/shutdown plug-in: a named side-effecting callable.
type Hook func(ctx context.Context) error

var (
	mu        sync.Mutex
	initHooks = map[string]Hook{}
	doneHooks = map[string]Hook{}
	consumers = map[string]Consumer{}
)

// RegisterInit adds a named startup hook. Called from plug-in init()s.
func RegisterInit(name string, h Hook) {
	mu.Lock()
	defer mu.Unlock()
	initHooks[name] = h
}

// RegisterDone adds a named shutdown hook. Called from plug-in init()s.
func RegisterDone(name string, h Hook) {
	mu.Lock()
	defer mu.Unlock()
	doneHooks[name] = h
}

// RegisterConsumer adds a named report sink. Called from plug-in init()s.
func RegisterConsumer(name string, c Consumer) {
	mu.Lock()
	defer mu.Unlock()
	consumers[name] = c
}

// Registry is the immutable, ordered view of enabled plug-ins built once at
// startup by Load. It never changes during a crawl, so it needs no locking
// once built.
type Registry struct {
	names     []string
	initHooks []namedHook
	doneHooks []namedHook
	consumers []namedConsumer
}

type namedHook struct {
	name string
	hook Hook
}

type namedConsumer struct {
	name string
	fn   Consumer
}

// Load filters the global registrations down to the operator-supplied
// allow-list, preserving allow-list order as registration order.
func Load(allow []string) *Registry {
	mu.Lock()
	defer mu.Unlock()

	reg := &Registry{names: allow}
	for _, name := range allow {
		if h, ok := initHooks[name]; ok {
			reg.initHooks = append(reg.initHooks, namedHook{name, h})
		}
		if h, ok := doneHooks[name]; ok {
			reg.doneHooks = append(reg.doneHooks, namedHook{name, h})
		}
		if c, ok := consumers[name]; ok {
			reg.consumers = append(reg.consumers, namedConsumer{name, c})
		}
	}
	return reg
}

// RunInit runs every enabled "init" hook once, in allow-list order.
func (r *Registry) RunInit(ctx context.Context) {
	for _, h := range r.initHooks {
		if err := h.hook(ctx); err != nil {
			log.Printf("plugins: init hook %q failed: %v", h.name, err)
		}
	}
}

// RunDone runs every enabled "done" hook once, in allow-list order.
func (r *Registry) RunDone(ctx context.Context) {
	for _, h := range r.doneHooks {
		if err := h.hook(ctx); err != nil {
			log.Printf("plugins: done hook %q failed: %v", h.name, err)
		}
	}
}

// Fanout invokes every enabled consumer for rpt, sequentially in
// registration order, recovering and logging per-consumer panics/errors so
// a bad sink never blocks the pipeline.
func (r *Registry) Fanout(ctx context.Context, rpt report.Report) {
	for _, c := range r.consumers {
		callConsumer(ctx, c.name, c.fn, rpt)
	}
}

func callConsumer(ctx context.Context, name string, fn Consumer, rpt report.Report) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("plugins: consumer %q panicked: %v", name, rec)
		}
	}()
	if err := fn(ctx, rpt); err != nil {
		log.Printf("plugins: consumer %q failed: %v", name, err)
	}
}
