// Command torspider runs the distributed crawl coordinator: it loads seed
// URLs, spawns workers sharing a Redis coordination store, and writes
// terminal reports to the enabled consumers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skrushinsky/torspider-go/internal/config"
	"github.com/skrushinsky/torspider-go/internal/crawler"
	"github.com/skrushinsky/torspider-go/internal/crawler/consumers"
	"github.com/skrushinsky/torspider-go/internal/fetch"
	"github.com/skrushinsky/torspider-go/internal/plugins"
	"github.com/skrushinsky/torspider-go/internal/seeds"
	"github.com/skrushinsky/torspider-go/internal/store/redisstore"
)

func main() {
	def := config.Default()

	configFile := flag.String("config", "", "optional JSON config file")
	seedsFile := flag.String("seeds", "", "seeds file, one URL per line (required)")
	redisAddr := flag.String("redis-addr", "localhost:6379", "coordination store address")
	pluginList := flag.String("plugins", "jsonl", "comma-separated allow-list of enabled plug-ins")

	proxy := flag.String("proxy", def.Proxy, "HTTP proxy host:port; empty disables")
	connectTimeout := flag.Float64("connect-timeout", def.ConnectTimeout, "connect timeout, seconds")
	requestTimeout := flag.Float64("request-timeout", def.RequestTimeout, "request timeout, seconds")
	validateCert := flag.Bool("validate-cert", def.ValidateCert, "validate TLS certificates")
	maxPages := flag.Int("max-pages", def.MaxPages, "maximum pages to visit (0 = unlimited)")
	clearTasks := flag.Bool("clear-tasks", def.ClearTasks, "wipe the coordination store at startup")
	workers := flag.Int("workers", def.Workers, "number of concurrent workers")
	followOuter := flag.Bool("follow-outer-links", def.FollowOuterLinks, "admit cross-domain links")
	followInner := flag.Bool("follow-inner-links", def.FollowInnerLinks, "admit same-domain links")
	throttlingRatio := flag.Float64("throttling-ratio", def.ThrottlingRatio, "skip admission when passed/pending falls below this ratio; 0 disables")

	flag.Parse()

	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile, def)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config file: %v\n", err)
			os.Exit(1)
		}
		// Take the file's values as the option values, then parse the
		// command line again so flags given explicitly override them.
		*proxy, *connectTimeout, *requestTimeout, *validateCert, *maxPages = loaded.Proxy, loaded.ConnectTimeout, loaded.RequestTimeout, loaded.ValidateCert, loaded.MaxPages
		*clearTasks, *workers, *followOuter, *followInner, *throttlingRatio = loaded.ClearTasks, loaded.Workers, loaded.FollowOuterLinks, loaded.FollowInnerLinks, loaded.ThrottlingRatio
		flag.Parse()
	}

	if *seedsFile == "" {
		fmt.Fprintf(os.Stderr, "Error: -seeds flag is required\n")
		flag.Usage()
		os.Exit(1)
	}
	if *workers <= 0 {
		fmt.Fprintf(os.Stderr, "Error: -workers must be greater than 0\n")
		os.Exit(1)
	}
	if *maxPages < 0 {
		fmt.Fprintf(os.Stderr, "Error: -max-pages cannot be negative\n")
		os.Exit(1)
	}

	cfg := config.Config{
		Proxy:            *proxy,
		ConnectTimeout:   *connectTimeout,
		RequestTimeout:   *requestTimeout,
		ValidateCert:     *validateCert,
		MaxPages:         *maxPages,
		ClearTasks:       *clearTasks,
		Workers:          *workers,
		FollowOuterLinks: *followOuter,
		FollowInnerLinks: *followInner,
		ThrottlingRatio:  *throttlingRatio,
	}

	seedList, err := seeds.Load(*seedsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading seeds: %v\n", err)
		os.Exit(1)
	}

	consumers.RegisterJSONL(os.Stdout)
	enabled := strings.Split(*pluginList, ",")
	registry := plugins.Load(enabled)

	rdb := redisstore.New(redisstore.Config{Addr: *redisAddr})
	defer rdb.Close()

	httpClient := fetch.New(fetch.Config{
		Proxy:          cfg.Proxy,
		ConnectTimeout: cfg.ConnectTimeoutDuration(),
		RequestTimeout: cfg.RequestTimeoutDuration(),
		ValidateCert:   cfg.ValidateCert,
	})

	coord, err := crawler.NewController(crawler.ControllerConfig{
		Store:            rdb,
		Fetcher:          &fetcherAdapter{httpClient},
		Plugins:          registry,
		Seeds:            seedList,
		Workers:          cfg.Workers,
		MaxPages:         cfg.MaxPages,
		ClearTasks:       cfg.ClearTasks,
		FollowOuterLinks: cfg.FollowOuterLinks,
		FollowInnerLinks: cfg.FollowInnerLinks,
		ThrottlingRatio:  cfg.ThrottlingRatio,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating controller: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- coord.Run(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			fmt.Fprintf(os.Stderr, "Error during crawl: %v\n", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		fmt.Fprintf(os.Stderr, "\nReceived signal %v, shutting down gracefully...\n", sig)
		cancel()

		select {
		case err := <-errCh:
			if err != nil && err != context.Canceled {
				fmt.Fprintf(os.Stderr, "\nError during shutdown: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintln(os.Stderr, "Shutdown complete")
		case <-time.After(5 * time.Second):
			fmt.Fprintf(os.Stderr, "\nShutdown timeout exceeded, forcing exit\n")
			os.Exit(1)
		}
	}
}

// fetcherAdapter adapts fetch.Client to the crawler.Fetcher interface.
type fetcherAdapter struct {
	client *fetch.Client
}

func (a *fetcherAdapter) Visit(ctx context.Context, url string) (*crawler.FetchResponse, error) {
	resp, err := a.client.Visit(ctx, url)
	if err != nil {
		return nil, err
	}
	return &crawler.FetchResponse{
		EffectiveURL: resp.EffectiveURL,
		Header:       resp.Header,
		Body:         resp.Body,
	}, nil
}
