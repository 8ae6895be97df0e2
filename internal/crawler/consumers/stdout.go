// Package consumers ships the one in-tree report sink: a line-delimited
// JSON writer to stdout. Document-store sinks live outside this module.
package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/skrushinsky/torspider-go/internal/plugins"
	"github.com/skrushinsky/torspider-go/internal/report"
)

// jsonReport is the wire shape written for each report.
type jsonReport struct {
	URL      string            `json:"url"`
	Title    string            `json:"title,omitempty"`
	Language string            `json:"language,omitempty"`
	Links    *linksJSON        `json:"links,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
	Error    string            `json:"error,omitempty"`
}

type linksJSON struct {
	Inner []string `json:"inner"`
	Outer []string `json:"outer"`
}

// RegisterJSONL registers a "jsonl" consumer that writes one JSON object per
// report to w, guarded by a mutex since Fanout may be called concurrently
// by different workers.
func RegisterJSONL(w io.Writer) {
	var mu sync.Mutex
	plugins.RegisterConsumer("jsonl", func(_ context.Context, r report.Report) error {
		jr := jsonReport{URL: r.URL, Error: r.Error}
		if r.Page != nil {
			jr.Title = r.Page.Title
			jr.Language = r.Page.Language
			jr.Meta = r.Page.Meta
			if len(r.Page.Links.Inner) > 0 || len(r.Page.Links.Outer) > 0 {
				jr.Links = &linksJSON{Inner: r.Page.Links.Inner, Outer: r.Page.Links.Outer}
			}
		}

		buf, err := json.Marshal(jr)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		_, err = fmt.Fprintf(w, "%s\n", buf)
		return err
	})
}
