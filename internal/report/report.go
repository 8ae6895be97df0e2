// Package report defines the Report shape produced on every terminal task
// transition and delivered to every registered consumer.
package report

import (
	"time"

	"github.com/skrushinsky/torspider-go/internal/extract"
)

// Report is produced exactly once per terminal transition. Exactly one of
// Page or Error is set.
type Report struct {
	URL   string
	TS    time.Time
	Page  *extract.Record
	Error string
}
