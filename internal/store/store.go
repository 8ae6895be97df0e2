// Package store defines the coordination-store contract: the external
// key/value service that doubles as the crawl's work queue and its durable
// task-state ledger.
package store

import "context"

// Default key names for the five ledger structures.
const (
	DefaultPendingQueueKey = "torspider:pending_lst"
	DefaultPendingSetKey   = "torspider:pending_set"
	DefaultWorkingSetKey   = "torspider:working_set"
	DefaultSuccessSetKey   = "torspider:success_set"
	DefaultFailureSetKey   = "torspider:failure_set"
)

// Store is the coordination store client contract. Implementations must
// give PutTask/GetTask and the two register calls their atomicity:
// PutTask's set-add and queue-push happen in one server-side transaction,
// and GetTask's queue-pop is followed by a single pipelined pending-remove
// + working-add.
type Store interface {
	// PutTask admits url into the pending set and pending queue. Safe to
	// call for a url already pending; duplicates are tolerated.
	PutTask(ctx context.Context, url string) error

	// GetTask blocks until a url is available, pops it from the queue, and
	// moves it from pending to working. Implementations with a bounded wait
	// return ErrNoTask when none arrives in time.
	GetTask(ctx context.Context) (string, error)

	// RegisterSuccess moves url from working to success.
	RegisterSuccess(ctx context.Context, url string) error

	// RegisterFailure moves url from working to failure.
	RegisterFailure(ctx context.Context, url string) error

	// IsKnownTask reports whether url is a member of any of the four sets.
	IsKnownTask(ctx context.Context, url string) (bool, error)

	// PendingCount returns the size of the pending set.
	PendingCount(ctx context.Context) (int64, error)

	// PassedCount returns |success| + |failure|.
	PassedCount(ctx context.Context) (int64, error)

	// ClearAll drops all five ledger keys.
	ClearAll(ctx context.Context) error

	// Close releases any underlying connections.
	Close() error
}

// ErrNoTask is returned by GetTask implementations that support a bounded
// wait (rather than blocking forever) when no task became available before
// the deadline, so callers can re-check for shutdown.
type ErrNoTask struct{}

func (ErrNoTask) Error() string { return "store: no task available" }
