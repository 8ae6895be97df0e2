// Package redisstore implements store.Store on top of Redis. Lists back
// the pending queue; sets back the four ledger membership tables; MULTI
// pipelines back the two-step atomic moves.
package redisstore

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skrushinsky/torspider-go/internal/store"
)

// DefaultMaxConnections caps the shared connection pool.
const DefaultMaxConnections = 200

// DefaultBlockingPopTimeout bounds GetTask's wait so an idle worker can
// periodically re-check for shutdown.
const DefaultBlockingPopTimeout = 3 * time.Second

// Keys names the five ledger structures. Zero-valued fields fall back to
// store.Default*Key.
type Keys struct {
	PendingQueue string
	PendingSet   string
	WorkingSet   string
	SuccessSet   string
	FailureSet   string
}

func (k Keys) withDefaults() Keys {
	if k.PendingQueue == "" {
		k.PendingQueue = store.DefaultPendingQueueKey
	}
	if k.PendingSet == "" {
		k.PendingSet = store.DefaultPendingSetKey
	}
	if k.WorkingSet == "" {
		k.WorkingSet = store.DefaultWorkingSetKey
	}
	if k.SuccessSet == "" {
		k.SuccessSet = store.DefaultSuccessSetKey
	}
	if k.FailureSet == "" {
		k.FailureSet = store.DefaultFailureSetKey
	}
	return k
}

// Config configures a Client.
type Config struct {
	Addr               string
	Password           string
	DB                 int
	MaxConns           int
	Keys               Keys
	BlockingPopTimeout time.Duration // 0 = DefaultBlockingPopTimeout
}

// Client is a store.Store backed by a pooled Redis connection.
type Client struct {
	rdb                *redis.Client
	keys               Keys
	blockingPopTimeout time.Duration
}

// New connects to Redis using cfg and returns a ready store.Store.
func New(cfg Config) *Client {
	maxConns := cfg.MaxConns
	if maxConns == 0 {
		maxConns = DefaultMaxConnections
	}
	if cfg.BlockingPopTimeout == 0 {
		cfg.BlockingPopTimeout = DefaultBlockingPopTimeout
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: maxConns,
	})

	return &Client{
		rdb:                rdb,
		keys:               cfg.Keys.withDefaults(),
		blockingPopTimeout: cfg.BlockingPopTimeout,
	}
}

// PutTask atomically adds url to the pending set and pushes it onto the
// pending queue, via a single pipeline so neither step is ever observed
// alone.
func (c *Client) PutTask(ctx context.Context, url string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, c.keys.PendingSet, url)
		pipe.LPush(ctx, c.keys.PendingQueue, url)
		return nil
	})
	return err
}

// GetTask blocks on the right end of the pending queue, then pipelines the
// pending-remove + working-add move. The pop and the move are not a single
// atomic server round trip: a crash between them can leave a task in the
// pending set with no entry left in the pending queue. This is a known,
// tolerated window.
func (c *Client) GetTask(ctx context.Context) (string, error) {
	res, err := c.rdb.BRPop(ctx, c.blockingPopTimeout, c.keys.PendingQueue).Result()
	if err != nil {
		if err == redis.Nil {
			return "", store.ErrNoTask{}
		}
		return "", err
	}
	task := res[1]

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, c.keys.PendingSet, task)
		pipe.SAdd(ctx, c.keys.WorkingSet, task)
		return nil
	})
	return task, err
}

func (c *Client) move(ctx context.Context, url, from, to string) error {
	var remCmd *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		remCmd = pipe.SRem(ctx, from, url)
		pipe.SAdd(ctx, to, url)
		return nil
	})
	if err != nil {
		return err
	}
	if remCmd.Val() == 0 {
		log.Printf("redisstore: task %s not found in %s", url, from)
	}
	return nil
}

// RegisterSuccess moves url from working to success.
func (c *Client) RegisterSuccess(ctx context.Context, url string) error {
	return c.move(ctx, url, c.keys.WorkingSet, c.keys.SuccessSet)
}

// RegisterFailure moves url from working to failure.
func (c *Client) RegisterFailure(ctx context.Context, url string) error {
	return c.move(ctx, url, c.keys.WorkingSet, c.keys.FailureSet)
}

// IsKnownTask reports membership in any of the four ledger sets. Best-effort:
// another writer can change membership between these four checks.
func (c *Client) IsKnownTask(ctx context.Context, url string) (bool, error) {
	for _, set := range []string{c.keys.PendingSet, c.keys.WorkingSet, c.keys.SuccessSet, c.keys.FailureSet} {
		ok, err := c.rdb.SIsMember(ctx, set, url).Result()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// PendingCount returns the size of the pending set.
func (c *Client) PendingCount(ctx context.Context) (int64, error) {
	return c.rdb.SCard(ctx, c.keys.PendingSet).Result()
}

// PassedCount returns |success| + |failure|.
func (c *Client) PassedCount(ctx context.Context) (int64, error) {
	cmds, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SCard(ctx, c.keys.SuccessSet)
		pipe.SCard(ctx, c.keys.FailureSet)
		return nil
	})
	if err != nil {
		return 0, err
	}
	var total int64
	for _, cmd := range cmds {
		total += cmd.(*redis.IntCmd).Val()
	}
	return total, nil
}

// ClearAll drops all five ledger keys.
func (c *Client) ClearAll(ctx context.Context) error {
	return c.rdb.Del(ctx,
		c.keys.PendingQueue, c.keys.PendingSet,
		c.keys.WorkingSet, c.keys.SuccessSet, c.keys.FailureSet,
	).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

var _ store.Store = (*Client)(nil)
