// Package fakestore is an in-memory store.Store used by worker and
// controller tests: a hand-rolled fake rather than a mocking framework.
package fakestore

import (
	"context"
	"sync"

	"github.com/skrushinsky/torspider-go/internal/store"
)

// Store is a mutex-guarded in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex

	queue   []string
	pending map[string]bool
	working map[string]bool
	success map[string]bool
	failure map[string]bool

	popped chan struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		pending: map[string]bool{},
		working: map[string]bool{},
		success: map[string]bool{},
		failure: map[string]bool{},
		popped:  make(chan struct{}, 1),
	}
}

func (s *Store) PutTask(ctx context.Context, url string) error {
	s.mu.Lock()
	s.pending[url] = true
	s.queue = append([]string{url}, s.queue...)
	s.mu.Unlock()
	select {
	case s.popped <- struct{}{}:
	default:
	}
	return nil
}

// GetTask blocks (via the context) until a task is available.
func (s *Store) GetTask(ctx context.Context) (string, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			task := s.queue[len(s.queue)-1]
			s.queue = s.queue[:len(s.queue)-1]
			delete(s.pending, task)
			s.working[task] = true
			s.mu.Unlock()
			return task, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-s.popped:
		}
	}
}

func (s *Store) RegisterSuccess(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.working, url)
	s.success[url] = true
	return nil
}

func (s *Store) RegisterFailure(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.working, url)
	s.failure[url] = true
	return nil
}

func (s *Store) IsKnownTask(ctx context.Context, url string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[url] || s.working[url] || s.success[url] || s.failure[url], nil
}

func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.pending)), nil
}

func (s *Store) PassedCount(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.success) + len(s.failure)), nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.pending = map[string]bool{}
	s.working = map[string]bool{}
	s.success = map[string]bool{}
	s.failure = map[string]bool{}
	return nil
}

func (s *Store) Close() error { return nil }

var _ store.Store = (*Store)(nil)
