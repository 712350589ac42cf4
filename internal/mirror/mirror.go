// Package mirror keeps read-only in-memory reflections of remote
// collections, kept current by a snapshot subscription.
package mirror

import (
	"context"
	"sync"
	"time"
)

// Subscription is a standing source of full ordered snapshots. Next
// blocks until the next snapshot is available: the initial load first,
// then one per remote change. Implementations never deliver deltas.
type Subscription[T any] interface {
	Next(ctx context.Context) ([]T, error)
}

// Mirror holds one collection's current snapshot. The sequence is only
// ever replaced wholesale, so a reader never observes a partially
// updated order. Update and error callbacks fire from the Run goroutine
// one at a time, in delivery order.
type Mirror[T any] struct {
	mu       sync.RWMutex
	snapshot []T

	transform func(T) T
	onUpdate  func([]T)
	onError   func(error)
	retry     time.Duration
}

type Option[T any] func(*Mirror[T])

// WithTransform applies a per-record normalization (defaulting of
// missing fields) as snapshots enter the mirror.
func WithTransform[T any](fn func(T) T) Option[T] {
	return func(m *Mirror[T]) { m.transform = fn }
}

// WithErrorHandler receives subscription failures. The mirror keeps its
// last-known-good snapshot when the handler fires.
func WithErrorHandler[T any](fn func(error)) Option[T] {
	return func(m *Mirror[T]) { m.onError = fn }
}

// WithRetryDelay overrides the pause before re-polling a failed
// subscription.
func WithRetryDelay[T any](d time.Duration) Option[T] {
	return func(m *Mirror[T]) { m.retry = d }
}

func New[T any](onUpdate func([]T), opts ...Option[T]) *Mirror[T] {
	m := &Mirror[T]{
		snapshot: []T{},
		onUpdate: onUpdate,
		retry:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns a copy of the current sequence in mirror order.
func (m *Mirror[T]) Snapshot() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, len(m.snapshot))
	copy(out, m.snapshot)
	return out
}

func (m *Mirror[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshot)
}

// Apply replaces the whole sequence atomically and notifies the update
// callback with a copy.
func (m *Mirror[T]) Apply(snapshot []T) {
	next := make([]T, len(snapshot))
	for i, item := range snapshot {
		if m.transform != nil {
			item = m.transform(item)
		}
		next[i] = item
	}

	m.mu.Lock()
	m.snapshot = next
	m.mu.Unlock()

	if m.onUpdate != nil {
		m.onUpdate(m.Snapshot())
	}
}

// Run consumes the subscription until ctx is cancelled. A subscription
// error is reported and retried after a pause; the snapshot applied
// last stays visible throughout.
func (m *Mirror[T]) Run(ctx context.Context, sub Subscription[T]) {
	for {
		snapshot, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if m.onError != nil {
				m.onError(err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.retry):
			}
			continue
		}
		m.Apply(snapshot)
	}
}
