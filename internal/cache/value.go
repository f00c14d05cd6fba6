// Package cache holds a single read-through value with a fresh window and a
// stale window. Refreshes for the same value collapse into one call.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const refreshKey = "value"

type Entry[T any] struct {
	Value      T
	ExpiresAt  time.Time
	StaleUntil time.Time
}

// Loader produces a fresh value.
type Loader[T any] func(ctx context.Context) (T, error)

type Value[T any] struct {
	mu    sync.RWMutex
	entry *Entry[T]
	gen   uint64

	load  Loader[T]
	ttl   time.Duration
	stale time.Duration
	now   func() time.Time
	group singleflight.Group
}

// New returns a cache that serves loads for ttl, then keeps serving the old
// value for another stale while refreshing in the background.
func New[T any](load Loader[T], ttl, stale time.Duration) *Value[T] {
	return &Value[T]{load: load, ttl: ttl, stale: stale, now: time.Now}
}

// SetClock replaces the time source.
func (v *Value[T]) SetClock(now func() time.Time) {
	v.mu.Lock()
	v.now = now
	v.mu.Unlock()
}

func (v *Value[T]) Get(ctx context.Context) (T, error) {
	v.mu.RLock()
	entry, now := v.entry, v.now()
	v.mu.RUnlock()

	if entry != nil {
		if now.Before(entry.ExpiresAt) {
			return entry.Value, nil
		}
		if now.Before(entry.StaleUntil) {
			go func() {
				// Detached from the caller; the request may finish first.
				_, _ = v.refresh(context.WithoutCancel(ctx))
			}()
			return entry.Value, nil
		}
	}
	return v.refresh(ctx)
}

func (v *Value[T]) refresh(ctx context.Context) (T, error) {
	res, err, _ := v.group.Do(refreshKey, func() (any, error) {
		v.mu.RLock()
		gen := v.gen
		v.mu.RUnlock()

		value, err := v.load(ctx)
		if err != nil {
			return value, err
		}

		v.mu.Lock()
		defer v.mu.Unlock()
		// An invalidation during the load means this value may be outdated.
		if gen == v.gen {
			now := v.now()
			v.entry = &Entry[T]{
				Value:      value,
				ExpiresAt:  now.Add(v.ttl),
				StaleUntil: now.Add(v.ttl + v.stale),
			}
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// Invalidate drops the cached entry so the next Get loads synchronously.
func (v *Value[T]) Invalidate() {
	v.mu.Lock()
	v.entry = nil
	v.gen++
	v.mu.Unlock()
}

// Reset is Invalidate plus forgetting any in-flight refresh.
func (v *Value[T]) Reset() {
	v.Invalidate()
	v.group.Forget(refreshKey)
}

// Peek returns the current entry without loading.
func (v *Value[T]) Peek() (Entry[T], bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.entry == nil {
		return Entry[T]{}, false
	}
	return *v.entry, true
}
