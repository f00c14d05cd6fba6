package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestValueServesFreshThenStale(t *testing.T) {
	var calls atomic.Int32
	refreshed := make(chan struct{}, 4)
	load := func(context.Context) (int, error) {
		n := int(calls.Add(1))
		refreshed <- struct{}{}
		return n, nil
	}
	clk := &clock{now: time.Unix(1000, 0)}
	v := New(load, 2*time.Second, 10*time.Second)
	v.SetClock(clk.Now)
	ctx := context.Background()

	if got, _ := v.Get(ctx); got != 1 {
		t.Fatalf("first get = %d want 1", got)
	}
	<-refreshed
	clk.Advance(time.Second)
	if got, _ := v.Get(ctx); got != 1 {
		t.Fatalf("fresh get = %d want 1", got)
	}
	if calls.Load() != 1 {
		t.Fatalf("fresh read should not load, calls=%d", calls.Load())
	}

	// Inside the stale window the old value comes back while a refresh runs.
	clk.Advance(3 * time.Second)
	if got, _ := v.Get(ctx); got != 1 {
		t.Fatalf("stale get = %d want 1", got)
	}
	select {
	case <-refreshed:
	case <-time.After(time.Second):
		t.Fatal("background refresh did not run")
	}

	deadline := time.Now().Add(time.Second)
	for {
		if e, ok := v.Peek(); ok && e.Value == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("refreshed entry was not stored")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Beyond the stale window the read blocks on a new load.
	clk.Advance(time.Minute)
	if got, _ := v.Get(ctx); got != 3 {
		t.Fatalf("expired get = %d want 3", got)
	}
}

func TestValueCollapsesConcurrentLoads(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "lobbies", nil
	}
	v := New(load, time.Second, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, err := v.Get(context.Background()); err != nil || got != "lobbies" {
				t.Errorf("get = %q, %v", got, err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("loader called %d times want 1", calls.Load())
	}
}

func TestValueInvalidateAndErrors(t *testing.T) {
	var calls atomic.Int32
	fail := errors.New("db down")
	var failing atomic.Bool
	load := func(context.Context) (int, error) {
		if failing.Load() {
			return 0, fail
		}
		return int(calls.Add(1)), nil
	}
	v := New(load, time.Hour, time.Hour)
	ctx := context.Background()

	if got, _ := v.Get(ctx); got != 1 {
		t.Fatalf("got %d want 1", got)
	}
	v.Invalidate()
	if _, ok := v.Peek(); ok {
		t.Fatal("entry should be gone after Invalidate")
	}
	if got, _ := v.Get(ctx); got != 2 {
		t.Fatalf("got %d want 2", got)
	}

	v.Reset()
	failing.Store(true)
	if _, err := v.Get(ctx); !errors.Is(err, fail) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if _, ok := v.Peek(); ok {
		t.Fatal("failed load must not populate the cache")
	}
}
