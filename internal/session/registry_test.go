package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"match-chatter/internal/history"
)

type fakeAllocator struct {
	calls atomic.Int32
	fail  atomic.Bool
	delay time.Duration
}

func (f *fakeAllocator) CreateThread(ctx context.Context) (string, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail.Load() {
		return "", errors.New("thread service down")
	}
	return fmt.Sprintf("thread_%d", n), nil
}

func newStore(t *testing.T) history.Store {
	t.Helper()
	s, err := history.NewMemoryStore(10)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return s
}

func TestGetOrCreate_ReturnsSameSession(t *testing.T) {
	r := NewRegistry(newStore(t), nil, nil)
	a, err := r.GetOrCreate(context.Background(), "1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, _ := r.GetOrCreate(context.Background(), "1")
	if a != b {
		t.Fatalf("expected the same session object")
	}
	if a.ThreadID() != "" {
		t.Fatalf("no allocator, but thread id set: %q", a.ThreadID())
	}
	c, _ := r.GetOrCreate(context.Background(), "2")
	if c == a || r.Len() != 2 {
		t.Fatalf("sessions not isolated per user")
	}
}

func TestGetOrCreate_AllocatesThreadOnce(t *testing.T) {
	alloc := &fakeAllocator{delay: 10 * time.Millisecond}
	r := NewRegistry(newStore(t), alloc, nil)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.GetOrCreate(context.Background(), "u")
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			ids[i] = s.ThreadID()
		}(i)
	}
	wg.Wait()

	if alloc.calls.Load() != 1 {
		t.Fatalf("thread allocated %d times", alloc.calls.Load())
	}
	for _, id := range ids {
		if id != "thread_1" {
			t.Fatalf("unexpected thread ids: %v", ids)
		}
	}
}

func TestGetOrCreate_RetriesFailedAllocation(t *testing.T) {
	alloc := &fakeAllocator{}
	alloc.fail.Store(true)
	r := NewRegistry(newStore(t), alloc, nil)

	if _, err := r.GetOrCreate(context.Background(), "u"); err == nil {
		t.Fatalf("expected allocation error")
	}
	alloc.fail.Store(false)
	s, err := r.GetOrCreate(context.Background(), "u")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s.ThreadID() == "" {
		t.Fatalf("thread not allocated on retry")
	}
}

func TestReset_DropsSessionAndHistory(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	alloc := &fakeAllocator{}
	r := NewRegistry(store, alloc, nil)

	first, _ := r.GetOrCreate(ctx, "u")
	_ = store.Append(ctx, "u", history.UserTurn("hello"))
	_ = store.Append(ctx, "other", history.UserTurn("keep"))

	if err := r.Reset(ctx, "u"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, _ := store.Recent(ctx, "u", 10)
	if len(got) != 0 {
		t.Fatalf("history survived reset: %+v", got)
	}
	if kept, _ := store.Recent(ctx, "other", 10); len(kept) != 1 {
		t.Fatalf("reset touched another session")
	}

	second, _ := r.GetOrCreate(ctx, "u")
	if second == first || second.ThreadID() == first.ThreadID() {
		t.Fatalf("reset should start a fresh session and thread")
	}
}

func TestTryAcquire_SingleFlight(t *testing.T) {
	r := NewRegistry(newStore(t), nil, nil)
	if !r.TryAcquire("u") {
		t.Fatalf("first acquire failed")
	}
	if r.TryAcquire("u") {
		t.Fatalf("second acquire on busy session succeeded")
	}
	if !r.TryAcquire("v") {
		t.Fatalf("other users must not be blocked")
	}
	if !r.InFlight("u") {
		t.Fatalf("in-flight flag not visible")
	}
	r.Release("u")
	if !r.TryAcquire("u") {
		t.Fatalf("acquire after release failed")
	}
}

func TestTryAcquire_Concurrent(t *testing.T) {
	r := NewRegistry(newStore(t), nil, nil)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.TryAcquire("u") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("%d concurrent acquisitions succeeded", wins.Load())
	}
}

func TestReset_KeepsInFlightMark(t *testing.T) {
	r := NewRegistry(newStore(t), nil, nil)
	r.TryAcquire("u")
	_ = r.Reset(context.Background(), "u")
	if r.TryAcquire("u") {
		t.Fatalf("reset must not clear a running completion's lock")
	}
	r.Release("u")
	if !r.TryAcquire("u") {
		t.Fatalf("release after reset failed")
	}
}
