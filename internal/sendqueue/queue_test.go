package sendqueue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFIFOOrder(t *testing.T) {
	q := New[[]byte]()
	q.Put([]byte("a"))
	q.Put([]byte("b"))

	ctx := context.Background()
	a, err := q.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := q.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != "a" || string(b) != "b" {
		t.Errorf("dequeued %q, %q; want \"a\", \"b\"", a, b)
	}
	if q.Len() != 0 {
		t.Errorf("queue length = %d after draining, want 0", q.Len())
	}
}

func TestGetBlocksUntilPut(t *testing.T) {
	q := New[int]()
	got := make(chan int, 1)
	started := make(chan struct{})

	go func() {
		close(started)
		v, err := q.Get(context.Background())
		if err != nil {
			t.Errorf("Get: %v", err)
			return
		}
		got <- v
	}()

	<-started
	select {
	case v := <-got:
		t.Fatalf("Get returned %d before any Put", v)
	case <-time.After(20 * time.Millisecond):
	}

	q.Put(42)
	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("Get = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Get did not wake after Put")
	}
}

// After an empty-then-filled-then-emptied cycle, a later Get must be woken
// only by a new Put, not by a stale signal.
func TestSignalClearedOnDrain(t *testing.T) {
	q := New[int]()
	ctx := context.Background()

	q.Put(1)
	if _, err := q.Get(ctx); err != nil {
		t.Fatal(err)
	}

	timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if v, err := q.Get(timeout); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Get on drained queue = (%v, %v), want deadline exceeded", v, err)
	}

	q.Put(2)
	v, err := q.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Errorf("Get = %d, want 2", v)
	}
}

func TestGetHonorsContext(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Get(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Get on cancelled context = %v, want context.Canceled", err)
	}
}

func TestBurstPreservesEveryItem(t *testing.T) {
	q := New[int]()
	const n = 1000
	for i := 0; i < n; i++ {
		q.Put(i)
	}
	for i := 0; i < n; i++ {
		v, err := q.Get(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if v != i {
			t.Fatalf("item %d = %d, want %d", i, v, i)
		}
	}
}
