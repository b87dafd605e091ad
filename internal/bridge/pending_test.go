package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPendingResolve(t *testing.T) {
	p := NewPending[int]()

	if !p.Resolve(42) {
		t.Fatal("expected first resolve to win")
	}

	v, err := p.Await(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
}

func TestPendingFail(t *testing.T) {
	p := NewPending[int]()
	testErr := errors.New("load failed")

	if !p.Fail(testErr) {
		t.Fatal("expected first fail to win")
	}

	_, err := p.Await(context.Background())
	if !errors.Is(err, testErr) {
		t.Errorf("expected test error, got %v", err)
	}
}

func TestPendingSecondResolutionLoses(t *testing.T) {
	p := NewPending[string]()

	if !p.Resolve("winner") {
		t.Fatal("expected first resolve to win")
	}
	if p.Fail(errors.New("too late")) {
		t.Error("expected late fail to lose")
	}
	if p.Resolve("also too late") {
		t.Error("expected late resolve to lose")
	}

	// The first result stands
	v, err := p.Await(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v != "winner" {
		t.Errorf("expected 'winner', got %q", v)
	}
}

func TestPendingOnLateHook(t *testing.T) {
	p := NewPending[struct{}]()

	var late atomic.Int32
	p.OnLate(func() { late.Add(1) })

	p.Resolve(struct{}{})
	p.Fail(errors.New("late"))
	p.Resolve(struct{}{})

	if got := late.Load(); got != 2 {
		t.Errorf("expected 2 late resolutions, got %d", got)
	}
}

func TestPendingAwaitContextExpiry(t *testing.T) {
	p := NewPending[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Await(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// A resolution after the waiter gave up must not block
	done := make(chan struct{})
	go func() {
		p.Resolve(1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resolve blocked after abandoned await")
	}
}

func TestPendingConcurrentResolvers(t *testing.T) {
	p := NewPending[int]()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if p.Resolve(n) {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("expected exactly 1 winner, got %d", got)
	}

	if _, err := p.Await(context.Background()); err != nil {
		t.Errorf("expected a resolved value, got error %v", err)
	}
}
