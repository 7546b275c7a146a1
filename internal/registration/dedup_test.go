package registration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testID = "dQw4w9WgXcQ"

func waitJoined(t *testing.T, d *Deduplicator, id string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for d.Joined(id) < n {
		if time.Now().After(deadline) {
			t.Fatalf("Joined(%q) = %d; want %d", id, d.Joined(id), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEnsureSharesOneOperation(t *testing.T) {
	d := New()
	gate := make(chan struct{})
	var calls atomic.Int32
	fn := func(ctx context.Context) (Result, error) {
		calls.Add(1)
		<-gate
		return Result{Title: "Never Gonna"}, nil
	}

	const callers = 5
	var wg sync.WaitGroup
	results := make([]Result, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.Ensure(context.Background(), testID, fn)
		}(i)
	}

	waitJoined(t, d, testID, callers)
	if !d.InFlight(testID) {
		t.Fatalf("InFlight() = false while pending")
	}
	close(gate)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("register calls = %d; want 1", got)
	}
	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if results[i].ID != testID || results[i].Title != "Never Gonna" {
			t.Fatalf("caller %d result = %+v", i, results[i])
		}
	}
	if d.InFlight(testID) {
		t.Fatalf("InFlight() = true after completion")
	}
}

func TestEnsurePropagatesFailureToEveryCaller(t *testing.T) {
	d := New()
	gate := make(chan struct{})
	boom := errors.New("500 boom")
	var calls atomic.Int32
	fn := func(ctx context.Context) (Result, error) {
		calls.Add(1)
		<-gate
		return Result{}, boom
	}

	const callers = 3
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = d.Ensure(context.Background(), testID, fn)
		}(i)
	}
	waitJoined(t, d, testID, callers)
	close(gate)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("register calls = %d; want 1", got)
	}
	for i, err := range errs {
		if !errors.Is(err, boom) {
			t.Fatalf("caller %d error = %v; want %v", i, err, boom)
		}
	}
}

func TestEnsureStartsFreshAfterCompletion(t *testing.T) {
	d := New()
	var calls atomic.Int32
	fail := true
	fn := func(ctx context.Context) (Result, error) {
		calls.Add(1)
		if fail {
			return Result{}, errors.New("503 unavailable")
		}
		return Result{Title: "ok"}, nil
	}

	if _, err := d.Ensure(context.Background(), testID, fn); err == nil {
		t.Fatalf("first Ensure() error = nil; want failure")
	}
	fail = false
	res, err := d.Ensure(context.Background(), testID, fn)
	if err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}
	if res.Title != "ok" {
		t.Fatalf("second Ensure() = %+v", res)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("register calls = %d; want 2 (no negative caching)", got)
	}
}

func TestEnsureDifferentIDsRunIndependently(t *testing.T) {
	d := New()
	var calls atomic.Int32
	fn := func(ctx context.Context) (Result, error) {
		calls.Add(1)
		return Result{}, nil
	}
	for _, id := range []string{"aaaaaaaaaaa", "bbbbbbbbbbb"} {
		res, err := d.Ensure(context.Background(), id, fn)
		if err != nil {
			t.Fatalf("Ensure(%q) error = %v", id, err)
		}
		if res.ID != id {
			t.Fatalf("Ensure(%q).ID = %q", id, res.ID)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("register calls = %d; want 2", got)
	}
}

func TestEnsureCallerCancelDoesNotCancelShared(t *testing.T) {
	d := New()
	gate := make(chan struct{})
	sawCancel := make(chan bool, 1)
	fn := func(ctx context.Context) (Result, error) {
		<-gate
		sawCancel <- ctx.Err() != nil
		return Result{Title: "done"}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := d.Ensure(ctx, testID, fn)
		firstErr <- err
	}()
	waitJoined(t, d, testID, 1)

	second := make(chan Result, 1)
	go func() {
		res, _ := d.Ensure(context.Background(), testID, fn)
		second <- res
	}()
	waitJoined(t, d, testID, 2)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller error = %v; want context.Canceled", err)
	}
	close(gate)

	if res := <-second; res.Title != "done" {
		t.Fatalf("remaining caller result = %+v; want title done", res)
	}
	if <-sawCancel {
		t.Fatalf("shared registration saw a cancelled context")
	}
}

func TestEnsureTurnsPanicIntoError(t *testing.T) {
	d := New()
	_, err := d.Ensure(context.Background(), testID, func(ctx context.Context) (Result, error) {
		panic("register exploded")
	})
	if err == nil || !strings.Contains(err.Error(), "registration panicked: register exploded") {
		t.Fatalf("Ensure() error = %v; want recovered panic", err)
	}
	if d.InFlight(testID) {
		t.Fatalf("InFlight(%q) = true after panic; want false", testID)
	}
}
