// Package registration guarantees at most one in-flight backend
// registration per video identifier.
package registration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Result is what a completed registration reports back to every caller that
// joined it.
type Result struct {
	ID    string
	Title string
}

// RegisterFunc performs the actual backend registration.
type RegisterFunc func(ctx context.Context) (Result, error)

// Deduplicator shares one pending registration among concurrent callers for
// the same identifier. Entries are dropped as soon as the operation settles,
// whether it succeeded or not, so a later call starts fresh.
type Deduplicator struct {
	group singleflight.Group

	mu      sync.Mutex
	waiters map[string]int
}

func New() *Deduplicator {
	return &Deduplicator{waiters: make(map[string]int)}
}

// Ensure joins the in-flight registration for id or starts fn. The shared
// operation is detached from ctx: a caller that gives up stops waiting, but
// the registration still completes for everyone else.
func (d *Deduplicator) Ensure(ctx context.Context, id string, fn RegisterFunc) (Result, error) {
	detached := context.WithoutCancel(ctx)
	ch := d.group.DoChan(id, func() (val any, err error) {
		// DoChan re-panics on its own goroutine, out of every caller's reach.
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("registration panicked", "video_id", id, "panic", rec)
				val, err = Result{}, fmt.Errorf("registration panicked: %v", rec)
			}
		}()
		slog.Debug("registration started", "video_id", id)
		res, err := fn(detached)
		if err != nil {
			slog.Warn("registration failed", "video_id", id, "error", err)
			return Result{}, err
		}
		if res.ID == "" {
			res.ID = id
		}
		slog.Debug("registration finished", "video_id", id, "title", res.Title)
		return res, nil
	})
	d.track(id, 1)
	defer d.track(id, -1)

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		if r.Shared {
			slog.Debug("registration joined", "video_id", id)
		}
		return r.Val.(Result), nil
	}
}

// InFlight reports whether a registration for id is pending.
func (d *Deduplicator) InFlight(id string) bool {
	return d.Joined(id) > 0
}

// Joined returns how many callers are currently waiting on id.
func (d *Deduplicator) Joined(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waiters[id]
}

func (d *Deduplicator) track(id string, delta int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.waiters[id] + delta
	if n <= 0 {
		delete(d.waiters, id)
		return
	}
	d.waiters[id] = n
}
