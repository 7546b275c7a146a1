// Package watcher polls the watched tab's location and reports navigation.
package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/favtube/internal/videoid"
)

// DefaultInterval matches how often a single-page app can change its URL
// without a reload event we could hook.
const DefaultInterval = 800 * time.Millisecond

// LocationSource reads the current page URL.
type LocationSource interface {
	Location(ctx context.Context) (string, error)
}

// Handler reacts to URL changes. Navigate is called when the new URL names
// a video, Leave when it does not. Both are called from the polling
// goroutine in observation order and must not block on backend I/O.
type Handler interface {
	Navigate(ctx context.Context, pageURL, id string)
	Leave(ctx context.Context, pageURL string)
}

type Watcher struct {
	source   LocationSource
	handler  Handler
	interval time.Duration

	mu     sync.Mutex
	last   string
	seen   bool
	cancel context.CancelFunc
	done   chan struct{}
}

func New(source LocationSource, handler Handler, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{source: source, handler: handler, interval: interval}
}

// Run polls until ctx is cancelled. The first observation is handled like
// any other change.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.Info("navigation watcher started", "interval_ms", w.interval.Milliseconds())
	w.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("navigation watcher stopped")
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll performs one observation. A read failure is logged and leaves the
// last URL untouched so the next tick retries.
func (w *Watcher) Poll(ctx context.Context) {
	href, err := w.source.Location(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("location read failed", "error", err)
		}
		return
	}

	w.mu.Lock()
	if w.seen && href == w.last {
		w.mu.Unlock()
		return
	}
	w.last = href
	w.seen = true
	w.mu.Unlock()

	if id, ok := videoid.Extract(href); ok {
		slog.Debug("navigated to video", "url", href, "video_id", id)
		w.handler.Navigate(ctx, href, id)
		return
	}
	slog.Debug("navigated away from video", "url", href)
	w.handler.Leave(ctx, href)
}

// LastURL returns the most recently observed location.
func (w *Watcher) LastURL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Start runs the loop in the background until Stop.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		w.Run(ctx)
	}(w.done)
}

// Stop cancels a loop started with Start and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
