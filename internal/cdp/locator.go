// Package cdp provides a chromedp-driven location source, an alternative to
// the raw client in cdpcontrol for browsers that tolerate chromedp's
// session setup.
package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// Locator reads location.href from one attached tab through chromedp.
type Locator struct {
	cdpURL      string
	tabFilter   string
	evalTimeout time.Duration

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	targetID    target.ID
}

func NewLocator(cdpURL, tabFilter string, evalTimeout time.Duration) *Locator {
	if evalTimeout <= 0 {
		evalTimeout = 5 * time.Second
	}
	return &Locator{
		cdpURL:      cdpURL,
		tabFilter:   strings.ToLower(strings.TrimSpace(tabFilter)),
		evalTimeout: evalTimeout,
	}
}

// Connect opens the remote allocator and attaches to the first matching tab.
func (l *Locator) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attachLocked(ctx)
}

func (l *Locator) attachLocked(ctx context.Context) error {
	_ = ctx
	if l.allocCtx == nil {
		slog.Info("Connecting to Chromium", "url", l.cdpURL)
		l.allocCtx, l.allocCancel = chromedp.NewRemoteAllocator(context.Background(), l.cdpURL)
	}

	tempCtx, tempCancel := chromedp.NewContext(l.allocCtx)
	defer tempCancel()
	if err := chromedp.Run(tempCtx); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		return fmt.Errorf("failed to enumerate targets: %w", err)
	}

	id, ok := selectTarget(targets, l.tabFilter)
	if !ok {
		return fmt.Errorf("no tabs found matching COORDINATOR_TAB_URL_FILTER=%q", l.tabFilter)
	}

	tabCtx, tabCancel := chromedp.NewContext(l.allocCtx, chromedp.WithTargetID(id))
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return fmt.Errorf("failed to attach to tab %s: %w", id, err)
	}
	l.tabCtx, l.tabCancel, l.targetID = tabCtx, tabCancel, id
	slog.Info("Attached to tab", "target_id", id)
	return nil
}

// Location implements the watcher's location source. A failed read drops
// the tab so the next call attaches afresh.
func (l *Locator) Location(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tabCtx == nil {
		if err := l.attachLocked(ctx); err != nil {
			return "", err
		}
	}

	runCtx, cancel := context.WithTimeout(l.tabCtx, l.evalTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var href string
	if err := chromedp.Run(runCtx, chromedp.Location(&href)); err != nil {
		slog.Warn("chromedp location failed", "target_id", l.targetID, "error", err)
		l.detachLocked()
		return "", err
	}
	return href, nil
}

func (l *Locator) detachLocked() {
	if l.tabCancel != nil {
		l.tabCancel()
	}
	l.tabCtx, l.tabCancel, l.targetID = nil, nil, ""
}

func (l *Locator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.detachLocked()
	if l.allocCancel != nil {
		l.allocCancel()
	}
	l.allocCtx, l.allocCancel = nil, nil
	return nil
}

// selectTarget returns the first page target whose URL contains filter.
func selectTarget(targets []*target.Info, filter string) (target.ID, bool) {
	for _, t := range targets {
		if t == nil || t.Type != "page" {
			continue
		}
		if filter == "" || strings.Contains(strings.ToLower(t.URL), filter) {
			return t.TargetID, true
		}
	}
	return "", false
}
