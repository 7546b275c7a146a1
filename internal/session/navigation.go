package session

import (
	"context"
	"log/slog"
)

// Navigate starts a session for the video now shown. The reset happens
// before Navigate returns so navigations apply in the order observed; the
// backend lookup continues in the background. Any URL change that still
// yields an id reloads, even for the same video.
func (m *Machine) Navigate(ctx context.Context, pageURL, id string) {
	s, snap := m.begin(id, pageURL)
	m.loads.Add(1)
	go func() {
		defer m.loads.Done()
		if err := m.fetch(ctx, s, snap); err != nil {
			slog.Warn("session load failed", "video_id", id, "error", err)
		}
	}()
}

// Leave tears the session down when the page no longer shows a video.
func (m *Machine) Leave(_ context.Context, pageURL string) {
	slog.Debug("left video page", "url", pageURL)
	m.Teardown()
}

// Wait blocks until background loads started by Navigate have finished.
func (m *Machine) Wait() {
	m.loads.Wait()
}
