// Package notify forwards user-action acknowledgments to an ntfy topic.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgnsrekt/favtube/internal/relay"
)

const sendTimeout = 5 * time.Second

// Send posts message as plain text to endpoint.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	return send(ctx, client, endpoint, "", message)
}

func send(ctx context.Context, client *http.Client, endpoint, title, message string) error {
	if strings.TrimSpace(endpoint) == "" {
		return errors.New("ntfy endpoint is required")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	if title != "" {
		req.Header.Set("Title", title)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}

// Notifier relays ack events from a broker to ntfy.
type Notifier struct {
	endpoint string
	client   *http.Client
}

func NewNotifier(endpoint string, client *http.Client) *Notifier {
	return &Notifier{endpoint: endpoint, client: client}
}

// Notify sends one acknowledgment. Failed actions are titled so they stand
// out on the phone.
func (n *Notifier) Notify(ctx context.Context, evt relay.Event) error {
	if evt.Ack == nil {
		return nil
	}
	title := "FavTube"
	if !evt.Ack.OK {
		title = "FavTube: action failed"
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return send(ctx, n.client, n.endpoint, title, evt.Ack.Message)
}

// Run forwards acks until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context, broker *relay.Broker) {
	id, ch := broker.Subscribe()
	defer broker.Unsubscribe(id)

	slog.Info("ntfy notifier started", "endpoint", n.endpoint)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Kind != relay.KindAck {
				continue
			}
			if err := n.Notify(ctx, evt); err != nil {
				slog.Warn("ntfy notification failed", "video_id", evt.VideoID, "error", err)
			}
		}
	}
}
