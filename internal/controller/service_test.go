package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/dgnsrekt/favtube/internal/cdpcontrol"
	"github.com/dgnsrekt/favtube/internal/router"
	"github.com/dgnsrekt/favtube/internal/session"
)

type fakeSession struct {
	snap    session.Snapshot
	live    bool
	err     error
	rated   int
	added   []string
	removed string
	note    string
}

func (f *fakeSession) Snapshot() (session.Snapshot, bool) { return f.snap, f.live }
func (f *fakeSession) Suggest(q string) []string {
	if q == "" {
		return nil
	}
	return []string{q + "-1"}
}
func (f *fakeSession) Rate(_ context.Context, rating int) error {
	f.rated = rating
	return f.err
}
func (f *fakeSession) AddTags(_ context.Context, input ...string) error {
	f.added = input
	return f.err
}
func (f *fakeSession) RemoveTag(_ context.Context, tag string) error {
	f.removed = tag
	return f.err
}
func (f *fakeSession) SetNote(_ context.Context, note string) error {
	f.note = note
	return f.err
}

type messengerFunc func(ctx context.Context, req router.Request) router.Response

func (f messengerFunc) Send(ctx context.Context, req router.Request) router.Response {
	return f(ctx, req)
}

type probeFunc func(ctx context.Context) error

func (f probeFunc) Health(ctx context.Context) error { return f(ctx) }

type stats struct{}

func (stats) ClientCount() int { return 2 }
func (stats) Dropped() int64   { return 7 }

type lastURL string

func (l lastURL) LastURL() string { return string(l) }

func TestSnapshotWithoutSession(t *testing.T) {
	s := NewService(Deps{Session: &fakeSession{}})
	if _, err := s.Snapshot(context.Background()); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("Snapshot() error = %v; want ErrNoSession", err)
	}
}

func TestActionsReturnCurrentSnapshot(t *testing.T) {
	fs := &fakeSession{live: true, snap: session.Snapshot{VideoID: "dQw4w9WgXcQ", Status: session.StatusRegistered}}
	s := NewService(Deps{Session: fs})
	ctx := context.Background()

	snap, err := s.Rate(ctx, 4)
	if err != nil || fs.rated != 4 || snap.VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("Rate() = %+v, %v (rated=%d)", snap, err, fs.rated)
	}
	if _, err := s.AddTags(ctx, []string{"a", "b"}); err != nil || len(fs.added) != 2 {
		t.Fatalf("AddTags() err=%v added=%v", err, fs.added)
	}
	if _, err := s.RemoveTag(ctx, "a"); err != nil || fs.removed != "a" {
		t.Fatalf("RemoveTag() err=%v removed=%q", err, fs.removed)
	}
	if _, err := s.SetNote(ctx, "hi"); err != nil || fs.note != "hi" {
		t.Fatalf("SetNote() err=%v note=%q", err, fs.note)
	}
}

func TestActionErrorPassesThrough(t *testing.T) {
	want := &session.ActionError{Message: "500 boom"}
	s := NewService(Deps{Session: &fakeSession{live: true, err: want}})
	_, err := s.Rate(context.Background(), 3)
	var got *session.ActionError
	if !errors.As(err, &got) || got.Message != "500 boom" {
		t.Fatalf("Rate() error = %v; want ActionError 500 boom", err)
	}
}

func TestSendForwardsToMessenger(t *testing.T) {
	var seen router.Request
	m := messengerFunc(func(_ context.Context, req router.Request) router.Response {
		seen = req
		return router.Response{OK: true}
	})
	s := NewService(Deps{Messenger: m, Session: &fakeSession{}})
	if resp := s.Send(context.Background(), router.Request{Type: router.TypeAddURL, URL: "https://youtu.be/dQw4w9WgXcQ"}); !resp.OK {
		t.Fatalf("Send() = %+v", resp)
	}
	if seen.Type != router.TypeAddURL {
		t.Fatalf("messenger saw %+v", seen)
	}
}

func TestSuggestNeverNil(t *testing.T) {
	s := NewService(Deps{Session: &fakeSession{}})
	if got := s.Suggest(context.Background(), ""); got == nil {
		t.Fatal("Suggest() = nil; want empty slice")
	}
}

func TestHealthReport(t *testing.T) {
	fs := &fakeSession{live: true, snap: session.Snapshot{VideoID: "dQw4w9WgXcQ", Status: session.StatusLoading}}

	ok := NewService(Deps{
		Session:  fs,
		Backend:  probeFunc(func(context.Context) error { return nil }),
		Stream:   stats{},
		Location: lastURL("https://www.youtube.com/watch?v=dQw4w9WgXcQ"),
	})
	h := ok.Health(context.Background())
	if h.Status != "ok" || h.Backend != "ok" {
		t.Fatalf("Health() = %+v", h)
	}
	if h.Session != session.StatusLoading || h.VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("Health() session fields = %+v", h)
	}
	if h.Subscribers != 2 || h.DroppedEvents != 7 || h.LastURL == "" {
		t.Fatalf("Health() stream fields = %+v", h)
	}

	bad := NewService(Deps{
		Session: &fakeSession{},
		Backend: probeFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	h = bad.Health(context.Background())
	if h.Status != "degraded" || h.Backend != "connection refused" {
		t.Fatalf("Health() = %+v; want degraded", h)
	}
}

func TestListTabsWithoutLister(t *testing.T) {
	s := NewService(Deps{Session: &fakeSession{}})
	_, err := s.ListTabs(context.Background())
	var coded *cdpcontrol.CodedError
	if !errors.As(err, &coded) || coded.Code != cdpcontrol.CodeCDPUnavailable {
		t.Fatalf("ListTabs() error = %v; want %s", err, cdpcontrol.CodeCDPUnavailable)
	}
}
