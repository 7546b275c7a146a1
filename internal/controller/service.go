// Package controller is the coordinator facade the HTTP API talks to. It
// joins the message router, the live session and the health probes.
package controller

import (
	"context"
	"time"

	"github.com/dgnsrekt/favtube/internal/cdpcontrol"
	"github.com/dgnsrekt/favtube/internal/router"
	"github.com/dgnsrekt/favtube/internal/session"
)

// Messenger answers raw router messages.
type Messenger interface {
	Send(ctx context.Context, req router.Request) router.Response
}

// Session is the live-session surface exposed over HTTP.
type Session interface {
	Snapshot() (session.Snapshot, bool)
	Suggest(query string) []string
	Rate(ctx context.Context, rating int) error
	AddTags(ctx context.Context, input ...string) error
	RemoveTag(ctx context.Context, tag string) error
	SetNote(ctx context.Context, note string) error
}

// BackendProbe checks the backend's liveness.
type BackendProbe interface {
	Health(ctx context.Context) error
}

// StreamStats reports event fan-out counters.
type StreamStats interface {
	ClientCount() int
	Dropped() int64
}

// LocationTracker reports the last URL observed in the watched tab.
type LocationTracker interface {
	LastURL() string
}

// TabLister lists browser tabs for diagnostics.
type TabLister interface {
	ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error)
}

// Health is the coordinator health report.
type Health struct {
	Status        string         `json:"status"`
	Backend       string         `json:"backend"`
	Session       session.Status `json:"session,omitempty"`
	VideoID       string         `json:"video_id,omitempty"`
	LastURL       string         `json:"last_url,omitempty"`
	Subscribers   int            `json:"subscribers"`
	DroppedEvents int64          `json:"dropped_events"`
	CheckedAt     time.Time      `json:"checked_at"`
}

// Deps are the collaborators of a Service. Messenger and Session are
// required; the rest may be nil.
type Deps struct {
	Messenger Messenger
	Session   Session
	Backend   BackendProbe
	Stream    StreamStats
	Location  LocationTracker
	Tabs      TabLister
}

// Service wraps coordinator operations for the HTTP API.
type Service struct {
	messenger Messenger
	session   Session
	backend   BackendProbe
	stream    StreamStats
	location  LocationTracker
	tabs      TabLister
}

func NewService(d Deps) *Service {
	return &Service{
		messenger: d.Messenger,
		session:   d.Session,
		backend:   d.Backend,
		stream:    d.Stream,
		location:  d.Location,
		tabs:      d.Tabs,
	}
}

// Send forwards a raw message to the router.
func (s *Service) Send(ctx context.Context, req router.Request) router.Response {
	return s.messenger.Send(ctx, req)
}

// Snapshot returns the live session or session.ErrNoSession.
func (s *Service) Snapshot(ctx context.Context) (session.Snapshot, error) {
	snap, ok := s.session.Snapshot()
	if !ok {
		return session.Snapshot{}, session.ErrNoSession
	}
	return snap, nil
}

func (s *Service) Rate(ctx context.Context, rating int) (session.Snapshot, error) {
	return s.after(s.session.Rate(ctx, rating))
}

func (s *Service) AddTags(ctx context.Context, input []string) (session.Snapshot, error) {
	return s.after(s.session.AddTags(ctx, input...))
}

func (s *Service) RemoveTag(ctx context.Context, tag string) (session.Snapshot, error) {
	return s.after(s.session.RemoveTag(ctx, tag))
}

func (s *Service) SetNote(ctx context.Context, note string) (session.Snapshot, error) {
	return s.after(s.session.SetNote(ctx, note))
}

// after reports the session as it stands once an action has finished. The
// live session may already belong to a newer navigation.
func (s *Service) after(err error) (session.Snapshot, error) {
	if err != nil {
		return session.Snapshot{}, err
	}
	return s.Snapshot(context.Background())
}

// Suggest proposes known tags starting with or containing query.
func (s *Service) Suggest(ctx context.Context, query string) []string {
	out := s.session.Suggest(query)
	if out == nil {
		return []string{}
	}
	return out
}

// Health probes the backend and summarizes local state. A backend failure
// degrades the report; it is not an error.
func (s *Service) Health(ctx context.Context) Health {
	h := Health{Status: "ok", Backend: "ok", CheckedAt: time.Now().UTC()}
	if s.backend != nil {
		if err := s.backend.Health(ctx); err != nil {
			h.Status = "degraded"
			h.Backend = err.Error()
		}
	} else {
		h.Backend = "unchecked"
	}
	if snap, ok := s.session.Snapshot(); ok {
		h.Session = snap.Status
		h.VideoID = snap.VideoID
	}
	if s.location != nil {
		h.LastURL = s.location.LastURL()
	}
	if s.stream != nil {
		h.Subscribers = s.stream.ClientCount()
		h.DroppedEvents = s.stream.Dropped()
	}
	return h
}

// ListTabs lists the browser's page targets and marks the watched one.
func (s *Service) ListTabs(ctx context.Context) ([]cdpcontrol.TabInfo, error) {
	if s.tabs == nil {
		return nil, &cdpcontrol.CodedError{Code: cdpcontrol.CodeCDPUnavailable, Message: "tab listing is not available with this CDP driver"}
	}
	return s.tabs.ListTabs(ctx)
}
