package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/favtube/internal/relay"
	"github.com/dgnsrekt/favtube/internal/router"
	"github.com/dgnsrekt/favtube/internal/tags"
	"github.com/dgnsrekt/favtube/internal/types"
)

// Messenger is the one-shot request/response channel to the router.
type Messenger interface {
	Send(ctx context.Context, req router.Request) router.Response
}

// Publisher receives session snapshots, acknowledgments and teardowns.
type Publisher interface {
	Publish(evt relay.Event)
}

// Action names used in acknowledgments.
const (
	ActionLoad      = "load"
	ActionRate      = "rate"
	ActionTagAdd    = "tag-add"
	ActionTagRemove = "tag-remove"
	ActionSetNote   = "set-note"
)

// Machine holds the one live VideoSession. Backend round trips happen
// outside the lock; each result is applied only if the session it was
// issued for is still the live one.
type Machine struct {
	messenger Messenger
	publisher Publisher
	catalog   *tags.Catalog
	now       func() time.Time
	loads     sync.WaitGroup

	mu  sync.Mutex
	gen uint64
	cur *state
}

func NewMachine(messenger Messenger, publisher Publisher, catalog *tags.Catalog) *Machine {
	if catalog == nil {
		catalog = tags.NewCatalog()
	}
	return &Machine{
		messenger: messenger,
		publisher: publisher,
		catalog:   catalog,
		now:       time.Now,
	}
}

// Snapshot returns the live session, if any.
func (m *Machine) Snapshot() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Snapshot{}, false
	}
	return m.cur.snapshot(), true
}

// Suggest proposes known tags for autocomplete.
func (m *Machine) Suggest(query string) []string {
	return m.catalog.Suggest(query)
}

// CurrentEvents is the state a freshly connected subscriber should see.
func (m *Machine) CurrentEvents() []relay.Event {
	snap, ok := m.Snapshot()
	if !ok {
		return nil
	}
	return []relay.Event{sessionEvent(snap)}
}

// Load discards the current session and starts a new one for id in Loading,
// then asks the router for the stored video. A router failure leaves the
// session Loading with the error recorded.
func (m *Machine) Load(ctx context.Context, id, pageURL string) error {
	s, snap := m.begin(id, pageURL)
	return m.fetch(ctx, s, snap)
}

// begin swaps in a fresh Loading session and publishes it.
func (m *Machine) begin(id, pageURL string) (*state, Snapshot) {
	m.mu.Lock()
	m.gen++
	s := &state{
		id:        id,
		url:       pageURL,
		status:    StatusLoading,
		gen:       m.gen,
		updatedAt: m.now(),
	}
	m.cur = s
	snap := s.snapshot()
	m.mu.Unlock()

	slog.Info("session loading", "video_id", id, "generation", snap.Generation, "url", pageURL)
	m.publish(sessionEvent(snap))
	return s, snap
}

// fetch resolves a Loading session from get-video-info.
func (m *Machine) fetch(ctx context.Context, s *state, snap Snapshot) error {
	log := slog.With("video_id", snap.VideoID, "generation", snap.Generation)
	resp := m.messenger.Send(ctx, router.Request{Type: router.TypeGetVideoInfo, ID: snap.VideoID})

	m.mu.Lock()
	if !m.isLive(snap.Generation) {
		m.mu.Unlock()
		log.Info("discarding superseded video info")
		return nil
	}
	if !resp.OK {
		s.loadErr = resp.Error
		s.updatedAt = m.now()
		snap = s.snapshot()
		m.mu.Unlock()
		log.Warn("video info failed", "error", resp.Error)
		m.publish(sessionEvent(snap))
		m.ack(snap, ActionLoad, false, "Could not load video info: "+resp.Error)
		return actionError(resp.Error)
	}

	// An action may have registered the video while the lookup was in
	// flight; its confirmed fields win and the status never drops back.
	switch v := resp.Video; {
	case v != nil:
		s.status = StatusRegistered
		if v.Title != "" {
			s.title = v.Title
		}
		if v.ThumbnailURL != "" {
			s.thumbnailURL = v.ThumbnailURL
		}
		if !s.confirmed.note {
			s.note = v.Note
		}
		if !s.confirmed.rating {
			s.rating = v.Rating
		}
		s.tags = s.confirmed.mergeTags(v.Tags, s.tags)
	case s.confirmed.any():
		log.Info("keeping fields confirmed during load")
	default:
		s.status = StatusUnregistered
		s.rating = 0
		s.tags = tags.Set{}
	}
	s.loadErr = ""
	s.updatedAt = m.now()
	m.catalog.Replace(resp.Tags)
	snap = s.snapshot()
	m.mu.Unlock()

	log.Info("session loaded", "status", snap.Status, "title", snap.Title)
	m.publish(sessionEvent(snap))
	return nil
}

// Teardown discards the live session without creating another. Results
// still in flight for it will be dropped.
func (m *Machine) Teardown() {
	m.mu.Lock()
	if m.cur == nil {
		m.mu.Unlock()
		return
	}
	old := m.cur
	m.gen++
	m.cur = nil
	m.mu.Unlock()

	slog.Info("session torn down", "video_id", old.id, "generation", old.gen)
	m.publish(relay.NewEvent(relay.KindTeardown, old.id, old.gen))
}

// Rate stores a 1..5 star rating for the live video.
func (m *Machine) Rate(ctx context.Context, rating int) error {
	if rating < 1 || rating > 5 {
		return m.reject(ActionRate, types.Invalid("rating", "rating must be between 1 and 5"))
	}
	return m.mutate(ctx, ActionRate,
		func(s *state) router.Request {
			return router.Request{Type: router.TypeRate, ID: s.id, Rating: rating, URL: registerURL(s)}
		},
		func(s *state, resp router.Response) string {
			s.rating = rating
			s.confirmed.rating = true
			if resp.Title != "" {
				s.title = resp.Title
			}
			return fmt.Sprintf("Rated %d/5", rating)
		})
}

// AddTags normalizes input and adds the resulting tags to the live video.
func (m *Machine) AddTags(ctx context.Context, input ...string) error {
	normalized := tags.Normalize(input...)
	if len(normalized) == 0 {
		return m.reject(ActionTagAdd, types.Invalid("tags", "no tags given"))
	}
	return m.mutate(ctx, ActionTagAdd,
		func(s *state) router.Request {
			return router.Request{Type: router.TypeTagAdd, ID: s.id, Tags: router.TagList(normalized), URL: registerURL(s)}
		},
		func(s *state, resp router.Response) string {
			added := resp.Tags
			if len(added) == 0 {
				added = normalized
			}
			for _, t := range added {
				s.tags.Add(t)
			}
			s.confirmed.tags = true
			s.confirmed.removed = slices.DeleteFunc(s.confirmed.removed, func(r string) bool {
				return slices.Contains(added, r)
			})
			m.catalog.Add(added...)
			return "Added tags: " + strings.Join(added, ", ")
		})
}

// RemoveTag drops one tag from the live video.
func (m *Machine) RemoveTag(ctx context.Context, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return m.reject(ActionTagRemove, types.Invalid("tag", "tag is required"))
	}
	return m.mutate(ctx, ActionTagRemove,
		func(s *state) router.Request {
			return router.Request{Type: router.TypeTagRemove, ID: s.id, Tag: tag}
		},
		func(s *state, _ router.Response) string {
			s.tags.Remove(tag)
			s.confirmed.tags = true
			if !slices.Contains(s.confirmed.removed, tag) {
				s.confirmed.removed = append(s.confirmed.removed, tag)
			}
			return "Removed tag: " + tag
		})
}

// SetNote replaces the free-text note on the live video.
func (m *Machine) SetNote(ctx context.Context, note string) error {
	return m.mutate(ctx, ActionSetNote,
		func(s *state) router.Request {
			return router.Request{Type: router.TypeSetNote, ID: s.id, Note: note}
		},
		func(s *state, _ router.Response) string {
			s.note = note
			s.confirmed.note = true
			return "Note saved"
		})
}

// mutate runs one user action: build the request from the live session,
// send it without holding the lock, then apply the response if that
// session is still live. Exactly one acknowledgment is published.
func (m *Machine) mutate(
	ctx context.Context,
	action string,
	build func(s *state) router.Request,
	apply func(s *state, resp router.Response) string,
) error {
	m.mu.Lock()
	s := m.cur
	if s == nil {
		m.mu.Unlock()
		return m.reject(action, ErrNoSession)
	}
	req := build(s)
	issued := s.snapshot()
	m.mu.Unlock()

	log := slog.With("video_id", issued.VideoID, "generation", issued.Generation, "action", action)
	resp := m.messenger.Send(ctx, req)
	if !resp.OK {
		log.Warn("session action failed", "error", resp.Error)
		m.ack(issued, action, false, failurePrefix(action)+resp.Error)
		return actionError(resp.Error)
	}

	m.mu.Lock()
	if !m.isLive(issued.Generation) {
		m.mu.Unlock()
		log.Info("discarding result for superseded session")
		m.ack(issued, action, true, "Saved for a video no longer shown")
		return nil
	}
	msg := apply(s, resp)
	s.status = StatusRegistered
	s.updatedAt = m.now()
	snap := s.snapshot()
	m.mu.Unlock()

	log.Info("session action applied")
	m.publish(sessionEvent(snap))
	m.ack(snap, action, true, msg)
	return nil
}

// reject acknowledges an action refused before any round trip.
func (m *Machine) reject(action string, err error) error {
	snap, _ := m.Snapshot()
	m.ack(snap, action, false, failurePrefix(action)+err.Error())
	return err
}

func (m *Machine) isLive(gen uint64) bool {
	return m.cur != nil && m.cur.gen == gen
}

func (m *Machine) ack(snap Snapshot, action string, ok bool, msg string) {
	evt := relay.NewEvent(relay.KindAck, snap.VideoID, snap.Generation)
	evt.Ack = &relay.Ack{Action: action, OK: ok, Message: msg}
	m.publish(evt)
}

func (m *Machine) publish(evt relay.Event) {
	if m.publisher != nil {
		m.publisher.Publish(evt)
	}
}

func sessionEvent(snap Snapshot) relay.Event {
	evt := relay.NewEvent(relay.KindSession, snap.VideoID, snap.Generation)
	evt.Session = snap
	return evt
}

// registerURL is the page URL to register by, set only while the backend
// is not yet known to have the video.
func registerURL(s *state) string {
	if s.status == StatusRegistered {
		return ""
	}
	return s.url
}

func failurePrefix(action string) string {
	switch action {
	case ActionRate:
		return "Rating failed: "
	case ActionTagAdd:
		return "Adding tags failed: "
	case ActionTagRemove:
		return "Removing tag failed: "
	case ActionSetNote:
		return "Saving note failed: "
	default:
		return "Failed: "
	}
}

// ActionError carries the router's failure text for a session action,
// passed through unchanged (for backend failures "<status> <body>").
type ActionError struct {
	Message string
}

func (e *ActionError) Error() string { return e.Message }

func actionError(msg string) error {
	return &ActionError{Message: msg}
}
