package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dgnsrekt/favtube/internal/backend"
	"github.com/dgnsrekt/favtube/internal/registration"
	"github.com/dgnsrekt/favtube/internal/tags"
	"github.com/dgnsrekt/favtube/internal/types"
	"github.com/dgnsrekt/favtube/internal/videoid"
)

// Backend is the subset of the backend client the router drives.
type Backend interface {
	RegisterByID(ctx context.Context, id string) (backend.Registration, error)
	RegisterByURL(ctx context.Context, pageURL string) (backend.Registration, error)
	GetVideo(ctx context.Context, id string) (backend.Video, error)
	SetRating(ctx context.Context, id string, rating int) (backend.RatingResult, error)
	AddTags(ctx context.Context, id string, tags []string) error
	RemoveTag(ctx context.Context, id, tag string) error
	SetNote(ctx context.Context, id, note string) error
	AllTags(ctx context.Context) ([]string, error)
}

// Router turns request messages into backend calls. It never returns a Go
// error: every failure becomes a Response with OK false.
type Router struct {
	backend Backend
	dedup   *registration.Deduplicator
}

func New(b Backend, dedup *registration.Deduplicator) *Router {
	if dedup == nil {
		dedup = registration.New()
	}
	return &Router{backend: b, dedup: dedup}
}

// Send satisfies the session's one-shot messenger.
func (r *Router) Send(ctx context.Context, req Request) Response {
	return r.Handle(ctx, req)
}

// Handle dispatches req by type. Panics in a handler are recovered and
// reported as failures.
func (r *Router) Handle(ctx context.Context, req Request) (resp Response) {
	reqID := uuid.NewString()
	log := slog.With("request_id", reqID, "type", req.Type, "video_id", req.ID)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("router handler panicked", "panic", rec)
			resp = failureText(fmt.Sprintf("internal error: %v", rec))
		}
	}()

	switch req.Type {
	case TypeAddURL:
		resp = r.addURL(ctx, req)
	case TypeGetVideoInfo:
		resp = r.getVideoInfo(ctx, req)
	case TypeRate:
		resp = r.rate(ctx, req)
	case TypeTagAdd:
		resp = r.tagAdd(ctx, req)
	case TypeTagRemove:
		resp = r.tagRemove(ctx, req)
	case TypeSetNote:
		resp = r.setNote(ctx, req)
	default:
		log.Warn("unknown message type")
		return failureText(ErrUnknownType)
	}
	resp.kind = req.Type

	if resp.OK {
		log.Debug("message handled")
	} else {
		log.Warn("message failed", "error", resp.Error)
	}
	return resp
}

func (r *Router) addURL(ctx context.Context, req Request) Response {
	id, ok := videoid.Extract(req.URL)
	if !ok {
		return failure(types.Invalid("url", "url does not contain a video id"))
	}
	reg, err := r.dedup.Ensure(ctx, id, func(ctx context.Context) (registration.Result, error) {
		return r.registerByURL(ctx, req.URL)
	})
	if err != nil {
		return failure(err)
	}
	return Response{OK: true, Title: reg.Title}
}

func (r *Router) getVideoInfo(ctx context.Context, req Request) Response {
	if err := validateID(req.ID); err != nil {
		return failure(err)
	}

	var info *VideoInfo
	v, err := r.backend.GetVideo(ctx, req.ID)
	switch {
	case err == nil:
		info = &VideoInfo{
			ID:           v.ID,
			Title:        v.Title,
			ThumbnailURL: v.ThumbnailURL,
			Rating:       v.Rating,
			Note:         v.Note,
			Tags:         nonNil(v.Tags),
		}
	case isStatusError(err):
		// Any non-2xx means "not stored yet" from the rendering side's view.
		slog.Debug("video not registered", "video_id", req.ID, "error", err)
	default:
		return failure(err)
	}

	all, err := r.backend.AllTags(ctx)
	if err != nil {
		slog.Warn("tag catalog unavailable", "error", err)
		all = []string{}
	}
	return Response{OK: true, Video: info, Tags: all}
}

func (r *Router) rate(ctx context.Context, req Request) Response {
	if err := validateID(req.ID); err != nil {
		return failure(err)
	}
	if req.Rating < 1 || req.Rating > 5 {
		return failure(types.Invalid("rating", "rating must be between 1 and 5"))
	}
	reg, err := r.ensure(ctx, req)
	if err != nil {
		return failure(err)
	}
	res, err := r.backend.SetRating(ctx, req.ID, req.Rating)
	if err != nil {
		return failure(err)
	}
	title := res.Title
	if title == "" {
		title = reg.Title
	}
	return Response{OK: true, Title: title}
}

func (r *Router) tagAdd(ctx context.Context, req Request) Response {
	if err := validateID(req.ID); err != nil {
		return failure(err)
	}
	normalized := tags.Normalize(req.Tags...)
	if len(normalized) == 0 {
		return failure(types.Invalid("tags", "no tags given"))
	}
	if _, err := r.ensure(ctx, req); err != nil {
		return failure(err)
	}
	if err := r.backend.AddTags(ctx, req.ID, normalized); err != nil {
		return failure(err)
	}
	return Response{OK: true, Tags: normalized}
}

func (r *Router) tagRemove(ctx context.Context, req Request) Response {
	if err := validateID(req.ID); err != nil {
		return failure(err)
	}
	tag := strings.TrimSpace(req.Tag)
	if tag == "" {
		return failure(types.Invalid("tag", "tag is required"))
	}
	if _, err := r.ensure(ctx, Request{ID: req.ID}); err != nil {
		return failure(err)
	}
	if err := r.backend.RemoveTag(ctx, req.ID, tag); err != nil {
		return failure(err)
	}
	return Response{OK: true}
}

func (r *Router) setNote(ctx context.Context, req Request) Response {
	if err := validateID(req.ID); err != nil {
		return failure(err)
	}
	if _, err := r.ensure(ctx, Request{ID: req.ID}); err != nil {
		return failure(err)
	}
	if err := r.backend.SetNote(ctx, req.ID, req.Note); err != nil {
		return failure(err)
	}
	return Response{OK: true}
}

// ensure registers the video before a mutation, by page URL when the
// request carries one and by id otherwise. Concurrent ensures for the same
// id share one backend call.
func (r *Router) ensure(ctx context.Context, req Request) (registration.Result, error) {
	pageURL := strings.TrimSpace(req.URL)
	if pageURL != "" {
		id, ok := videoid.Extract(pageURL)
		if !ok {
			return registration.Result{}, types.Invalid("url", "url does not contain a video id")
		}
		if id != req.ID {
			return registration.Result{}, types.Invalid("url", "url is for video %s, not %s", id, req.ID)
		}
	}
	return r.dedup.Ensure(ctx, req.ID, func(ctx context.Context) (registration.Result, error) {
		if pageURL != "" {
			return r.registerByURL(ctx, pageURL)
		}
		reg, err := r.backend.RegisterByID(ctx, req.ID)
		if err != nil {
			return registration.Result{}, err
		}
		return registration.Result{ID: reg.ID, Title: reg.Title}, nil
	})
}

func (r *Router) registerByURL(ctx context.Context, pageURL string) (registration.Result, error) {
	reg, err := r.backend.RegisterByURL(ctx, pageURL)
	if err != nil {
		return registration.Result{}, err
	}
	return registration.Result{ID: reg.ID, Title: reg.Title}, nil
}

func validateID(id string) error {
	if !videoid.Valid(id) {
		return types.Invalid("id", "invalid video id %q", id)
	}
	return nil
}

func isStatusError(err error) bool {
	var se *backend.StatusError
	return errors.As(err, &se)
}
