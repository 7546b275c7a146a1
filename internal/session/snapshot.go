// Package session owns the single live video session: its lifecycle from
// navigation to registration and every user mutation applied to it.
package session

import (
	"errors"
	"slices"
	"time"

	"github.com/dgnsrekt/favtube/internal/tags"
)

// Status is the registration state of the live session.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusLoading      Status = "loading"
	StatusRegistered   Status = "registered"
	StatusUnregistered Status = "unregistered"
)

// ErrNoSession is returned for actions issued while no video is active.
var ErrNoSession = errors.New("no active video session")

// Snapshot is a read-only copy of the live session.
type Snapshot struct {
	VideoID      string    `json:"video_id"`
	URL          string    `json:"url"`
	Status       Status    `json:"status"`
	Title        string    `json:"title,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Note         string    `json:"note,omitempty"`
	Rating       int       `json:"rating"`
	Tags         []string  `json:"tags"`
	Generation   uint64    `json:"generation"`
	LoadError    string    `json:"load_error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type state struct {
	id           string
	url          string
	status       Status
	title        string
	thumbnailURL string
	note         string
	rating       int
	tags         tags.Set
	gen          uint64
	loadErr      string
	updatedAt    time.Time

	// confirmed holds what successful actions wrote after the session
	// began. A get-video-info reply landing later merges around it.
	confirmed confirmed
}

type confirmed struct {
	rating  bool
	note    bool
	tags    bool
	removed []string
}

func (c confirmed) any() bool {
	return c.rating || c.note || c.tags
}

// mergeTags combines a stored tag list with the tags confirmed locally:
// stored tags minus confirmed removals, then local tags in their order.
func (c confirmed) mergeTags(stored []string, local tags.Set) tags.Set {
	if !c.tags {
		return tags.NewSet(stored)
	}
	var out tags.Set
	for _, t := range stored {
		if !slices.Contains(c.removed, t) {
			out.Add(t)
		}
	}
	for _, t := range local.Slice() {
		out.Add(t)
	}
	return out
}

func (s *state) snapshot() Snapshot {
	return Snapshot{
		VideoID:      s.id,
		URL:          s.url,
		Status:       s.status,
		Title:        s.title,
		ThumbnailURL: s.thumbnailURL,
		Note:         s.note,
		Rating:       s.rating,
		Tags:         s.tags.Slice(),
		Generation:   s.gen,
		LoadError:    s.loadErr,
		UpdatedAt:    s.updatedAt,
	}
}
