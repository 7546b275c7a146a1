package relay

import (
	"time"

	"github.com/google/uuid"
)

// Event kinds published by the coordinator.
const (
	KindSession  = "session"
	KindAck      = "ack"
	KindTeardown = "teardown"
)

// Ack is a transient acknowledgment of one user action.
type Ack struct {
	Action  string `json:"action"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Event is one relay message. Session carries the snapshot for session
// events; Ack is set for ack events.
type Event struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	VideoID    string    `json:"video_id,omitempty"`
	Generation uint64    `json:"generation"`
	Time       time.Time `json:"time"`
	Session    any       `json:"session,omitempty"`
	Ack        *Ack      `json:"ack,omitempty"`
}

// NewEvent stamps a fresh id and the current time.
func NewEvent(kind, videoID string, generation uint64) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		VideoID:    videoID,
		Generation: generation,
		Time:       time.Now().UTC(),
	}
}
