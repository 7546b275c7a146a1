// Package router dispatches typed request messages from the rendering side
// to the backend and always answers with an {ok, ...} response.
package router

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message types understood by the router.
const (
	TypeAddURL       = "add-url"
	TypeGetVideoInfo = "get-video-info"
	TypeRate         = "rate"
	TypeTagAdd       = "tag-add"
	TypeTagRemove    = "tag-remove"
	TypeSetNote      = "set-note"
)

// ErrUnknownType is the error text returned for an unrecognized type.
const ErrUnknownType = "unknown message type"

// TagList accepts either a JSON string or an array of strings.
type TagList []string

func (l *TagList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*l = nil
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = TagList{s}
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("tags must be a string or an array of strings")
	}
	*l = arr
	return nil
}

// Request is one inbound message. Only the fields relevant to Type are read.
type Request struct {
	Type   string  `json:"type"`
	ID     string  `json:"id,omitempty"`
	URL    string  `json:"url,omitempty"`
	Rating int     `json:"rating,omitempty"`
	Tags   TagList `json:"tags,omitempty"`
	Tag    string  `json:"tag,omitempty"`
	Note   string  `json:"note,omitempty"`
}

// VideoInfo is the get-video-info view of a stored video.
type VideoInfo struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	Rating       int      `json:"rating"`
	Note         string   `json:"note,omitempty"`
	Tags         []string `json:"tags"`
}

// Response is the router's reply. Which optional fields are emitted depends
// on the request type; get-video-info always carries video (possibly null)
// and tags, tag-add always carries tags.
type Response struct {
	OK    bool       `json:"ok"`
	Error string     `json:"error,omitempty"`
	Title string     `json:"title,omitempty"`
	Video *VideoInfo `json:"video"`
	Tags  []string   `json:"tags"`

	kind string
}

func (r Response) MarshalJSON() ([]byte, error) {
	out := map[string]any{"ok": r.OK}
	if !r.OK {
		out["error"] = r.Error
		return json.Marshal(out)
	}
	if r.Title != "" {
		out["title"] = r.Title
	}
	switch r.kind {
	case TypeGetVideoInfo:
		out["video"] = r.Video
		out["tags"] = nonNil(r.Tags)
	case TypeTagAdd:
		out["tags"] = nonNil(r.Tags)
	}
	return json.Marshal(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func failure(err error) Response {
	return Response{OK: false, Error: err.Error()}
}

func failureText(msg string) Response {
	return Response{OK: false, Error: msg}
}
