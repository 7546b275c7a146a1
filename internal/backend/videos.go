package backend

import (
	"context"
	"net/http"
	"net/url"
)

// Video is the backend's record of one video.
type Video struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	ThumbnailURL string   `json:"thumbnail_url,omitempty"`
	Rating       int      `json:"rating"`
	Note         string   `json:"note,omitempty"`
	Tags         []string `json:"tags"`
	CreatedAt    string   `json:"created_at,omitempty"`
	UpdatedAt    string   `json:"updated_at,omitempty"`
}

// Registration is what a register call tells us about the stored row.
type Registration struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

// RatingResult is the response to a rating mutation; Title is optional.
type RatingResult struct {
	OK    bool   `json:"ok"`
	Title string `json:"title,omitempty"`
}

type okResult struct {
	OK bool `json:"ok"`
}

func videoPath(id string, rest ...string) string {
	p := "/videos/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

// RegisterByID creates (or refreshes) the row for id.
func (c *Client) RegisterByID(ctx context.Context, id string) (Registration, error) {
	var out Registration
	err := c.Call(ctx, "/videos", CallOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"id": id},
	}, &out)
	if err != nil {
		return Registration{}, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return out, nil
}

// RegisterByURL lets the backend resolve the page URL and its metadata.
// It is idempotent for already registered videos.
func (c *Client) RegisterByURL(ctx context.Context, pageURL string) (Registration, error) {
	var out Registration
	err := c.Call(ctx, "/videos/add-url", CallOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"url": pageURL},
	}, &out)
	if err != nil {
		return Registration{}, err
	}
	return out, nil
}

// GetVideo fetches the stored record. Absence surfaces as a *StatusError.
func (c *Client) GetVideo(ctx context.Context, id string) (Video, error) {
	var out Video
	if err := c.Call(ctx, videoPath(id), CallOptions{}, &out); err != nil {
		return Video{}, err
	}
	if out.ID == "" {
		out.ID = id
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return out, nil
}

func (c *Client) SetRating(ctx context.Context, id string, rating int) (RatingResult, error) {
	var out RatingResult
	err := c.Call(ctx, videoPath(id, "rating"), CallOptions{
		Method: http.MethodPost,
		Body:   map[string]int{"rating": rating},
	}, &out)
	return out, err
}

// AddTags appends tags to the video; the backend ignores known ones.
func (c *Client) AddTags(ctx context.Context, id string, tags []string) error {
	var out okResult
	return c.Call(ctx, videoPath(id, "tags"), CallOptions{
		Method: http.MethodPost,
		Body:   map[string][]string{"tags": tags},
	}, &out)
}

func (c *Client) RemoveTag(ctx context.Context, id, tag string) error {
	var out okResult
	return c.Call(ctx, videoPath(id, "tags", tag), CallOptions{Method: http.MethodDelete}, &out)
}

func (c *Client) SetNote(ctx context.Context, id, note string) error {
	var out okResult
	return c.Call(ctx, videoPath(id, "note"), CallOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"note": note},
	}, &out)
}

// AllTags returns the global tag catalog; never nil.
func (c *Client) AllTags(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.Call(ctx, "/tags/all", CallOptions{}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// Health checks the backend's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	return c.Call(ctx, "/healthz", CallOptions{}, &out)
}
