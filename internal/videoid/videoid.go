// Package videoid derives the canonical video identifier from a watch-page URL.
package videoid

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	// ShortLinkHost serves ids directly as the URL path, e.g. https://youtu.be/<id>.
	ShortLinkHost = "youtu.be"
	shortsPrefix  = "/shorts/"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Valid reports whether id has the 11-character identifier shape.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

// Extract returns the video identifier embedded in rawURL. It never panics and
// returns false for unparsable URLs, unsupported shapes and malformed ids.
func Extract(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}

	// Path ids are matched in their escaped form; a percent-encoded id is
	// not an id.
	path := u.EscapedPath()
	var candidate string
	switch {
	case strings.EqualFold(u.Hostname(), ShortLinkHost):
		candidate = strings.TrimPrefix(path, "/")
	case strings.HasPrefix(path, shortsPrefix):
		// "/shorts/<id>" splits into ["", "shorts", "<id>", ...].
		segments := strings.Split(path, "/")
		if len(segments) > 2 {
			candidate = segments[2]
		}
	default:
		candidate = u.Query().Get("v")
	}

	if !Valid(candidate) {
		return "", false
	}
	return candidate, true
}
