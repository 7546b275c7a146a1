// Package tags normalizes free-text tag input and tracks tag collections.
package tags

import (
	"slices"
	"strings"
)

// separators are the comma-class runes accepted between tags: ASCII comma,
// ideographic comma, fullwidth comma, halfwidth ideographic comma and the
// small comma forms.
const separators = ",、，､﹐﹑"

func isSeparator(r rune) bool {
	return strings.ContainsRune(separators, r)
}

// Normalize splits every input on comma-class separators, trims whitespace,
// drops empty entries and collapses exact duplicates keeping first-seen order.
func Normalize(inputs ...string) []string {
	out := make([]string, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		for _, part := range strings.FieldsFunc(in, isSeparator) {
			tag := strings.TrimSpace(part)
			if tag == "" {
				continue
			}
			if _, dup := seen[tag]; dup {
				continue
			}
			seen[tag] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}

// Set is an insertion-ordered, case-sensitive set of tags. The zero value is
// ready to use. Set is not safe for concurrent use.
type Set struct {
	items []string
}

// NewSet builds a Set from tags, ignoring blanks and duplicates.
func NewSet(tags []string) Set {
	var s Set
	for _, t := range tags {
		s.Add(t)
	}
	return s
}

// Add inserts tag and reports whether the set changed.
func (s *Set) Add(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || s.Has(tag) {
		return false
	}
	s.items = append(s.items, tag)
	return true
}

// Remove deletes tag and reports whether it was present.
func (s *Set) Remove(tag string) bool {
	i := slices.Index(s.items, tag)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true
}

func (s *Set) Has(tag string) bool {
	return slices.Contains(s.items, tag)
}

func (s *Set) Len() int { return len(s.items) }

// Slice returns a copy of the tags in insertion order; never nil.
func (s *Set) Slice() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}
