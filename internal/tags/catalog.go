package tags

import (
	"strings"
	"sync"
)

// MaxSuggestions bounds the autocomplete list.
const MaxSuggestions = 8

// Catalog is the global list of known tags used for autocomplete. It is a
// hint only; the backend remains authoritative.
type Catalog struct {
	mu  sync.RWMutex
	set Set
}

func NewCatalog() *Catalog {
	return &Catalog{}
}

// Replace swaps the whole catalog, typically after a session load.
func (c *Catalog) Replace(tags []string) {
	next := NewSet(tags)
	c.mu.Lock()
	c.set = next
	c.mu.Unlock()
}

// Add appends tags that are not yet known.
func (c *Catalog) Add(tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tags {
		c.set.Add(t)
	}
}

func (c *Catalog) All() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set.Slice()
}

// Suggest returns up to MaxSuggestions known tags containing query,
// compared case-insensitively. An empty query yields no suggestions.
func (c *Catalog) Suggest(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []string{}
	if q == "" {
		return out
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.set.items {
		if !strings.Contains(strings.ToLower(t), q) {
			continue
		}
		out = append(out, t)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}
