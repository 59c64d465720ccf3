package codex

import "strings"

// StreamParseCache maps an item id to the longest text seen for it so far.
// It belongs to a single process's stdout reader and is not synchronized.
type StreamParseCache struct {
	items map[string]string
}

// NewStreamParseCache creates an empty cache
func NewStreamParseCache() *StreamParseCache {
	return &StreamParseCache{items: make(map[string]string)}
}

// Delta returns the text to append to what was already emitted for itemID.
// When fullText does not extend the cached text the item was rewritten, and
// the whole of fullText is returned. A terminal update drops the entry.
// Empty ids or text produce no delta; a terminal update still drops the entry.
func (c *StreamParseCache) Delta(itemID, fullText string, terminal bool) string {
	if itemID == "" {
		return ""
	}
	if fullText == "" {
		if terminal {
			delete(c.items, itemID)
		}
		return ""
	}

	previous := c.items[itemID]
	delta := fullText
	if strings.HasPrefix(fullText, previous) {
		delta = fullText[len(previous):]
	}

	if terminal {
		delete(c.items, itemID)
	} else {
		c.items[itemID] = fullText
	}
	return delta
}

// Len returns the number of in-flight items
func (c *StreamParseCache) Len() int {
	return len(c.items)
}

// Has reports whether itemID has cached text
func (c *StreamParseCache) Has(itemID string) bool {
	_, ok := c.items[itemID]
	return ok
}
