package codex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreamParseCache_MonotonicDeltasConcatenate(t *testing.T) {
	c := NewStreamParseCache()

	var got []string
	for _, text := range []string{"Hel", "Hello", "Hello world"} {
		got = append(got, c.Delta("a", text, false))
	}

	assert.Equal(t, []string{"Hel", "lo", " world"}, got)
	assert.Equal(t, "Hello world", strings.Join(got, ""))
}

func TestStreamParseCache_RewriteResendsFullText(t *testing.T) {
	c := NewStreamParseCache()

	assert.Equal(t, "Hello", c.Delta("a", "Hello", false))
	assert.Equal(t, "Goodbye", c.Delta("a", "Goodbye", false))
}

func TestStreamParseCache_TerminalRemovesEntry(t *testing.T) {
	c := NewStreamParseCache()

	c.Delta("a", "Hello", false)
	assert.Equal(t, " there", c.Delta("a", "Hello there", true))
	assert.False(t, c.Has("a"))
	assert.Equal(t, 0, c.Len())

	// A later update for the same id starts from scratch.
	assert.Equal(t, "Hello there", c.Delta("a", "Hello there", false))
}

func TestStreamParseCache_EmptyTerminalRemovesEntry(t *testing.T) {
	c := NewStreamParseCache()

	c.Delta("a", "Hel", false)
	assert.Empty(t, c.Delta("a", "", true))
	assert.False(t, c.Has("a"))

	assert.Equal(t, "Hello", c.Delta("a", "Hello", false))
}

func TestStreamParseCache_EmptyInputs(t *testing.T) {
	c := NewStreamParseCache()

	assert.Empty(t, c.Delta("", "text", false))
	assert.Empty(t, c.Delta("a", "", false))
	assert.Equal(t, 0, c.Len())
}

func TestStreamParseCache_ItemsAreIndependent(t *testing.T) {
	c := NewStreamParseCache()

	c.Delta("a", "one", false)
	c.Delta("b", "two", false)
	assert.Equal(t, " more", c.Delta("a", "one more", false))
	assert.Equal(t, 2, c.Len())
}
