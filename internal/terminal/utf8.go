package terminal

import (
	"strings"
	"unicode/utf8"
)

// utf8Chunker turns raw read chunks into valid UTF-8 strings. A multi-byte
// sequence split across two reads is held back and completed by the next
// chunk instead of being replaced.
type utf8Chunker struct {
	pending []byte
}

func (c *utf8Chunker) next(chunk []byte) string {
	data := chunk
	if len(c.pending) > 0 {
		data = append(c.pending, chunk...)
		c.pending = nil
	}

	cut := incompleteTail(data)
	if cut < len(data) {
		c.pending = append([]byte(nil), data[cut:]...)
		data = data[:cut]
	}
	return strings.ToValidUTF8(string(data), "�")
}

// flush returns whatever is still held back
func (c *utf8Chunker) flush() string {
	if len(c.pending) == 0 {
		return ""
	}
	s := strings.ToValidUTF8(string(c.pending), "�")
	c.pending = nil
	return s
}

// incompleteTail returns the index where a truncated trailing rune starts,
// or len(b) if b does not end mid-rune.
func incompleteTail(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax+1; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return i
		}
		break
	}
	return len(b)
}
