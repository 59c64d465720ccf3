package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUTF8Chunker_SplitRune(t *testing.T) {
	var c utf8Chunker
	euro := []byte("€") // e2 82 ac

	assert.Equal(t, "a", c.next(append([]byte("a"), euro[:2]...)))
	assert.Equal(t, "€b", c.next(append(euro[2:], 'b')))
	assert.Equal(t, "", c.flush())
}

func TestUTF8Chunker_InvalidBytes(t *testing.T) {
	var c utf8Chunker
	assert.Equal(t, "a�b", c.next([]byte{'a', 0xff, 'b'}))
}

func TestUTF8Chunker_FlushIncomplete(t *testing.T) {
	var c utf8Chunker
	assert.Equal(t, "x", c.next([]byte{'x', 0xe2}))
	assert.Equal(t, "�", c.flush())
}
