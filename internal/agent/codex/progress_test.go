package codex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanProgress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "thinking", "thinking"},
		{"colors stripped", "\x1b[1;32mOK\x1b[0m done", "OK done"},
		{"carriage returns split", "10%\r50%\r100%", "10%\n50%\n100%"},
		{"blank lines dropped", "  a  \n\n   \n b", "a\nb"},
		{"only escapes", "\x1b[2K\r", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanProgress(tt.in))
		})
	}
}
