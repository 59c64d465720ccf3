package codex

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// CleanProgress turns a chunk of codex stderr into display text: escape
// sequences stripped, carriage returns treated as line breaks, lines
// trimmed and blank lines dropped. The result may be empty.
func CleanProgress(input string) string {
	stripped := ansi.Strip(input)
	stripped = strings.ReplaceAll(stripped, "\r", "\n")

	lines := strings.Split(stripped, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
