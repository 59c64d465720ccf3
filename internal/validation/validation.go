// Package validation checks identifiers and paths supplied by MCP clients.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// MaxIDLength bounds client supplied identifiers
const MaxIDLength = 128

// tokenIDRegex matches ids minted by the auth store
var tokenIDRegex = regexp.MustCompile(`^tok_[0-9a-f]{8}$`)

// ValidateID checks a client supplied conversation, workspace, terminal or
// approval id. Ids are opaque but must be printable and bounded.
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", kind)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("invalid %s: longer than %d bytes", kind, MaxIDLength)
	}
	if strings.TrimSpace(id) != id {
		return fmt.Errorf("invalid %s: leading or trailing whitespace", kind)
	}
	for _, r := range id {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return fmt.Errorf("invalid %s: contains non-printable characters", kind)
		}
	}
	return nil
}

// ValidateTokenID checks the tok_xxxxxxxx form of a token id
func ValidateTokenID(id string) error {
	if !tokenIDRegex.MatchString(id) {
		return fmt.Errorf("invalid token_id %q: expected tok_ followed by 8 hex digits", id)
	}
	return nil
}

// ResolveDir expands a leading ~ and returns the cleaned absolute path of an
// existing directory.
func ResolveDir(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot expand %s: %w", path, err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("invalid path %s: must be absolute", path)
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("directory %s not found", path)
		}
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("invalid path %s: not a directory", path)
	}
	return path, nil
}
