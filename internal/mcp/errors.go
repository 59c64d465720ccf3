package mcp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/HyphaGroup/codexd/internal/logger"
	"github.com/HyphaGroup/codexd/internal/session"
	"github.com/HyphaGroup/codexd/internal/terminal"
)

// sensitivePatterns mark errors whose text must not reach a client
var sensitivePatterns = []string{
	"api_key",
	"openai_",
	"password",
	"secret",
	"credential",
}

// internalErrorPatterns mark errors that leak host details
var internalErrorPatterns = []string{
	"no such file",
	"permission denied",
	"connection refused",
	"broken pipe",
	"database is locked",
	"sql:",
	"fork/exec",
}

// SanitizeError returns a client-safe error. Errors the control surface
// defines are passed through; anything else is logged in full and replaced.
func SanitizeError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var spawnErr *session.SpawnError
	if errors.As(err, &spawnErr) {
		logger.Error("%s failed: %v", operation, err)
		return fmt.Errorf("%s failed: could not start codex (run `codexd check`)", operation)
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lower, pattern) {
			logger.Error("%s failed (sensitive): %v", operation, err)
			return fmt.Errorf("%s failed: internal configuration error", operation)
		}
	}
	for _, pattern := range internalErrorPatterns {
		if strings.Contains(lower, pattern) {
			logger.Error("%s failed (internal): %v", operation, err)
			return fmt.Errorf("%s failed: internal error", operation)
		}
	}

	if isUserFacingError(err) {
		return err
	}

	logger.Error("%s failed: %v", operation, err)
	if len(lower) < 80 {
		return fmt.Errorf("%s failed: %s", operation, err.Error())
	}
	return fmt.Errorf("%s failed: an unexpected error occurred", operation)
}

var userFacingErrors = []error{
	session.ErrApprovalNotFound,
	session.ErrApprovalTargetNotRunning,
	session.ErrApprovalInputUnavailable,
	session.ErrProcessNotFound,
	session.ErrNoEvents,
	session.ErrEventsPurged,
	terminal.ErrSessionNotFound,
	terminal.ErrSessionExited,
	terminal.ErrResizeUnsupported,
}

func isUserFacingError(err error) bool {
	for _, target := range userFacingErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{"not found", "required", "invalid", "must be", "unknown action", "access"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
