package mcp

import "github.com/HyphaGroup/codexd/internal/auth"

// IsToolAllowed reports whether a token scope may call tool
func IsToolAllowed(tool *ToolDef, scope string) bool {
	switch tool.Access {
	case AccessRead:
		return auth.ValidScope(scope)
	case AccessWrite, AccessAdmin:
		return scope == auth.ScopeAdmin
	default:
		return false
	}
}
