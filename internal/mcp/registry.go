package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HyphaGroup/codexd/internal/auth"
	"github.com/HyphaGroup/codexd/internal/logger"
	"github.com/HyphaGroup/codexd/internal/metrics"
)

// ToolHandler is a function that handles a tool call
type ToolHandler func(ctx context.Context, arguments json.RawMessage) (any, error)

type ctxKeyCallToolRequest struct{}

// WithCallToolRequest stores the MCP CallToolRequest in context
func WithCallToolRequest(ctx context.Context, req *mcp_sdk.CallToolRequest) context.Context {
	return context.WithValue(ctx, ctxKeyCallToolRequest{}, req)
}

// CallToolRequestFromContext retrieves the MCP CallToolRequest from context
func CallToolRequestFromContext(ctx context.Context) *mcp_sdk.CallToolRequest {
	if req, ok := ctx.Value(ctxKeyCallToolRequest{}).(*mcp_sdk.CallToolRequest); ok {
		return req
	}
	return nil
}

// ToolAccess is the minimum scope needed to see and call a tool. Unified
// tools may still demand write access for individual actions.
type ToolAccess string

const (
	AccessRead  ToolAccess = "read"
	AccessWrite ToolAccess = "write"
	AccessAdmin ToolAccess = "admin"
)

// ToolDef defines a tool with all metadata
type ToolDef struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Access      ToolAccess         `json:"access"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

// Registry stores tool definitions and handlers
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*ToolDef
	handlers map[string]ToolHandler
	order    []string
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]*ToolDef),
		handlers: make(map[string]ToolHandler),
	}
}

// Register adds a tool with its handler. The input schema is inferred from
// P unless def carries one; a type the schema generator rejects panics,
// since tools are registered once at startup.
func Register[P any](r *Registry, def ToolDef, handler func(ctx context.Context, req *mcp_sdk.CallToolRequest, params P) (*mcp_sdk.CallToolResult, any, error)) {
	if def.InputSchema == nil {
		schema, err := jsonschema.For[P](nil)
		if err != nil {
			panic(fmt.Sprintf("mcp: input schema for tool %s: %v", def.Name, err))
		}
		def.InputSchema = schema
	}
	if def.Access == "" {
		def.Access = AccessWrite
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = &def
	r.handlers[def.Name] = wrapHandler(handler)
}

// GetTool returns a tool definition by name
func (r *Registry) GetTool(name string) (*ToolDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// GetAllTools returns all tool definitions in registration order
func (r *Registry) GetAllTools() []*ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*ToolDef, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// GetToolsForScope returns the tools a token scope may call
func (r *Registry) GetToolsForScope(scope string) []*ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tools []*ToolDef
	for _, name := range r.order {
		if def := r.tools[name]; IsToolAllowed(def, scope) {
			tools = append(tools, def)
		}
	}
	return tools
}

// CallTool executes a tool by name with JSON arguments. The caller's scope
// is checked against the tool's access level first.
func (r *Registry) CallTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	r.mu.RLock()
	def, ok := r.tools[name]
	handler := r.handlers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	if !IsToolAllowed(def, auth.FromContext(ctx).Scope()) {
		metrics.RecordToolCall(name, "denied")
		return nil, fmt.Errorf("tool %s requires %s access", name, def.Access)
	}

	start := time.Now()
	result, err := handler(ctx, args)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordToolCall(name, status)
	logger.WithContext(ctx).Debug("tool call", "tool", name, "status", status, "duration", time.Since(start))
	return result, err
}

// RegisterWithMCPServer registers all tools with an MCP SDK server
func (r *Registry) RegisterWithMCPServer(server *mcp_sdk.Server) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		def := r.tools[name]
		tool := &mcp_sdk.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}

		toolName := def.Name
		server.AddTool(tool, func(ctx context.Context, req *mcp_sdk.CallToolRequest) (*mcp_sdk.CallToolResult, error) {
			ctx = WithCallToolRequest(ctx, req)
			var args json.RawMessage
			if req.Params != nil {
				args = req.Params.Arguments
			}
			result, err := r.CallTool(ctx, toolName, args)
			if err != nil {
				return NewErrorResult(SanitizeError(err, toolName).Error()), nil
			}
			return toResult(result)
		})
	}
}

func toResult(result any) (*mcp_sdk.CallToolResult, error) {
	if ctr, ok := result.(*mcp_sdk.CallToolResult); ok {
		return ctr, nil
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return NewErrorResult(err.Error()), nil
	}
	return NewTextResult(string(data)), nil
}

// wrapHandler wraps a typed handler into a ToolHandler
func wrapHandler[P any](handler func(ctx context.Context, req *mcp_sdk.CallToolRequest, params P) (*mcp_sdk.CallToolResult, any, error)) ToolHandler {
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		var params P
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, fmt.Errorf("invalid parameters: %w", err)
			}
		}

		req := CallToolRequestFromContext(ctx)
		if req == nil {
			req = &mcp_sdk.CallToolRequest{
				Params: &mcp_sdk.CallToolParamsRaw{Arguments: args},
			}
		}

		result, data, err := handler(ctx, req, params)
		if err != nil {
			return nil, err
		}

		if result != nil && result.IsError {
			msg := "tool execution failed"
			if len(result.Content) > 0 {
				if tc, ok := result.Content[0].(*mcp_sdk.TextContent); ok {
					msg = tc.Text
				}
			}
			return nil, fmt.Errorf("%s", msg)
		}

		if data != nil {
			return data, nil
		}
		return result, nil
	}
}
