package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/keepsake/internal/ops"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"capsule", "share", "connection"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"capsule_create": {
		def:     createToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCreate },
	},
	"capsule_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"capsule_fetch": {
		def:     fetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFetch },
	},
	"capsule_open": {
		def:     openToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleOpen },
	},
	"capsule_withdraw": {
		def:     withdrawToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWithdraw },
	},
	"capsule_update": {
		def:     updateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUpdate },
	},
	"capsule_hint": {
		def:     hintToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleHint },
	},
	"capsule_purge": {
		def:     purgeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurge },
	},
	"capsule_sweep": {
		def:     sweepToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSweep },
	},
	"share_create": {
		def:     shareCreateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShareCreate },
	},
	"share_list": {
		def:     shareListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShareList },
	},
	"share_revoke": {
		def:     shareRevokeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShareRevoke },
	},
	"share_resolve": {
		def:     shareResolveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShareResolve },
	},
	"connection_add": {
		def:     connectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConnect },
	},
	"connection_remove": {
		def:     disconnectToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDisconnect },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "share_revoke" gives "share").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	// Build set of types for O(1) lookup
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	// Collect tools belonging to disabled types
	tools := make([]string, 0)
	for name := range toolRegistry {
		typ := GetTypeForTool(name)
		if typeSet[typ] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with Keepsake tools registered.
// Tools listed in the service config's DisabledTools or belonging to its
// DisabledTypes are excluded from registration.
func NewServer(svc *ops.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"keepsake",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(svc)
	cfg := svc.Config()

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	// Register tools (skip disabled)
	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(svc *ops.Service, version string) error {
	return server.ServeStdio(NewServer(svc, version))
}
