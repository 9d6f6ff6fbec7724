// Package mcp serves the episode index to retrieval agents over the Model
// Context Protocol (stdio transport).
package mcp

import (
	"database/sql"
	"log/slog"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/castchunk/internal/config"
	"github.com/hpungsan/castchunk/internal/record"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"episode_list": {
		def:     listToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"episode_fetch": {
		def:     fetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFetch },
	},
	"chunk_get": {
		def:     chunkToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChunk },
	},
	"chunk_search": {
		def:     searchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSearch },
	},
	"episode_export": {
		def:     exportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExport },
	},
	"episode_purge": {
		def:     purgeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurge },
	},
}

// AllToolNames returns every registered tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
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

// NewServer creates an MCP server with the index tools registered. Tools
// listed in disabled are left out; unknown names are logged and ignored.
func NewServer(db *sql.DB, settings config.Settings, disabled []string, version string, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}

	s := server.NewMCPServer(
		"castchunk",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, record.NewWriter(settings.OutputDir), settings.Export)

	if unknown := ValidateDisabledTools(disabled); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", slog.Any("tools", unknown))
	}
	skip := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		skip[name] = true
	}

	for name, entry := range toolRegistry {
		if skip[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, settings config.Settings, disabled []string, version string, logger *slog.Logger) error {
	s := NewServer(db, settings, disabled, version, logger)
	return server.ServeStdio(s)
}
