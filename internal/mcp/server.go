// Package mcp exposes captures, tasks and thoughts as MCP tools over stdio.
package mcp

import (
	"context"
	"database/sql"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/jot/internal/config"
	"github.com/hpungsan/jot/internal/logger"
	"github.com/hpungsan/jot/internal/note"
	"github.com/hpungsan/jot/internal/notify"
	"github.com/hpungsan/jot/internal/ops"
)

// TextCapturer accepts text captures and processes them in the background.
type TextCapturer interface {
	SubmitText(ctx context.Context, text string) (*note.Capture, error)
}

// Deps are the collaborators the tool handlers need.
type Deps struct {
	DB       *sql.DB
	Config   *config.Config
	Capturer TextCapturer
	Registry *notify.Registry
	Matcher  ops.Invalidator
	Log      *logger.Logger
}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"capture_text": {
		def:     captureTextToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureText },
	},
	"capture_status": {
		def:     captureStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureStatus },
	},
	"capture_wait": {
		def:     captureWaitToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureWait },
	},
	"task_list": {
		def:     taskListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTaskList },
	},
	"task_update": {
		def:     taskUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTaskUpdate },
	},
	"thought_list": {
		def:     thoughtListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleThoughtList },
	},
	"digest": {
		def:     digestToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDigest },
	},
}

// AllToolNames returns every tool name, sorted.
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

// NewServer creates a new MCP server with jot tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"jot",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps)

	disabled := make(map[string]bool)
	for _, name := range deps.Config.DisabledTools {
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
func Run(deps Deps, version string) error {
	s := NewServer(deps, version)
	return server.ServeStdio(s)
}
