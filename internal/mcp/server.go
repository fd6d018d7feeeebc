package mcp

import (
	"database/sql"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/wpswap/internal/config"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"wpswap_normalize": {
		def:     normalizeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleNormalize },
	},
	"wpswap_match": {
		def:     matchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMatch },
	},
	"wpswap_rewrite": {
		def:     rewriteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRewrite },
	},
	"wpswap_runs": {
		def:     runsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRuns },
	},
	"wpswap_show": {
		def:     showToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShow },
	},
	"wpswap_report": {
		def:     reportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReport },
	},
}

var normalizeToolDef = mcp.NewTool("wpswap_normalize",
	mcp.WithDescription("Normalize filenames the way the matcher does: lowercase, NFC, extension removed, size and -scaled suffixes stripped."),
	mcp.WithArray("filenames",
		mcp.Required(),
		mcp.Description("Filenames or paths to normalize"),
		mcp.Items(map[string]any{"type": "string"}),
	),
)

var matchToolDef = mcp.NewTool("wpswap_match",
	mcp.WithDescription("Pair local replacement filenames with remote media records by normalized stem. Pure: nothing is listed, uploaded or written."),
	mcp.WithArray("locals",
		mcp.Required(),
		mcp.Description("Local file paths, in the order they should claim stems"),
		mcp.Items(map[string]any{"type": "string"}),
	),
	mcp.WithArray("remotes",
		mcp.Required(),
		mcp.Description("Remote media records"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":        map[string]any{"type": "integer"},
				"url":       map[string]any{"type": "string"},
				"filename":  map[string]any{"type": "string"},
				"size_urls": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"id", "url"},
		}),
	),
)

var rewriteToolDef = mcp.NewTool("wpswap_rewrite",
	mcp.WithDescription("Replace every occurrence of the old URLs in the given documents. The mapping is validated first; an invalid mapping touches no document."),
	mcp.WithArray("mapping",
		mcp.Required(),
		mcp.Description("Ordered old-to-new URL pairs"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"old": map[string]any{"type": "string"},
				"new": map[string]any{"type": "string"},
			},
			"required": []string{"old", "new"},
		}),
	),
	mcp.WithArray("documents",
		mcp.Required(),
		mcp.Description("Documents to rewrite"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id":       map[string]any{"type": "string"},
				"kind":     map[string]any{"type": "string"},
				"title":    map[string]any{"type": "string"},
				"raw_text": map[string]any{"type": "string"},
			},
			"required": []string{"id", "raw_text"},
		}),
	),
	mcp.WithBoolean("revert", mcp.Description("Apply the mapping backwards (new URL to old URL)")),
)

var runsToolDef = mcp.NewTool("wpswap_runs",
	mcp.WithDescription("List recorded runs, newest first."),
	mcp.WithString("site", mcp.Description("Only runs against this site URL")),
	mcp.WithString("kind", mcp.Description("run or rewrite"), mcp.Enum("run", "rewrite")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Rows to skip")),
)

var showToolDef = mcp.NewTool("wpswap_show",
	mcp.WithDescription("Show one run with its uploads and document rewrites. Without id, the latest run for site."),
	mcp.WithString("id", mcp.Description("Run ID")),
	mcp.WithString("site", mcp.Description("Site URL, used when id is empty")),
)

var reportToolDef = mcp.NewTool("wpswap_report",
	mcp.WithDescription("Render a run report as Markdown or HTML, optionally writing it to the reports directory."),
	mcp.WithString("id", mcp.Description("Run ID")),
	mcp.WithString("site", mcp.Description("Site URL, used when id is empty")),
	mcp.WithString("format", mcp.Description("markdown (default) or html"), mcp.Enum("markdown", "html")),
	mcp.WithBoolean("write", mcp.Description("Write the report to disk")),
	mcp.WithString("path", mcp.Description("Target file inside the reports directory")),
)

// AllToolNames returns a sorted list of all valid tool names.
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

// NewServer creates a new MCP server with wpswap tools registered.
// Tools listed in cfg.DisabledTools are excluded from registration.
func NewServer(db *sql.DB, cfg *config.Config, reportsDir, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"wpswap",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(db, cfg, reportsDir)

	disabled := make(map[string]bool, len(cfg.DisabledTools))
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(db *sql.DB, cfg *config.Config, reportsDir, version string) error {
	s := NewServer(db, cfg, reportsDir, version)
	return server.ServeStdio(s)
}
