package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/wpswap/internal/asset"
	"github.com/hpungsan/wpswap/internal/config"
	"github.com/hpungsan/wpswap/internal/errors"
	"github.com/hpungsan/wpswap/internal/match"
	"github.com/hpungsan/wpswap/internal/ops"
	"github.com/hpungsan/wpswap/internal/rewrite"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db         *sql.DB
	cfg        *config.Config
	reportsDir string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, reportsDir string) *Handlers {
	return &Handlers{db: db, cfg: cfg, reportsDir: reportsDir}
}

// NormalizeRequest represents the arguments for wpswap_normalize.
type NormalizeRequest struct {
	Filenames []string `json:"filenames"`
}

// NormalizedName is one entry of the wpswap_normalize result.
type NormalizedName struct {
	Filename string `json:"filename"`
	Stem     string `json:"stem"`
	Variant  bool   `json:"variant"`
}

// MatchRequest represents the arguments for wpswap_match.
type MatchRequest struct {
	Locals  []string        `json:"locals"`
	Remotes []RemoteRequest `json:"remotes"`
}

// RemoteRequest describes one remote media record.
type RemoteRequest struct {
	ID       int64    `json:"id"`
	URL      string   `json:"url"`
	Filename string   `json:"filename,omitempty"`
	SizeURLs []string `json:"size_urls,omitempty"`
}

// RewriteRequest represents the arguments for wpswap_rewrite.
type RewriteRequest struct {
	Mapping   rewrite.Mapping    `json:"mapping"`
	Documents []rewrite.Document `json:"documents"`
	Revert    bool               `json:"revert,omitempty"`
}

// RewriteResponse is the result of wpswap_rewrite.
type RewriteResponse struct {
	Mapping           rewrite.Mapping  `json:"mapping"`
	Results           []rewrite.Result `json:"results"`
	Changed           int              `json:"changed"`
	TotalReplacements int              `json:"total_replacements"`
}

// RunsRequest represents the arguments for wpswap_runs.
type RunsRequest struct {
	Site   string `json:"site,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// ShowRequest represents the arguments for wpswap_show.
type ShowRequest struct {
	ID   string `json:"id,omitempty"`
	Site string `json:"site,omitempty"`
}

// ReportRequest represents the arguments for wpswap_report.
type ReportRequest struct {
	ID     string `json:"id,omitempty"`
	Site   string `json:"site,omitempty"`
	Format string `json:"format,omitempty"`
	Write  bool   `json:"write,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Handler implementations

// HandleNormalize handles the wpswap_normalize tool call.
func (h *Handlers) HandleNormalize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NormalizeRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if len(input.Filenames) == 0 {
		return errorResult(errors.NewInvalidRequest("filenames is required")), nil
	}

	out := make([]NormalizedName, len(input.Filenames))
	for i, name := range input.Filenames {
		out[i] = NormalizedName{
			Filename: name,
			Stem:     asset.Normalize(name),
			Variant:  asset.HasVariantSuffix(name),
		}
	}

	return successResult(map[string]any{"results": out})
}

// HandleMatch handles the wpswap_match tool call.
func (h *Handlers) HandleMatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MatchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	locals := make([]asset.LocalAsset, 0, len(input.Locals))
	for _, p := range input.Locals {
		if p == "" {
			return errorResult(errors.NewInvalidRequest("locals must not contain empty paths")), nil
		}
		locals = append(locals, asset.NewLocalAsset(p))
	}
	remotes := make([]asset.RemoteAsset, 0, len(input.Remotes))
	for i, r := range input.Remotes {
		if r.URL == "" {
			return errorResult(errors.NewInvalidRequest(fmt.Sprintf("remotes[%d]: url is required", i))), nil
		}
		remotes = append(remotes, asset.NewRemoteAsset(r.ID, r.Filename, r.URL, r.SizeURLs))
	}

	result := match.Match(locals, remotes)
	return successResult(map[string]any{
		"matches":           result.Matches,
		"unmatched_locals":  result.UnmatchedLocals,
		"unmatched_remotes": result.UnmatchedRemotes,
		"issues":            ops.Issues(result),
	})
}

// HandleRewrite handles the wpswap_rewrite tool call.
func (h *Handlers) HandleRewrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RewriteRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	rw, err := rewrite.Compile(input.Mapping)
	if err != nil {
		return errorResult(err), nil
	}
	if input.Revert {
		if rw, err = rw.Inverse(); err != nil {
			return errorResult(err), nil
		}
	}
	mapping := rw.Pairs()

	results, err := rewrite.Rewrite(mapping, input.Documents)
	if err != nil {
		return errorResult(err), nil
	}

	out := RewriteResponse{Mapping: mapping, Results: results}
	for _, r := range results {
		if r.Changed() {
			out.Changed++
		}
		out.TotalReplacements += r.Count
	}
	return successResult(out)
}

// HandleRuns handles the wpswap_runs tool call.
func (h *Handlers) HandleRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RunsRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Runs(h.db, ops.RunsInput{
		Site:   input.Site,
		Kind:   input.Kind,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleShow handles the wpswap_show tool call.
func (h *Handlers) HandleShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShowRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	site := input.Site
	if input.ID == "" && site == "" {
		site = h.cfg.WordPressURL
	}
	result, err := ops.ShowRun(h.db, ops.ShowRunInput{ID: input.ID, Site: site})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleReport handles the wpswap_report tool call.
// Files are only written inside the reports directory.
func (h *Handlers) HandleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	site := input.Site
	if input.ID == "" && site == "" {
		site = h.cfg.WordPressURL
	}
	result, err := ops.Report(h.db, ops.ReportInput{
		ID:         input.ID,
		Site:       site,
		Format:     input.Format,
		Write:      input.Write,
		Path:       input.Path,
		ReportsDir: h.reportsDir,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// errorResult creates an MCP error result from an error.
// Returns a structured JSON error with code, message, and status.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if e, ok := errors.As(err); ok {
		// Wrapped errors keep the wrapper's context in the message
		msg := e.Message
		if err != error(e) {
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    e.Code,
			"message": msg,
			"status":  e.Status,
		}
		// Internal details may carry file paths or SQL errors
		if e.Code != errors.ErrInternal && len(e.Details) > 0 {
			errorObj["details"] = e.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result with JSON-encoded data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
