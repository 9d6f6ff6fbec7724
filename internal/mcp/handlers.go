package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/fsutil"
	"github.com/hpungsan/castchunk/internal/ops"
	"github.com/hpungsan/castchunk/internal/record"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db     *sql.DB
	writer *record.Writer
	policy fsutil.ExportPolicy
}

// NewHandlers creates a new Handlers instance. writer may be nil, in which
// case episode_fetch only consults the index.
func NewHandlers(db *sql.DB, writer *record.Writer, policy fsutil.ExportPolicy) *Handlers {
	return &Handlers{db: db, writer: writer, policy: policy}
}

// Request types for each tool

// ListRequest represents the arguments for episode_list.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// FetchRequest represents the arguments for episode_fetch.
type FetchRequest struct {
	EpisodeID   string `json:"episode_id"`
	IncludeText *bool  `json:"include_text,omitempty"`
}

// ChunkRequest represents the arguments for chunk_get.
type ChunkRequest struct {
	EpisodeID  string `json:"episode_id"`
	ChunkIndex *int   `json:"chunk_index"`
}

// SearchRequest represents the arguments for chunk_search.
type SearchRequest struct {
	Query     string  `json:"query"`
	EpisodeID *string `json:"episode_id,omitempty"`
	Limit     int     `json:"limit,omitempty"`
	Offset    int     `json:"offset,omitempty"`
}

// ExportRequest represents the arguments for episode_export.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
}

// PurgeRequest represents the arguments for episode_purge.
type PurgeRequest struct {
	EpisodeIDs []string `json:"episode_ids"`
}

// Handler implementations

// HandleList handles the episode_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(h.db, ops.ListInput{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFetch handles the episode_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	includeText := true
	if input.IncludeText != nil {
		includeText = *input.IncludeText
	}

	result, err := ops.Fetch(h.db, h.writer, ops.FetchInput{
		EpisodeID:   input.EpisodeID,
		IncludeText: includeText,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleChunk handles the chunk_get tool call.
func (h *Handlers) HandleChunk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChunkRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.ChunkIndex == nil {
		return errorResult(errors.NewInvalidRequest("chunk_index is required")), nil
	}

	result, err := ops.GetChunk(h.db, ops.GetChunkInput{
		EpisodeID:  input.EpisodeID,
		ChunkIndex: *input.ChunkIndex,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSearch handles the chunk_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Search(ctx, h.db, ops.SearchInput{
		Query:     input.Query,
		EpisodeID: input.EpisodeID,
		Limit:     input.Limit,
		Offset:    input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the episode_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.db, h.policy, ops.ExportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurge handles the episode_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Purge(h.db, ops.PurgeInput{EpisodeIDs: input.EpisodeIDs})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed to keep paths and SQL out of replies.
func errorResult(err error) *mcp.CallToolResult {
	cErr := errors.As(err)

	var errorObj map[string]any
	if cErr.Code == errors.ErrInternal {
		errorObj = map[string]any{
			"code":    errors.ErrInternal,
			"message": "an internal error occurred",
			"status":  500,
		}
	} else {
		// Keep any wrapping context ("items[2]: ...") in front of the message.
		message := cErr.Message
		if full := err.Error(); full != cErr.Error() && strings.HasSuffix(full, cErr.Error()) {
			message = strings.TrimSuffix(full, cErr.Error()) + cErr.Message
		}
		errorObj = map[string]any{
			"code":    cErr.Code,
			"message": message,
			"status":  cErr.Status,
		}
		if cErr.Details != nil {
			errorObj["details"] = cErr.Details
		}
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
