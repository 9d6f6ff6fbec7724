package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/castchunk/internal/ops"
)

var listToolDef = mcp.NewTool("episode_list",
	mcp.WithDescription("List indexed episodes, newest first. Returns metadata only (no chunk text)."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithNumber("limit",
		mcp.Description("Page size (default 20, max 100)"),
		mcp.Min(0),
		mcp.Max(ops.MaxListLimit),
	),
	mcp.WithNumber("offset",
		mcp.Description("Number of episodes to skip"),
		mcp.Min(0),
	),
)

var fetchToolDef = mcp.NewTool("episode_fetch",
	mcp.WithDescription("Fetch one episode with its chunks. Falls back to the JSON artifact when the episode is not indexed."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("episode_id",
		mcp.Required(),
		mcp.Description("Video id or title/date slug"),
	),
	mcp.WithBoolean("include_text",
		mcp.Description("Include chunk text (default true)"),
	),
)

var chunkToolDef = mcp.NewTool("chunk_get",
	mcp.WithDescription("Get a single chunk with the episode metadata needed to cite it."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("episode_id",
		mcp.Required(),
		mcp.Description("Video id or title/date slug"),
	),
	mcp.WithNumber("chunk_index",
		mcp.Required(),
		mcp.Description("Zero-based chunk index"),
		mcp.Min(0),
	),
)

var searchToolDef = mcp.NewTool("chunk_search",
	mcp.WithDescription("Full-text search over chunk text, best match first. Every term must appear; snippets highlight matches with <b> tags."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Search terms (max 500 characters)"),
	),
	mcp.WithString("episode_id",
		mcp.Description("Restrict results to one episode"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Page size (default 20, max 100)"),
		mcp.Min(0),
		mcp.Max(ops.MaxSearchLimit),
	),
	mcp.WithNumber("offset",
		mcp.Description("Number of results to skip"),
		mcp.Min(0),
	),
)

var exportToolDef = mcp.NewTool("episode_export",
	mcp.WithDescription("Export every indexed chunk to a JSONL file (one line per chunk with episode metadata)."),
	mcp.WithString("path",
		mcp.Description("Destination .jsonl file inside an allowed export directory (default: exports dir, timestamped name)"),
	),
)

var purgeToolDef = mcp.NewTool("episode_purge",
	mcp.WithDescription("Remove episodes from the index. JSON artifacts on disk are kept."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithArray("episode_ids",
		mcp.Required(),
		mcp.Description("Episode ids to remove"),
		mcp.Items(map[string]any{"type": "string"}),
	),
)
