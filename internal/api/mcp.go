package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/sentinel/internal/feedback"
	"github.com/kalambet/sentinel/internal/service"
)

// recentFeedbackLimit caps the feedback://recent resource.
const recentFeedbackLimit = 20

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service *service.Service
	Version string
}

// NewMCPServer creates an MCP server with the scoring tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"sentinel",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sentinel scores Reddit accounts for automated behaviour and records analyst feedback."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("score_user",
			mcp.WithDescription("Score one Reddit account. Returns bot probability, confidence, classification and the top contributing factors."),
			mcp.WithString("username", mcp.Description("Reddit username without the u/ prefix"), mcp.Required()),
			mcp.WithBoolean("force_refresh", mcp.Description("Ignore any cached score and recompute")),
		),
		mcpScoreUser(deps),
	)

	s.AddTool(
		mcp.NewTool("score_batch",
			mcp.WithDescription("Score up to 50 Reddit accounts. Per-account failures are reported inline."),
			mcp.WithArray("usernames",
				mcp.Description("Reddit usernames"),
				mcp.Required(),
				mcp.Items(map[string]any{"type": "string"}),
			),
			mcp.WithBoolean("force_refresh", mcp.Description("Ignore cached scores and recompute")),
		),
		mcpScoreBatch(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_feedback",
			mcp.WithDescription("Record an analyst label for an account. Disputed labels queue a rescore."),
			mcp.WithString("username", mcp.Description("Reddit username"), mcp.Required()),
			mcp.WithString("feedback_type",
				mcp.Description("One of false_positive, false_negative, confirmed_bot, confirmed_human"),
				mcp.Required(),
				mcp.Enum(kindNames()...),
			),
			mcp.WithString("notes", mcp.Description("Optional free-form note")),
		),
		mcpSubmitFeedback(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"sentinel://stats",
			"Scoring Statistics",
			mcp.WithResourceDescription("Accounts analyzed, cache hit rate, feedback counts and model version"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"sentinel://feedback/recent",
			"Recent Feedback",
			mcp.WithResourceDescription("Most recent analyst feedback records"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentFeedback(deps),
	)

	return s
}

func kindNames() []string {
	names := make([]string, len(feedback.Kinds))
	for i, k := range feedback.Kinds {
		names[i] = string(k)
	}
	return names
}

func mcpScoreUser(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		username, err := req.RequireString("username")
		if err != nil {
			return mcpError("username is required"), nil
		}
		force := req.GetBool("force_refresh", false)

		res, err := deps.Service.ScoreUser(ctx, username, force)
		if err != nil {
			return mcpError(fmt.Sprintf("scoring failed: %v", err)), nil
		}
		return mcpJSON(NewScoreResponse(res))
	}
}

func mcpScoreBatch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		usernames := req.GetStringSlice("usernames", nil)
		if len(usernames) == 0 {
			return mcpError("usernames is required"), nil
		}
		force := req.GetBool("force_refresh", false)

		resp, err := deps.Service.ScoreBatch(ctx, usernames, force)
		if err != nil {
			return mcpError(fmt.Sprintf("batch failed: %v", err)), nil
		}
		return mcpJSON(NewBatchResponse(resp))
	}
}

func mcpSubmitFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		username, err := req.RequireString("username")
		if err != nil {
			return mcpError("username is required"), nil
		}
		kind, err := req.RequireString("feedback_type")
		if err != nil {
			return mcpError("feedback_type is required"), nil
		}
		notes := req.GetString("notes", "")

		rec, err := deps.Service.RecordFeedback(ctx, username, feedback.Kind(kind), notes)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to record feedback: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded %s feedback for %s (%s)", rec.Kind, rec.SubjectID, rec.ID)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := deps.Service.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get stats: %w", err)
		}
		return jsonResource(req.Params.URI, stats)
	}
}

func mcpResourceRecentFeedback(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := deps.Service.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count feedback: %w", err)
		}
		total := 0
		for _, n := range stats.FeedbackCounts {
			total += n
		}
		offset := max(total-recentFeedbackLimit, 0)

		records, err := deps.Service.ListFeedback(ctx, recentFeedbackLimit, offset)
		if err != nil {
			return nil, fmt.Errorf("failed to list feedback: %w", err)
		}
		if records == nil {
			records = []feedback.Record{}
		}
		return jsonResource(req.Params.URI, records)
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
