package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/borisletic/lti-qa-tool/internal/metrics"
	"github.com/borisletic/lti-qa-tool/internal/provenance"
	"github.com/borisletic/lti-qa-tool/internal/qa"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Registry *qa.Registry
	Metrics  *metrics.Metrics
}

// NewMCPServer creates an MCP server exposing course Q&A tools and the
// provenance graph statistics.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"ltiqa",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("ltiqa answers questions from course materials and records every answer in a provenance graph."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question from the materials of a course. Returns answer, confidence, sources and the question id."),
			mcp.WithString("question", mcp.Description("The question"), mcp.Required()),
			mcp.WithString("course", mcp.Description("Course id"), mcp.Required()),
			mcp.WithString("user", mcp.Description("Asking user id (default mcp)")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("similar",
			mcp.WithDescription("Find previously answered questions of a course sharing keywords with the given question."),
			mcp.WithString("question", mcp.Description("Question text"), mcp.Required()),
			mcp.WithString("course", mcp.Description("Course id"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSimilar(deps),
	)

	s.AddTool(
		mcp.NewTool("course_stats",
			mcp.WithDescription("Question count, mean answer confidence and feedback summary of a course."),
			mcp.WithString("course", mcp.Description("Course id"), mcp.Required()),
		),
		mcpCourseStats(deps),
	)

	s.AddTool(
		mcp.NewTool("feedback",
			mcp.WithDescription("Rate an answered question from 1 to 5."),
			mcp.WithString("question_id", mcp.Description("Id returned by ask"), mcp.Required()),
			mcp.WithNumber("rating", mcp.Description("Rating 1..5"), mcp.Required()),
			mcp.WithString("comment", mcp.Description("Optional comment")),
		),
		mcpFeedback(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"ltiqa://graph/stats",
			"Provenance Graph Statistics",
			mcp.WithResourceDescription("Triple counts and instances per class as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceGraphStats(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		course, err := req.RequireString("course")
		if err != nil {
			return mcpError("course is required"), nil
		}
		user := req.GetString("user", "mcp")

		e, err := deps.Registry.Get(ctx, course)
		if err != nil {
			slog.Error("course collection unavailable, answering without context", "course", course, "error", err)
			return mcpJSON(deps.Registry.Unavailable())
		}
		res, err := e.Ask(ctx, question, user)
		if errors.Is(err, qa.ErrEmptyInput) {
			return mcpError("question must not be empty"), nil
		}
		if err != nil && res.Answer == "" {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpSimilar(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		course, err := req.RequireString("course")
		if err != nil {
			return mcpError("course is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		return mcpJSON(toSimilarJSON(deps.Registry.Graph().FindSimilar(question, course, limit)))
	}
}

func mcpCourseStats(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		course, err := req.RequireString("course")
		if err != nil {
			return mcpError("course is required"), nil
		}
		return mcpJSON(deps.Registry.Graph().Statistics(course))
	}
}

func mcpFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		questionID, err := req.RequireString("question_id")
		if err != nil {
			return mcpError("question_id is required"), nil
		}
		rating := req.GetInt("rating", 0)
		comment := req.GetString("comment", "")

		id, err := deps.Registry.Graph().AddFeedback(ctx, questionID, rating, comment)
		switch {
		case errors.Is(err, provenance.ErrInvalidRating):
			return mcpError("rating must be between 1 and 5"), nil
		case errors.Is(err, provenance.ErrNotFound):
			return mcpError(fmt.Sprintf("question %s not found", questionID)), nil
		case err != nil:
			return mcpError(fmt.Sprintf("recording feedback failed: %v", err)), nil
		}
		deps.Metrics.IncFeedback()
		return mcpText(fmt.Sprintf("Recorded feedback %s", id)), nil
	}
}

func mcpResourceGraphStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Registry.Graph().Stats())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal graph stats: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
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
