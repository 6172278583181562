package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nroy/coachd/internal/coach"
	"github.com/nroy/coachd/internal/profile"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Coach    *coach.Coach
	Profiles *profile.Manager
	// Username is the identity MCP calls act as; the stdio transport has
	// no login step, so the operator binds it at startup.
	Username string
	// Profile is the profile name MCP calls operate on.
	Profile string
}

// NewMCPServer creates an MCP server exposing the interview coach to AI clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"coachd",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("coachd: interview practice grounded in a stored candidate profile."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_interview",
			mcp.WithDescription("Answer an interview question in the candidate's voice, grounded in the stored profile and background."),
			mcp.WithString("question", mcp.Description("The interview question to answer"), mcp.Required()),
		),
		mcpAskInterview(deps),
	)

	s.AddTool(
		mcp.NewTool("record_background",
			mcp.WithDescription("Record a question/answer pair into the candidate's background history."),
			mcp.WithString("question", mcp.Description("The question that was asked"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("The candidate's answer"), mcp.Required()),
		),
		mcpRecordBackground(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"coach://profile",
			"Candidate Profile",
			mcp.WithResourceDescription("The bound profile bundle as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	return s
}

func mcpAskInterview(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		answer, err := deps.Coach.Answer(ctx, deps.Username, deps.Profile, question)
		if err != nil {
			return mcpError(fmt.Sprintf("answering failed: %v", err)), nil
		}
		return mcpText(answer), nil
	}
}

func mcpRecordBackground(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}

		total, warning, err := deps.Profiles.AppendHistory(ctx, deps.Username, deps.Profile, []profile.QAEntry{
			{Question: question, Answer: answer},
		})
		if err != nil {
			return mcpError(fmt.Sprintf("recording failed: %v", err)), nil
		}

		msg := fmt.Sprintf("Recorded; background now holds %d entries", total)
		if warning != "" {
			msg += " (" + warning + ")"
		}
		return mcpText(msg), nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		bundle, err := deps.Profiles.GetBundle(ctx, deps.Username, deps.Profile)
		if err != nil {
			return nil, fmt.Errorf("loading profile: %w", err)
		}

		b, err := json.Marshal(bundle)
		if err != nil {
			return nil, fmt.Errorf("marshalling profile: %w", err)
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
