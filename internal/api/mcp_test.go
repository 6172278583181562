package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nroy/coachd/internal/coach"
	"github.com/nroy/coachd/internal/profile"
)

func newTestMCPDeps(t *testing.T, steps ...step) (MCPDeps, *profile.Manager) {
	t.Helper()

	mgr := profile.NewManager(&memStore{}, profile.Profile{})
	if _, _, err := mgr.CreateProfile(context.Background(), "alice", "Default"); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	client := &scriptedClient{steps: steps}
	return MCPDeps{
		Coach:    coach.New(client, mgr),
		Profiles: mgr,
		Username: "alice",
		Profile:  "Default",
	}, mgr
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_AskInterview(t *testing.T) {
	deps, _ := newTestMCPDeps(t, step{reply: "I pair daily with teammates."})
	handler := mcpAskInterview(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask_interview", map[string]interface{}{
		"question": "How do you collaborate?",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "I pair daily with teammates." {
		t.Errorf("answer = %q", got)
	}
}

func TestMCPTool_AskInterview_MissingQuestion(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpAskInterview(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask_interview", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing question")
	}
}

func TestMCPTool_RecordBackground(t *testing.T) {
	deps, mgr := newTestMCPDeps(t)
	handler := mcpRecordBackground(deps)

	result, err := handler(context.Background(), makeCallToolRequest("record_background", map[string]interface{}{
		"question": "Favorite language?",
		"answer":   "Go, for the tooling.",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	history, err := mgr.History(context.Background(), "alice", "Default")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Answer != "Go, for the tooling." {
		t.Errorf("history = %+v", history)
	}
}

func TestMCPResource_Profile(t *testing.T) {
	deps, mgr := newTestMCPDeps(t)
	if _, _, err := mgr.UpdateFields(context.Background(), "alice", "Default", profile.FieldPatch{
		Name: strPtr("Alice Smith"),
	}); err != nil {
		t.Fatal(err)
	}

	handler := mcpResourceProfile(deps)
	contents, err := handler(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "coach://profile"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents length = %d, want 1", len(contents))
	}

	text := contents[0].(mcp.TextResourceContents).Text
	var bundle map[string]any
	if err := json.Unmarshal([]byte(text), &bundle); err != nil {
		t.Fatalf("resource is not JSON: %v", err)
	}
	if !strings.Contains(text, "Alice Smith") {
		t.Errorf("resource missing profile name: %s", text)
	}
}

func strPtr(s string) *string { return &s }
