package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/borisletic/lti-qa-tool/internal/provenance"
	"github.com/borisletic/lti-qa-tool/internal/qa"
	"github.com/borisletic/lti-qa-tool/internal/retrieval"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	env := newTestEnv(t)
	return MCPDeps{Registry: env.registry, Metrics: env.metrics}
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

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := h(context.Background(), makeCallToolRequest(name, args))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

// --- tests ---

func TestMCPTool_Ask(t *testing.T) {
	deps := newTestMCPDeps(t)
	if _, err := deps.Registry.Ingest(context.Background(), "3", "LTI je standard.", qa.DocumentMeta{Filename: "lti.md"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	result := callTool(t, mcpAsk(deps), "ask", map[string]interface{}{
		"question": "Objasni standard LTI",
		"course":   "3",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var res qa.Result
	if err := json.Unmarshal([]byte(toolText(t, result)), &res); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if res.QuestionID == "" || len(res.Sources) != 1 {
		t.Errorf("result = %+v", res)
	}
	if st := deps.Registry.Graph().Statistics("3"); st.QuestionCount != 1 {
		t.Errorf("questions = %d, want 1", st.QuestionCount)
	}
}

func TestMCPTool_Ask_UnavailableCollection(t *testing.T) {
	env := newTestEnvWithCollections(t, func(string) (retrieval.VectorStore, error) {
		return nil, errors.New("disk unavailable")
	})
	deps := MCPDeps{Registry: env.registry, Metrics: env.metrics}

	result := callTool(t, mcpAsk(deps), "ask", map[string]interface{}{"question": "Objasni standard LTI", "course": "3"})
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	var res qa.Result
	if err := json.Unmarshal([]byte(toolText(t, result)), &res); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if res.Answer != qa.LocaleFor(qa.DefaultLanguage).NoContext || res.Confidence != 0 || len(res.Sources) != 0 {
		t.Errorf("result = %+v, want the no-context answer", res)
	}
}

func TestMCPTool_Ask_MissingArguments(t *testing.T) {
	deps := newTestMCPDeps(t)
	for _, args := range []map[string]interface{}{
		{"course": "1"},
		{"question": "Objasni LTI"},
		{"question": "  ", "course": "1"},
	} {
		result := callTool(t, mcpAsk(deps), "ask", args)
		if !result.IsError {
			t.Errorf("args %v: expected error result", args)
		}
	}
}

func TestMCPTool_SimilarAndStats(t *testing.T) {
	deps := newTestMCPDeps(t)
	g := deps.Registry.Graph()
	if _, _, err := g.RegisterQuestionAnswer(context.Background(), "Objasni standard LTI", "LTI je standard.", "1", "u1", 0.9, nil); err != nil {
		t.Fatalf("RegisterQuestionAnswer: %v", err)
	}

	result := callTool(t, mcpSimilar(deps), "similar", map[string]interface{}{
		"question": "Koji je standard?",
		"course":   "1",
		"limit":    100,
	})
	var similar []similarJSON
	if err := json.Unmarshal([]byte(toolText(t, result)), &similar); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(similar) != 1 || similar[0].Confidence != 0.9 {
		t.Errorf("similar = %+v", similar)
	}

	result = callTool(t, mcpCourseStats(deps), "course_stats", map[string]interface{}{"course": "1"})
	var st provenance.CourseStats
	if err := json.Unmarshal([]byte(toolText(t, result)), &st); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if st.QuestionCount != 1 || st.MeanConfidence != 0.9 {
		t.Errorf("stats = %+v", st)
	}
}

func TestMCPTool_Feedback(t *testing.T) {
	deps := newTestMCPDeps(t)
	qid, _, err := deps.Registry.Graph().RegisterQuestionAnswer(context.Background(), "Objasni LTI", "odgovor", "1", "u1", 0.5, nil)
	if err != nil {
		t.Fatalf("RegisterQuestionAnswer: %v", err)
	}

	result := callTool(t, mcpFeedback(deps), "feedback", map[string]interface{}{
		"question_id": qid,
		"rating":      4,
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	result = callTool(t, mcpFeedback(deps), "feedback", map[string]interface{}{
		"question_id": qid,
		"rating":      0,
	})
	if !result.IsError || !strings.Contains(toolText(t, result), "between 1 and 5") {
		t.Errorf("invalid rating result = %+v", result)
	}

	result = callTool(t, mcpFeedback(deps), "feedback", map[string]interface{}{
		"question_id": "missing",
		"rating":      3,
	})
	if !result.IsError {
		t.Error("expected error for unknown question")
	}
}

func TestMCPResource_GraphStats(t *testing.T) {
	deps := newTestMCPDeps(t)
	h := mcpResourceGraphStats(deps)

	contents, err := h(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "ltiqa://graph/stats"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var st provenance.GraphStats
	if err := json.Unmarshal([]byte(tc.Text), &st); err != nil {
		t.Fatalf("failed to parse stats: %v", err)
	}
	if st.TotalTriples == 0 {
		t.Error("TotalTriples = 0")
	}
}

func TestNewMCPServer_RegistersTools(t *testing.T) {
	deps := newTestMCPDeps(t)
	if s := NewMCPServer(deps, "test"); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
