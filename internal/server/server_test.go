package server

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/terminus/internal/enrich"
	"github.com/ppiankov/terminus/internal/extract"
	"github.com/ppiankov/terminus/internal/knowledge"
	"github.com/ppiankov/terminus/internal/llm"
	"github.com/ppiankov/terminus/internal/llm/llmtest"
	"github.com/ppiankov/terminus/internal/model"
	"github.com/ppiankov/terminus/internal/store"
	"github.com/ppiankov/terminus/internal/workflow"
)

// pages is a knowledge source that only knows exact titles
type pages map[string]string

func (p pages) Name() string { return "pages" }

func (p pages) Search(context.Context, string, int) ([]knowledge.SearchResult, error) {
	return nil, nil
}

func (p pages) Summary(_ context.Context, title string) (string, error) {
	if text, ok := p[title]; ok {
		return text, nil
	}
	return "", knowledge.ErrPageNotFound
}

func scriptedLLM() *llmtest.Provider {
	return &llmtest.Provider{
		Respond: func(req llm.CompletionRequest) (string, error) {
			switch req.SchemaName {
			case enrich.FollowUpSchemaName:
				return `{"follow_ups": [{"question": "What is a coupon?", "related_term": "coupon"}]}`, nil
			case enrich.VerdictSchemaName:
				return `{"is_valid": true, "confidence": 0.9, "reasoning": "accurate"}`, nil
			case extract.ExtractionSchemaName:
				return `{"terms": [{"text": "interest rates"}, {"text": "bond yields"}, {"text": "weather"}]}`, nil
			case extract.CritiqueSchemaName:
				relevant := !strings.HasSuffix(req.User, "weather")
				if relevant {
					return `{"term": "x", "is_relevant": true, "reason": "finance"}`, nil
				}
				return `{"term": "x", "is_relevant": false, "reason": "not finance"}`, nil
			}
			return "", nil
		},
	}
}

// setup creates a real MCP server over in-memory transports and returns a
// connected client session
func setup(t *testing.T) *mcp.ClientSession {
	t.Helper()

	topic := model.Topic{Domain: "finance", Keywords: []string{"financial"}}
	provider := scriptedLLM()
	source := pages{
		"bond (finance)":  "A bond is a fixed-income instrument.",
		"stock (finance)": "A stock is a share in a company.",
		"repo (finance)":  "A repo is a short-term secured loan.",
	}

	orch := workflow.New(workflow.Deps{
		Store:     store.NewMemory(),
		Resolver:  knowledge.NewResolver(source, knowledge.ResolverOptions{}, nil),
		FollowUps: enrich.NewFollowUpGenerator(provider, 3, nil),
		Validator: enrich.NewDefinitionValidator(provider, nil),
		Extractor: extract.NewTermExtractor(provider, 2, nil),
		Topic:     topic,
	}, nil)
	srv := New(orch, "test", nil)

	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	if _, err := srv.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func call(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text, result.IsError
}

func callOK(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	text, isError := call(t, session, name, args)
	if isError {
		t.Fatalf("CallTool(%s) returned error: %s", name, text)
	}
	return text
}

func callErr(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	text, isError := call(t, session, name, args)
	if !isError {
		t.Fatalf("CallTool(%s): expected error but got success: %s", name, text)
	}
	return text
}

func TestListTools(t *testing.T) {
	session := setup(t)

	result, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	expected := []string{
		"lookup_definition", "review_candidate", "extract_terms", "submit_candidate",
		"get_candidate", "list_candidates", "delete_candidate", "precompute_terms",
	}
	names := make(map[string]bool)
	for _, tool := range result.Tools {
		names[tool.Name] = true
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("Missing tool: %s", name)
		}
	}
	if len(result.Tools) != len(expected) {
		t.Errorf("Expected %d tools, got %d", len(expected), len(result.Tools))
	}
}

func TestCandidateWorkflow(t *testing.T) {
	session := setup(t)

	// Lookup creates a candidate
	text := callOK(t, session, "lookup_definition", map[string]any{"term": "Bond"})
	var lookup workflow.LookupResult
	if err := json.Unmarshal([]byte(text), &lookup); err != nil {
		t.Fatalf("parse lookup: %v", err)
	}
	if lookup.Source != model.SourceCandidate || lookup.Status != model.StatusUnderReview {
		t.Errorf("unexpected lookup: %+v", lookup)
	}
	if len(lookup.FollowUps) != 1 || lookup.FollowUps[0].RelatedTerm != "coupon" {
		t.Errorf("unexpected follow-ups: %+v", lookup.FollowUps)
	}

	// The review queue holds it
	text = callOK(t, session, "list_candidates", map[string]any{"status": "under_review"})
	var queue []model.CandidateEntry
	if err := json.Unmarshal([]byte(text), &queue); err != nil {
		t.Fatalf("parse list: %v", err)
	}
	if len(queue) != 1 || queue[0].Term != "bond" {
		t.Errorf("unexpected queue: %+v", queue)
	}

	// Approve and look up again
	callOK(t, session, "review_candidate", map[string]any{"term": "bond", "approve": true})
	text = callOK(t, session, "lookup_definition", map[string]any{"term": "bond"})
	if err := json.Unmarshal([]byte(text), &lookup); err != nil {
		t.Fatalf("parse lookup: %v", err)
	}
	if lookup.Source != model.SourceOfficial {
		t.Errorf("expected official entry after approval, got %+v", lookup)
	}

	// Candidate is gone
	msg := callErr(t, session, "get_candidate", map[string]any{"term": "bond"})
	if !strings.HasPrefix(msg, "not_found:") {
		t.Errorf("expected not_found, got %q", msg)
	}
}

func TestRejectAndResubmit(t *testing.T) {
	session := setup(t)

	callOK(t, session, "lookup_definition", map[string]any{"term": "stock"})
	text := callOK(t, session, "review_candidate", map[string]any{"term": "stock", "approve": false})
	if !strings.Contains(text, "No reason provided") {
		t.Errorf("expected the default reason, got %s", text)
	}

	msg := callErr(t, session, "review_candidate", map[string]any{"term": "stock", "approve": true})
	if !strings.HasPrefix(msg, "conflict:") {
		t.Errorf("expected conflict for a rejected candidate, got %q", msg)
	}

	callOK(t, session, "delete_candidate", map[string]any{"term": "stock"})
	text = callOK(t, session, "submit_candidate", map[string]any{"term": "stock", "definition": "Equity in a firm."})
	var c model.CandidateEntry
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		t.Fatalf("parse submit: %v", err)
	}
	if c.Status != model.StatusUnderReview || c.Definition != "Equity in a firm." {
		t.Errorf("unexpected resubmitted candidate: %+v", c)
	}
}

func TestErrorKinds(t *testing.T) {
	session := setup(t)

	tests := []struct {
		name   string
		tool   string
		args   map[string]any
		prefix string
	}{
		{name: "unresolvable term", tool: "lookup_definition", args: map[string]any{"term": "mystery"}, prefix: "not_found:"},
		{name: "approve missing", tool: "review_candidate", args: map[string]any{"term": "derivative", "approve": true}, prefix: "not_found:"},
		{name: "empty term", tool: "lookup_definition", args: map[string]any{"term": " "}, prefix: "invalid_term:"},
		{name: "bad status", tool: "list_candidates", args: map[string]any{"status": "approved"}, prefix: "internal:"},
		{name: "nothing to precompute", tool: "precompute_terms", args: map[string]any{}, prefix: "Either terms or text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := callErr(t, session, tt.tool, tt.args)
			if !strings.HasPrefix(msg, tt.prefix) {
				t.Errorf("message %q does not start with %q", msg, tt.prefix)
			}
		})
	}
}

func TestExtractTerms(t *testing.T) {
	session := setup(t)

	text := callOK(t, session, "extract_terms", map[string]any{
		"text": "Rising interest rates affect bond yields and the weather today.",
	})
	var result extract.Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		t.Fatalf("parse extract: %v", err)
	}

	kept := strings.Join(result.Terms, ",")
	if !strings.Contains(kept, "interest rates") || !strings.Contains(kept, "bond yields") {
		t.Errorf("missing relevant terms: %v", result.Terms)
	}
	if strings.Contains(kept, "weather") {
		t.Errorf("weather should be excluded: %v", result.Terms)
	}
}

func TestPrecomputeTerms(t *testing.T) {
	session := setup(t)

	text := callOK(t, session, "precompute_terms", map[string]any{"terms": []any{"bond", "repo", "mystery"}})
	var report workflow.PrecomputeReport
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		t.Fatalf("parse precompute: %v", err)
	}
	if len(report.Added) != 2 || len(report.Failed) != 1 || report.Failed[0].Kind != "not_found" {
		t.Errorf("unexpected report: %+v", report)
	}
}
