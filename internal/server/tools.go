package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/terminus/internal/model"
	"github.com/ppiankov/terminus/internal/workflow"
)

// Tools holds what the tool handlers need
type Tools struct {
	Orchestrator *workflow.Orchestrator
	Logger       *zap.Logger
}

// --- Input types ---

type TermInput struct {
	Term string `json:"term" jsonschema:"The term, any casing"`
}

type ReviewCandidateInput struct {
	Term    string `json:"term" jsonschema:"The candidate term"`
	Approve bool   `json:"approve" jsonschema:"true promotes the candidate, false rejects it"`
	Reason  string `json:"reason,omitempty" jsonschema:"Why the candidate is rejected"`
}

type ExtractTermsInput struct {
	Text   string `json:"text" jsonschema:"Text or HTML to extract terms from"`
	Domain string `json:"domain,omitempty" jsonschema:"Topic domain, defaults to the configured one"`
}

type SubmitCandidateInput struct {
	Term       string `json:"term" jsonschema:"The term to submit"`
	Definition string `json:"definition,omitempty" jsonschema:"Definition text; resolved from the knowledge source when omitted"`
}

type ListCandidatesInput struct {
	Status string `json:"status,omitempty" jsonschema:"Filter by status: under_review or rejected"`
}

type PrecomputeTermsInput struct {
	Terms []string `json:"terms,omitempty" jsonschema:"Terms to precompute"`
	Text  string   `json:"text,omitempty" jsonschema:"Text to extract terms from when no terms are given"`
}

// --- Handlers ---

func (t *Tools) LookupDefinition(ctx context.Context, _ *mcp.CallToolRequest, input TermInput) (*mcp.CallToolResult, any, error) {
	result, err := t.Orchestrator.Lookup(ctx, input.Term)
	if err != nil {
		return t.failure("lookup", input.Term, err), nil, nil
	}
	return toolJSON(result)
}

func (t *Tools) ReviewCandidate(ctx context.Context, _ *mcp.CallToolRequest, input ReviewCandidateInput) (*mcp.CallToolResult, any, error) {
	result, err := t.Orchestrator.Review(ctx, input.Term, input.Approve, input.Reason)
	if err != nil {
		return t.failure("review", input.Term, err), nil, nil
	}
	return toolJSON(result)
}

func (t *Tools) ExtractTerms(ctx context.Context, _ *mcp.CallToolRequest, input ExtractTermsInput) (*mcp.CallToolResult, any, error) {
	if input.Text == "" {
		return toolError("Text is required"), nil, nil
	}
	result, err := t.Orchestrator.ExtractTerms(ctx, input.Text, input.Domain)
	if err != nil {
		return t.failure("extract", "", err), nil, nil
	}
	return toolJSON(result)
}

func (t *Tools) SubmitCandidate(ctx context.Context, _ *mcp.CallToolRequest, input SubmitCandidateInput) (*mcp.CallToolResult, any, error) {
	candidate, err := t.Orchestrator.Submit(ctx, input.Term, input.Definition)
	if err != nil {
		return t.failure("submit", input.Term, err), nil, nil
	}
	return toolJSON(candidate)
}

func (t *Tools) GetCandidate(ctx context.Context, _ *mcp.CallToolRequest, input TermInput) (*mcp.CallToolResult, any, error) {
	candidate, err := t.Orchestrator.GetCandidate(ctx, input.Term)
	if err != nil {
		return t.failure("get candidate", input.Term, err), nil, nil
	}
	return toolJSON(candidate)
}

func (t *Tools) ListCandidates(ctx context.Context, _ *mcp.CallToolRequest, input ListCandidatesInput) (*mcp.CallToolResult, any, error) {
	candidates, err := t.Orchestrator.ListCandidates(ctx, model.Status(input.Status))
	if err != nil {
		return t.failure("list candidates", "", err), nil, nil
	}
	return toolJSON(candidates)
}

func (t *Tools) DeleteCandidate(ctx context.Context, _ *mcp.CallToolRequest, input TermInput) (*mcp.CallToolResult, any, error) {
	if err := t.Orchestrator.DeleteCandidate(ctx, input.Term); err != nil {
		return t.failure("delete candidate", input.Term, err), nil, nil
	}
	return toolText(fmt.Sprintf("Candidate %q deleted.", input.Term)), nil, nil
}

func (t *Tools) PrecomputeTerms(ctx context.Context, _ *mcp.CallToolRequest, input PrecomputeTermsInput) (*mcp.CallToolResult, any, error) {
	if len(input.Terms) > 0 {
		return toolJSON(t.Orchestrator.PrecomputeTerms(ctx, input.Terms))
	}
	if input.Text == "" {
		return toolError("Either terms or text is required"), nil, nil
	}
	report, err := t.Orchestrator.Precompute(ctx, input.Text)
	if err != nil {
		return t.failure("precompute", "", err), nil, nil
	}
	return toolJSON(report)
}

// --- Helpers ---

// failure reports err as a tool error prefixed with its kind, so clients can
// tell a missing term from a retryable provider failure
func (t *Tools) failure(op, term string, err error) *mcp.CallToolResult {
	kind := model.ErrorKind(err)
	t.Logger.Debug("tool call failed",
		zap.String("op", op),
		zap.String("term", term),
		zap.String("kind", kind),
		zap.Error(err),
	)
	return toolError("%s: %s failed: %v", kind, op, err)
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
