// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ppiankov/terminus/internal/llm"
)

// Provider is a thread-safe fake llm.Provider.
//
// Replies are chosen in this order: Respond when set, Err when set,
// then Responses in sequence. Every request is recorded.
//
//	fake := &llmtest.Provider{
//	    Respond: func(req llm.CompletionRequest) (string, error) {
//	        if req.SchemaName == "term_critique" {
//	            return `{"is_relevant": true, "reason": "core concept"}`, nil
//	        }
//	        return `{"terms": ["bond"]}`, nil
//	    },
//	}
type Provider struct {
	Respond   func(req llm.CompletionRequest) (string, error)
	Responses []string
	Err       error

	mu    sync.Mutex
	calls []llm.CompletionRequest
	next  int
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Name() string { return "fake" }

func (p *Provider) IsAvailable(context.Context) bool { return true }

// Complete implements llm.Provider
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	respond := p.Respond
	var scripted string
	var haveScripted bool
	if respond == nil && p.Err == nil && p.next < len(p.Responses) {
		scripted, haveScripted = p.Responses[p.next], true
		p.next++
	}
	err := p.Err
	p.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	switch {
	case respond != nil:
		content, err := respond(req)
		if err != nil {
			return nil, err
		}
		return &llm.CompletionResponse{Content: content, Model: "fake-model"}, nil
	case err != nil:
		return nil, err
	case haveScripted:
		return &llm.CompletionResponse{Content: scripted, Model: "fake-model"}, nil
	default:
		return nil, fmt.Errorf("llmtest: no response scripted for %s", req.SchemaName)
	}
}

// Calls returns a copy of every recorded request
func (p *Provider) Calls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.calls...)
}

// CallCount returns the number of recorded requests
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// CallsFor returns the recorded requests for one schema
func (p *Provider) CallsFor(schemaName string) []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []llm.CompletionRequest
	for _, c := range p.calls {
		if c.SchemaName == schemaName {
			out = append(out, c)
		}
	}
	return out
}
