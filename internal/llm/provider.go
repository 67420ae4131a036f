package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete runs one chat completion constrained to req.Schema
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is a single system+user exchange with a declared response schema
type CompletionRequest struct {
	// System is the fixed role instruction
	System string

	// User is the per-call message
	User string

	// SchemaName identifies the response schema (letters, digits, '_' and '-')
	SchemaName string

	// Schema is the JSON schema the reply must conform to
	Schema *jsonschema.Definition

	// Model overrides the provider's configured model
	Model string

	// Temperature for sampling; zero keeps output deterministic where supported
	Temperature float32

	// MaxTokens limits the response length
	MaxTokens int
}

// CompletionResponse is the raw provider reply
type CompletionResponse struct {
	// Content is the reply text, expected to hold one JSON object
	Content string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout bounds every single completion call
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Temperature default for requests that do not set one
	Temperature float32

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		Timeout:   30,
		MaxTokens: 1000,
	}
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Second
	}
	return fallback
}

func (c Config) maxTokens(req CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 1000
}

func (c Config) temperature(req CompletionRequest) float32 {
	if req.Temperature != 0 {
		return req.Temperature
	}
	return c.Temperature
}

// schemaInstruction renders the response schema as a prompt suffix for
// providers without native structured output
func schemaInstruction(req CompletionRequest) (string, error) {
	if req.Schema == nil {
		return "", nil
	}
	data, err := json.Marshal(req.Schema)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return fmt.Sprintf("\n\nRespond with a single JSON object and nothing else. It must conform to this JSON schema (%s):\n%s", req.SchemaName, data), nil
}
