// Package enrich adds LLM-generated material to resolved definitions:
// follow-up questions and an advisory validation verdict.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/ppiankov/terminus/internal/llm"
	"github.com/ppiankov/terminus/internal/model"
)

// FollowUpSchemaName names the follow-up response schema
const FollowUpSchemaName = "follow_ups"

var followUpSchema = &jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"follow_ups": {
			Type:        jsonschema.Array,
			Description: "Clarifying questions, each about a sub-term that appears in the definition. May be empty.",
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"question":     {Type: jsonschema.String, Description: "A concise question that helps the reader explore the sub-term."},
					"related_term": {Type: jsonschema.String, Description: "The sub-term, as it appears in the definition."},
				},
				Required:             []string{"question", "related_term"},
				AdditionalProperties: false,
			},
		},
	},
	Required:             []string{"follow_ups"},
	AdditionalProperties: false,
}

type followUpReply struct {
	FollowUps *[]followUpItem `json:"follow_ups"`
}

type followUpItem struct {
	Question    *string `json:"question"`
	RelatedTerm *string `json:"related_term"`
}

// Validate implements llm.Schema
func (r *followUpReply) Validate() error {
	if r.FollowUps == nil {
		return errors.New("follow_ups is required")
	}
	for i, item := range *r.FollowUps {
		if item.Question == nil || strings.TrimSpace(*item.Question) == "" {
			return fmt.Errorf("follow_ups[%d].question is required", i)
		}
		if item.RelatedTerm == nil || strings.TrimSpace(*item.RelatedTerm) == "" {
			return fmt.Errorf("follow_ups[%d].related_term is required", i)
		}
	}
	return nil
}

// FollowUpGenerator asks an LLM for clarifying questions about a definition
type FollowUpGenerator struct {
	provider llm.Provider
	max      int
	logger   *zap.Logger
}

// NewFollowUpGenerator keeps at most max follow-ups per definition (max <= 0 means 3)
func NewFollowUpGenerator(provider llm.Provider, max int, logger *zap.Logger) *FollowUpGenerator {
	if max <= 0 {
		max = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FollowUpGenerator{provider: provider, max: max, logger: logger}
}

// Generate returns the follow-ups in generation order. An empty list is a
// valid answer; a reply that does not fit the schema is an error.
func (g *FollowUpGenerator) Generate(ctx context.Context, term, definition string, topic model.Topic) (model.FollowUps, error) {
	req := llm.CompletionRequest{
		System: fmt.Sprintf(
			"You are an assistant that extracts short, meaningful %s sub-terms from definitions. "+
				"Given a definition, return up to %d concise follow-up questions the reader may want to explore, "+
				"each tied to a sub-term that appears in the definition. "+
				"Return an empty list when no sub-term is worth asking about.",
			domainOrGeneral(topic), g.max),
		User:       fmt.Sprintf("Definition of '%s':\n%s", term, definition),
		SchemaName: FollowUpSchemaName,
		Schema:     followUpSchema,
	}

	var reply followUpReply
	if err := llm.CompleteStructured(ctx, g.provider, req, &reply); err != nil {
		return nil, fmt.Errorf("generate follow-ups for %q: %w", term, err)
	}

	followUps := make(model.FollowUps, 0, len(*reply.FollowUps))
	for _, item := range *reply.FollowUps {
		if len(followUps) == g.max {
			break
		}
		followUps = append(followUps, model.FollowUp{
			Question:    strings.TrimSpace(*item.Question),
			RelatedTerm: strings.TrimSpace(*item.RelatedTerm),
		})
	}

	g.logger.Debug("follow-ups generated",
		zap.String("term", term),
		zap.Int("count", len(followUps)),
	)
	return followUps, nil
}

func domainOrGeneral(topic model.Topic) string {
	if topic.Domain == "" {
		return "domain"
	}
	return topic.Domain
}
