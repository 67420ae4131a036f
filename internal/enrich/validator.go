package enrich

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/ppiankov/terminus/internal/llm"
	"github.com/ppiankov/terminus/internal/model"
)

// VerdictSchemaName names the validation response schema
const VerdictSchemaName = "definition_verdict"

var verdictSchema = &jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"is_valid":   {Type: jsonschema.Boolean, Description: "Whether the definition is factually correct in the domain context."},
		"confidence": {Type: jsonschema.Number, Description: "Confidence in the verdict, from 0 to 1."},
		"reasoning":  {Type: jsonschema.String, Description: "Short reasoning for the verdict."},
	},
	Required:             []string{"is_valid", "confidence", "reasoning"},
	AdditionalProperties: false,
}

type verdictReply struct {
	IsValid    *bool    `json:"is_valid"`
	Confidence *float64 `json:"confidence"`
	Reasoning  *string  `json:"reasoning"`
}

// Validate implements llm.Schema
func (r *verdictReply) Validate() error {
	switch {
	case r.IsValid == nil:
		return errors.New("is_valid is required")
	case r.Confidence == nil:
		return errors.New("confidence is required")
	case *r.Confidence < 0 || *r.Confidence > 1:
		return fmt.Errorf("confidence %v outside [0,1]", *r.Confidence)
	case r.Reasoning == nil:
		return errors.New("reasoning is required")
	}
	return nil
}

// DefinitionValidator asks an LLM whether a definition is plausible and on-topic
type DefinitionValidator struct {
	provider llm.Provider
	logger   *zap.Logger
}

func NewDefinitionValidator(provider llm.Provider, logger *zap.Logger) *DefinitionValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefinitionValidator{provider: provider, logger: logger}
}

// Validate returns the model's verdict; it never retries
func (v *DefinitionValidator) Validate(ctx context.Context, term, definition string, topic model.Topic) (model.ValidationVerdict, error) {
	domain := domainOrGeneral(topic)
	req := llm.CompletionRequest{
		System: fmt.Sprintf(
			"You are a meticulous %[1]s expert and editor. "+
				"Your task is to validate whether a candidate definition for a %[1]s term is factually accurate. "+
				"Base your judgment strictly on the %[1]s context, not general or non-%[1]s meanings.",
			domain),
		User: fmt.Sprintf(
			"Please evaluate the following candidate definition for the %s term '%s':\n\n\"\"\"\n%s\n\"\"\"\n\n"+
				"Is this definition factually accurate in the context of %s?",
			domain, term, definition, domain),
		SchemaName: VerdictSchemaName,
		Schema:     verdictSchema,
	}

	var reply verdictReply
	if err := llm.CompleteStructured(ctx, v.provider, req, &reply); err != nil {
		return model.ValidationVerdict{}, fmt.Errorf("validate definition of %q: %w", term, err)
	}

	verdict := model.ValidationVerdict{
		IsValid:    *reply.IsValid,
		Confidence: *reply.Confidence,
		Reasoning:  *reply.Reasoning,
	}
	v.logger.Debug("definition validated",
		zap.String("term", term),
		zap.Bool("is_valid", verdict.IsValid),
		zap.Float64("confidence", verdict.Confidence),
	)
	return verdict, nil
}
