// Package extract finds domain terms in free text with two LLM stages:
// a permissive extraction call, then one independent critique per term.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/ppiankov/terminus/internal/llm"
	"github.com/ppiankov/terminus/internal/model"
	"github.com/ppiankov/terminus/internal/worker"
)

// Schema names, as sent to the provider
const (
	ExtractionSchemaName = "extracted_terms"
	CritiqueSchemaName   = "term_critique"
)

var extractionSchema = &jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"terms": {
			Type:        jsonschema.Array,
			Description: "Candidate terms found in the text, as written there.",
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"text": {Type: jsonschema.String, Description: "A single term identified in the input text."},
				},
				Required:             []string{"text"},
				AdditionalProperties: false,
			},
		},
	},
	Required:             []string{"terms"},
	AdditionalProperties: false,
}

var critiqueSchema = &jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"term":        {Type: jsonschema.String, Description: "The term being evaluated."},
		"is_relevant": {Type: jsonschema.Boolean, Description: "True if the term genuinely belongs to the domain."},
		"reason":      {Type: jsonschema.String, Description: "Why the term is or is not relevant."},
	},
	Required:             []string{"term", "is_relevant", "reason"},
	AdditionalProperties: false,
}

type extractionReply struct {
	Terms *[]struct {
		Text *string `json:"text"`
	} `json:"terms"`
}

func (r *extractionReply) Validate() error {
	if r.Terms == nil {
		return errors.New("terms is required")
	}
	for i, t := range *r.Terms {
		if t.Text == nil {
			return fmt.Errorf("terms[%d].text is required", i)
		}
	}
	return nil
}

type critiqueReply struct {
	Term       *string `json:"term"`
	IsRelevant *bool   `json:"is_relevant"`
	Reason     *string `json:"reason"`
}

func (r *critiqueReply) Validate() error {
	switch {
	case r.Term == nil:
		return errors.New("term is required")
	case r.IsRelevant == nil:
		return errors.New("is_relevant is required")
	case r.Reason == nil:
		return errors.New("reason is required")
	}
	return nil
}

// Result is the outcome of one extraction
type Result struct {
	// Terms are the candidates the critique kept, in extraction order
	Terms []string `json:"terms"`
	// Critiques holds every completed critique, kept or not
	Critiques []model.TermCritique `json:"critiques"`
	// Failed lists candidates whose critique errored; they are excluded
	Failed []string `json:"failed,omitempty"`
}

// TermExtractor runs the extract-then-critique pipeline
type TermExtractor struct {
	provider llm.Provider
	workers  int
	logger   *zap.Logger
}

// NewTermExtractor critiques up to workers candidates at a time
func NewTermExtractor(provider llm.Provider, workers int, logger *zap.Logger) *TermExtractor {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TermExtractor{provider: provider, workers: workers, logger: logger}
}

// Extract proposes candidate terms from text and keeps those an independent
// critique judges relevant to the topic. An extraction failure aborts the
// call; a critique failure only excludes its own candidate.
func (e *TermExtractor) Extract(ctx context.Context, text string, topic model.Topic) (*Result, error) {
	candidates, err := e.propose(ctx, prepareText(text), topic)
	if err != nil {
		return nil, err
	}

	jobs := make([]worker.Job, len(candidates))
	for i, candidate := range candidates {
		jobs[i] = &critiqueJob{extractor: e, term: candidate, topic: topic}
	}

	results := worker.Run(ctx, e.workers, jobs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{Terms: []string{}, Critiques: []model.TermCritique{}}
	for i, r := range results {
		if r == nil {
			r = &critiqueResult{err: errors.New("critique not run")}
		}
		cr := r.(*critiqueResult)
		if cr.err != nil {
			e.logger.Warn("critique failed, excluding term",
				zap.String("term", candidates[i]),
				zap.Error(cr.err),
			)
			result.Failed = append(result.Failed, candidates[i])
			continue
		}
		result.Critiques = append(result.Critiques, cr.critique)
		if cr.critique.IsRelevant {
			result.Terms = append(result.Terms, candidates[i])
		}
	}

	e.logger.Info("terms extracted",
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(result.Terms)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// propose runs the extraction stage over each chunk and merges the
// candidates, de-duplicated case-insensitively in first-seen order
func (e *TermExtractor) propose(ctx context.Context, text string, topic model.Topic) ([]string, error) {
	domain := topic.Domain
	if domain == "" {
		domain = "domain"
	}

	var candidates []string
	seen := make(map[string]bool)
	for _, chunk := range chunkText(text, maxChunkChars) {
		req := llm.CompletionRequest{
			System: fmt.Sprintf(
				"You are a professional entity extractor. Extract every %[1]s term from the text. "+
					"Prefer recall: include borderline terms, they are reviewed later. "+
					"Return each term as it appears in the text.",
				domain),
			User:       fmt.Sprintf("Extract %s terms from:\n%s", domain, chunk),
			SchemaName: ExtractionSchemaName,
			Schema:     extractionSchema,
		}

		var reply extractionReply
		if err := llm.CompleteStructured(ctx, e.provider, req, &reply); err != nil {
			return nil, fmt.Errorf("extract terms: %w", err)
		}

		for _, t := range *reply.Terms {
			term := strings.Join(strings.Fields(*t.Text), " ")
			key := strings.ToLower(term)
			if term == "" || seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, term)
		}
	}
	return candidates, nil
}

// critique asks whether one term, on its own, belongs to the domain
func (e *TermExtractor) critique(ctx context.Context, term string, topic model.Topic) (model.TermCritique, error) {
	domain := topic.Domain
	if domain == "" {
		domain = "domain"
	}
	req := llm.CompletionRequest{
		System: fmt.Sprintf(
			"You are a %[1]s analyst. Determine whether the given term is genuinely a %[1]s term. "+
				"Judge the term on its own and justify the decision concisely.",
			domain),
		User:       fmt.Sprintf("Term: %s", term),
		SchemaName: CritiqueSchemaName,
		Schema:     critiqueSchema,
	}

	var reply critiqueReply
	if err := llm.CompleteStructured(ctx, e.provider, req, &reply); err != nil {
		return model.TermCritique{}, err
	}
	return model.TermCritique{Term: term, IsRelevant: *reply.IsRelevant, Reason: *reply.Reason}, nil
}

type critiqueJob struct {
	extractor *TermExtractor
	term      string
	topic     model.Topic
}

func (j *critiqueJob) Execute(ctx context.Context) worker.Result {
	critique, err := j.extractor.critique(ctx, j.term, j.topic)
	return &critiqueResult{critique: critique, err: err}
}

type critiqueResult struct {
	critique model.TermCritique
	err      error
}

func (r *critiqueResult) GetError() error { return r.err }
