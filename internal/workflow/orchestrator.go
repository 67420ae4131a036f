// Package workflow is the candidate state machine: lookups create
// candidates from resolved and enriched definitions, reviews promote or
// reject them.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/terminus/internal/extract"
	"github.com/ppiankov/terminus/internal/knowledge"
	"github.com/ppiankov/terminus/internal/model"
	"github.com/ppiankov/terminus/internal/store"
	"github.com/ppiankov/terminus/internal/worker"
)

// DefaultRejectionReason is stored when a reviewer rejects without a reason
const DefaultRejectionReason = "No reason provided"

// Resolver finds a definition for a term
type Resolver interface {
	Resolve(ctx context.Context, term string, topic model.Topic) (*knowledge.Resolution, error)
}

// FollowUpGenerator proposes follow-up questions for a definition
type FollowUpGenerator interface {
	Generate(ctx context.Context, term, definition string, topic model.Topic) (model.FollowUps, error)
}

// Validator judges a definition. Its verdict is advisory.
type Validator interface {
	Validate(ctx context.Context, term, definition string, topic model.Topic) (model.ValidationVerdict, error)
}

// Extractor finds relevant terms in text
type Extractor interface {
	Extract(ctx context.Context, text string, topic model.Topic) (*extract.Result, error)
}

// Deps are the collaborators of an Orchestrator. Validator may be nil.
type Deps struct {
	Store     store.Store
	Resolver  Resolver
	FollowUps FollowUpGenerator
	Validator Validator
	Extractor Extractor
	Topic     model.Topic

	// PrecomputeWorkers bounds concurrent lookups in Precompute
	PrecomputeWorkers int
}

// Orchestrator coordinates stores and collaborators. It holds no state of
// its own; every call re-reads the stores.
type Orchestrator struct {
	deps   Deps
	logger *zap.Logger
}

// New creates an orchestrator
func New(deps Deps, logger *zap.Logger) *Orchestrator {
	if deps.PrecomputeWorkers <= 0 {
		deps.PrecomputeWorkers = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, logger: logger}
}

// Topic returns the configured topic
func (o *Orchestrator) Topic() model.Topic {
	return o.deps.Topic
}

// LookupResult is what a lookup answers: the entry and the store it is in
type LookupResult struct {
	Source     model.Source    `json:"source"`
	Term       string          `json:"term"`
	Definition string          `json:"definition"`
	FollowUps  model.FollowUps `json:"follow_ups"`
	Status     model.Status    `json:"status,omitempty"` // Candidates only
	Reason     string          `json:"reason,omitempty"`
}

func officialResult(e *model.OfficialEntry) *LookupResult {
	return &LookupResult{
		Source:     model.SourceOfficial,
		Term:       e.Term,
		Definition: e.Definition,
		FollowUps:  e.FollowUps.OrEmpty(),
	}
}

func candidateResult(c *model.CandidateEntry) *LookupResult {
	return &LookupResult{
		Source:     model.SourceCandidate,
		Term:       c.Term,
		Definition: c.Definition,
		FollowUps:  c.FollowUps.OrEmpty(),
		Status:     c.Status,
		Reason:     c.Reason,
	}
}

func (o *Orchestrator) requestLogger(op, term string) *zap.Logger {
	return o.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("op", op),
		zap.String("term", term),
	)
}

// Lookup returns the stored entry for term, official first, then candidate.
// When neither store has it, the term is resolved, enriched and stored as
// an under-review candidate. Rejected candidates are returned as they are.
func (o *Orchestrator) Lookup(ctx context.Context, term string) (*LookupResult, error) {
	result, _, err := o.lookup(ctx, term)
	return result, err
}

func (o *Orchestrator) lookup(ctx context.Context, term string) (*LookupResult, bool, error) {
	key, err := model.NormalizeTerm(term)
	if err != nil {
		return nil, false, err
	}
	log := o.requestLogger("lookup", key)

	if result, err := o.find(ctx, key); err == nil {
		log.Debug("found stored entry", zap.String("source", string(result.Source)))
		return result, false, nil
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, false, err
	}

	resolution, err := o.deps.Resolver.Resolve(ctx, key, o.deps.Topic)
	if err != nil {
		log.Info("term not resolved", zap.Error(err))
		return nil, false, fmt.Errorf("resolve %q: %w", key, err)
	}
	log.Debug("term resolved",
		zap.String("title", resolution.Title),
		zap.String("strategy", string(resolution.Strategy)),
	)

	candidate, err := o.enrich(ctx, log, key, resolution.Definition)
	if err != nil {
		return nil, false, err
	}

	if err := o.deps.Store.InsertCandidate(ctx, *candidate); err != nil {
		if !errors.Is(err, model.ErrDuplicateKey) {
			return nil, false, err
		}
		// Another request stored the term first; answer with its entry
		log.Info("candidate created concurrently, re-reading")
		result, err := o.find(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("re-read %q after duplicate insert: %w", key, err)
		}
		return result, false, nil
	}

	log.Info("candidate created", zap.Int("follow_ups", len(candidate.FollowUps)))
	return candidateResult(candidate), true, nil
}

// find reads the official store, then the candidate store
func (o *Orchestrator) find(ctx context.Context, key string) (*LookupResult, error) {
	official, err := o.deps.Store.GetOfficial(ctx, key)
	if err == nil {
		return officialResult(official), nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	candidate, err := o.deps.Store.GetCandidate(ctx, key)
	if err != nil {
		return nil, err
	}
	return candidateResult(candidate), nil
}

// enrich builds a complete under-review candidate or fails as a whole
func (o *Orchestrator) enrich(ctx context.Context, log *zap.Logger, key, definition string) (*model.CandidateEntry, error) {
	followUps, err := o.deps.FollowUps.Generate(ctx, key, definition, o.deps.Topic)
	if err != nil {
		log.Warn("follow-up generation failed", zap.Error(err))
		return nil, err
	}

	if o.deps.Validator != nil {
		verdict, err := o.deps.Validator.Validate(ctx, key, definition, o.deps.Topic)
		if err != nil {
			log.Warn("definition validation failed", zap.Error(err))
			return nil, err
		}
		log.Info("definition verdict",
			zap.Bool("is_valid", verdict.IsValid),
			zap.Float64("confidence", verdict.Confidence),
			zap.String("reasoning", verdict.Reasoning),
		)
	}

	return &model.CandidateEntry{
		Term:       key,
		Definition: definition,
		FollowUps:  followUps.OrEmpty(),
		Status:     model.StatusUnderReview,
	}, nil
}

// Decision is the outcome of a review
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ReviewResult confirms a review
type ReviewResult struct {
	Term     string   `json:"term"`
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
}

// Review approves or rejects an under-review candidate. Approval moves it to
// the official store; rejection keeps it with a reason. A missing candidate
// is model.ErrNotFound; a rejected one is model.ErrInvalidTransition.
func (o *Orchestrator) Review(ctx context.Context, term string, approve bool, reason string) (*ReviewResult, error) {
	key, err := model.NormalizeTerm(term)
	if err != nil {
		return nil, err
	}
	log := o.requestLogger("review", key)

	candidate, err := o.deps.Store.GetCandidate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("review %q: %w", key, err)
	}
	if candidate.Status != model.StatusUnderReview {
		return nil, fmt.Errorf("review %q: candidate is %s: %w", key, candidate.Status, model.ErrInvalidTransition)
	}

	if !approve {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = DefaultRejectionReason
		}
		if err := o.deps.Store.UpdateCandidateStatus(ctx, key, model.StatusRejected, reason); err != nil {
			return nil, fmt.Errorf("reject %q: %w", key, err)
		}
		log.Info("candidate rejected", zap.String("reason", reason))
		return &ReviewResult{Term: key, Decision: DecisionRejected, Reason: reason}, nil
	}

	if err := o.promote(ctx, log, candidate); err != nil {
		return nil, fmt.Errorf("approve %q: %w", key, err)
	}
	log.Info("candidate promoted")
	return &ReviewResult{Term: key, Decision: DecisionApproved}, nil
}

// promote copies the candidate into the official store and removes it.
// Without an atomic Promote the insert always precedes the delete.
func (o *Orchestrator) promote(ctx context.Context, log *zap.Logger, candidate *model.CandidateEntry) error {
	if p, ok := o.deps.Store.(store.Promoter); ok {
		_, err := p.Promote(ctx, candidate.Term)
		return err
	}

	if err := o.deps.Store.InsertOfficial(ctx, candidate.Promote()); err != nil {
		if !errors.Is(err, model.ErrDuplicateKey) {
			return err
		}
		// An earlier promotion inserted but never deleted
		log.Warn("official entry already present, finishing promotion")
	}
	if err := o.deps.Store.DeleteCandidate(ctx, candidate.Term); err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}
	return nil
}

// ExtractTerms returns the terms in text that are relevant to the domain.
// An empty domain uses the configured topic.
func (o *Orchestrator) ExtractTerms(ctx context.Context, text, domain string) (*extract.Result, error) {
	topic := o.deps.Topic
	if d := strings.TrimSpace(domain); d != "" && !strings.EqualFold(d, topic.Domain) {
		topic = model.Topic{Domain: d}
	}
	log := o.logger.With(zap.String("request_id", uuid.NewString()), zap.String("op", "extract"))

	result, err := o.deps.Extractor.Extract(ctx, text, topic)
	if err != nil {
		log.Warn("extraction failed", zap.Error(err))
		return nil, err
	}
	log.Info("extraction finished", zap.Strings("terms", result.Terms))
	return result, nil
}

// Submit stores a candidate directly. Without a definition the term is
// resolved first. A term already stored in either collection is
// model.ErrDuplicateKey.
func (o *Orchestrator) Submit(ctx context.Context, term, definition string) (*model.CandidateEntry, error) {
	key, err := model.NormalizeTerm(term)
	if err != nil {
		return nil, err
	}
	log := o.requestLogger("submit", key)

	if existing, err := o.find(ctx, key); err == nil {
		return nil, fmt.Errorf("submit %q: already %s: %w", key, existing.Source, model.ErrDuplicateKey)
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	definition = strings.TrimSpace(definition)
	if definition == "" {
		resolution, err := o.deps.Resolver.Resolve(ctx, key, o.deps.Topic)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", key, err)
		}
		definition = resolution.Definition
	}

	candidate, err := o.enrich(ctx, log, key, definition)
	if err != nil {
		return nil, err
	}
	if err := o.deps.Store.InsertCandidate(ctx, *candidate); err != nil {
		return nil, fmt.Errorf("submit %q: %w", key, err)
	}

	log.Info("candidate submitted")
	return candidate, nil
}

// GetCandidate returns the candidate for term
func (o *Orchestrator) GetCandidate(ctx context.Context, term string) (*model.CandidateEntry, error) {
	key, err := model.NormalizeTerm(term)
	if err != nil {
		return nil, err
	}
	return o.deps.Store.GetCandidate(ctx, key)
}

// DeleteCandidate removes a candidate so the term can be looked up afresh
func (o *Orchestrator) DeleteCandidate(ctx context.Context, term string) error {
	key, err := model.NormalizeTerm(term)
	if err != nil {
		return err
	}
	if err := o.deps.Store.DeleteCandidate(ctx, key); err != nil {
		return fmt.Errorf("delete candidate %q: %w", key, err)
	}
	o.requestLogger("delete_candidate", key).Info("candidate deleted")
	return nil
}

// ListCandidates lists candidates, optionally only those with status
func (o *Orchestrator) ListCandidates(ctx context.Context, status model.Status) ([]model.CandidateEntry, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q (use %s or %s)", status, model.StatusUnderReview, model.StatusRejected)
	}
	return o.deps.Store.ListCandidates(ctx, status)
}

// PrecomputeTerm implements worker.Precomputer with Lookup
func (o *Orchestrator) PrecomputeTerm(ctx context.Context, term string) (model.Source, bool, error) {
	result, added, err := o.lookup(ctx, term)
	if err != nil {
		return "", false, err
	}
	return result.Source, added, nil
}

var _ worker.Precomputer = (*Orchestrator)(nil)
