package workflow

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/terminus/internal/cache"
	"github.com/ppiankov/terminus/internal/enrich"
	"github.com/ppiankov/terminus/internal/extract"
	"github.com/ppiankov/terminus/internal/fetch"
	"github.com/ppiankov/terminus/internal/knowledge"
	"github.com/ppiankov/terminus/internal/llm"
	"github.com/ppiankov/terminus/internal/model"
	"github.com/ppiankov/terminus/internal/store"
	"github.com/ppiankov/terminus/internal/util"
	"github.com/ppiankov/terminus/internal/worker"
)

// Runtime is a fully wired orchestrator and the resources it owns
type Runtime struct {
	Orchestrator *Orchestrator
	Store        store.Store
	Provider     llm.Provider
}

// Close releases the store
func (r *Runtime) Close() error {
	if r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// Build wires every component from cfg: the knowledge source with its
// cache, limiter and robots checks, the LLM provider, and the SQLite store
func Build(cfg *model.Config, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	st, err := store.OpenSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	var validator Validator
	if cfg.Workflow.ValidateDefinitions {
		validator = enrich.NewDefinitionValidator(provider, logger.Named("validator"))
	}

	orch := New(Deps{
		Store:             st,
		Resolver:          NewResolver(cfg, logger),
		FollowUps:         enrich.NewFollowUpGenerator(provider, cfg.Workflow.MaxFollowUps, logger.Named("followups")),
		Validator:         validator,
		Extractor:         extract.NewTermExtractor(provider, cfg.Concurrency.CritiqueWorkers, logger.Named("extract")),
		Topic:             cfg.Topic,
		PrecomputeWorkers: cfg.Concurrency.PrecomputeWorkers,
	}, logger.Named("workflow"))

	return &Runtime{Orchestrator: orch, Store: st, Provider: provider}, nil
}

// NewSource builds the Wikipedia client with caching, per-host rate
// limiting and, when enabled, robots.txt checks
func NewSource(cfg *model.Config, logger *zap.Logger) *knowledge.Wikipedia {
	opts := []knowledge.WikipediaOption{
		knowledge.WithCache(cache.New(cfg.Cache)),
		knowledge.WithLimiter(worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)),
		knowledge.WithLogger(logger.Named("wikipedia")),
	}
	if cfg.Source.RespectRobots {
		opts = append(opts, knowledge.WithRobots(util.NewRobotsChecker(cfg.Source.UserAgent, cfg.Source.Timeout)))
	}
	return knowledge.NewWikipedia(cfg.Source, opts...)
}

// NewFetcher builds the page fetcher used to extract terms from URLs. It
// shares the source's user agent, limits and robots policy.
func NewFetcher(cfg *model.Config, logger *zap.Logger) *fetch.Fetcher {
	opts := []fetch.Option{
		fetch.WithLimiter(worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)),
		fetch.WithLogger(logger.Named("fetch")),
	}
	if cfg.Source.RespectRobots {
		opts = append(opts, fetch.WithRobots(util.NewRobotsChecker(cfg.Source.UserAgent, cfg.Source.Timeout)))
	}
	return fetch.New(cfg.Source.Timeout, cfg.Source.UserAgent, cfg.Source.MaxBodyBytes, opts...)
}

// NewResolver builds the resolver over NewSource
func NewResolver(cfg *model.Config, logger *zap.Logger) *knowledge.Resolver {
	return knowledge.NewResolver(NewSource(cfg, logger), knowledge.ResolverOptions{
		Timeout:        cfg.Source.Timeout,
		SearchResults:  cfg.Source.SearchResults,
		ContextResults: cfg.Source.ContextResults,
	}, logger.Named("resolver"))
}
