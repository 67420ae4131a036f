package knowledge

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/terminus/internal/model"
)

// Strategy names the resolver step that produced a definition
type Strategy string

const (
	StrategyTopicTitle Strategy = "topic_title"
	StrategySearch     Strategy = "search"
	StrategyContext    Strategy = "context_search"
)

// Resolution is a resolved definition and where it came from
type Resolution struct {
	Title      string   `json:"title"`
	Definition string   `json:"definition"`
	Strategy   Strategy `json:"strategy"`
}

// ResolverOptions tunes the fallback chain
type ResolverOptions struct {
	// Timeout bounds every single source call
	Timeout time.Duration
	// SearchResults is the result count of the plain search
	SearchResults int
	// ContextResults is the result count of the context-hint search
	ContextResults int
}

// Resolver turns a term into a topic-focused definition by trying, in order:
// the "{term} ({domain})" page, a plain search preferring topic matches, and
// a search with the topic's context hint.
type Resolver struct {
	source Source
	opts   ResolverOptions
	logger *zap.Logger
}

// NewResolver creates a resolver over source
func NewResolver(source Source, opts ResolverOptions, logger *zap.Logger) *Resolver {
	if opts.SearchResults <= 0 {
		opts.SearchResults = 5
	}
	if opts.ContextResults <= 0 {
		opts.ContextResults = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{source: source, opts: opts, logger: logger}
}

// Resolve returns the first definition any strategy finds.
//
// It fails with model.ErrNotFound when every strategy misses, or with a
// *model.ProviderError when at least one strategy failed on the source itself.
func (r *Resolver) Resolve(ctx context.Context, term string, topic model.Topic) (*Resolution, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, model.ErrInvalidTerm
	}

	run := &resolveRun{Resolver: r, topicPattern: TopicPattern(topic), log: r.logger.With(zap.String("term", term))}

	// 1. Explicit "{term} ({domain})" title
	if topic.Domain != "" {
		explicit := fmt.Sprintf("%s (%s)", term, topic.Domain)
		if res := run.summarize(ctx, explicit, StrategyTopicTitle); res != nil {
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	// 2. Plain search, preferring a topic match over the top hit
	var preferred string
	if results, ok := run.search(ctx, term, r.opts.SearchResults); ok && len(results) > 0 {
		preferred = run.pick(results)
		if res := run.summarize(ctx, preferred, StrategySearch); res != nil {
			return res, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3. Search with the context hint; the top hit unless it already failed
	query := strings.TrimSpace(term + " " + topic.Hint())
	if results, ok := run.search(ctx, query, r.opts.ContextResults); ok && len(results) > 0 {
		top := results[0].Title
		if top == preferred {
			run.log.Debug("context search repeated a failed candidate", zap.String("title", top))
		} else if res := run.summarize(ctx, top, StrategyContext); res != nil {
			return res, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if run.providerErr != nil {
		return nil, model.NewProviderError(r.source.Name(), run.providerErr)
	}
	run.log.Info("no definition found")
	return nil, model.ErrNotFound
}

// resolveRun carries per-call state through the strategies
type resolveRun struct {
	*Resolver
	topicPattern *regexp.Regexp
	log          *zap.Logger
	providerErr  error
}

func (run *resolveRun) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if run.opts.Timeout > 0 {
		return context.WithTimeout(ctx, run.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

func (run *resolveRun) search(ctx context.Context, query string, limit int) ([]SearchResult, bool) {
	callCtx, cancel := run.call(ctx)
	defer cancel()

	results, err := run.source.Search(callCtx, query, limit)
	if err != nil {
		run.fail("search", query, err)
		return nil, false
	}
	run.log.Debug("search", zap.String("query", query), zap.Int("results", len(results)))
	return results, true
}

// summarize fetches the summary for title. A disambiguation is resolved once,
// to the first topic-matching option or else the first option.
func (run *resolveRun) summarize(ctx context.Context, title string, strategy Strategy) *Resolution {
	text, err := run.summary(ctx, title)
	if err == nil {
		return &Resolution{Title: title, Definition: text, Strategy: strategy}
	}

	var de *DisambiguationError
	if !errors.As(err, &de) {
		run.fail("summary", title, err)
		return nil
	}

	choice := run.pickOption(de.Options)
	if choice == "" {
		run.log.Debug("disambiguation without options", zap.String("title", title))
		return nil
	}
	run.log.Debug("disambiguation resolved",
		zap.String("title", title),
		zap.String("choice", choice),
	)

	text, err = run.summary(ctx, choice)
	if err != nil {
		run.fail("summary", choice, err)
		return nil
	}
	return &Resolution{Title: choice, Definition: text, Strategy: strategy}
}

func (run *resolveRun) summary(ctx context.Context, title string) (string, error) {
	callCtx, cancel := run.call(ctx)
	defer cancel()

	text, err := run.source.Summary(callCtx, title)
	if err == nil && strings.TrimSpace(text) == "" {
		return "", ErrPageNotFound
	}
	return text, err
}

// fail records a failed step; only source failures are remembered
func (run *resolveRun) fail(op, subject string, err error) {
	if isLookupMiss(err) {
		run.log.Debug(op+" missed", zap.String("subject", subject), zap.Error(err))
		return
	}
	run.log.Warn(op+" failed", zap.String("subject", subject), zap.Error(err))
	run.providerErr = err
}

func (run *resolveRun) pick(results []SearchResult) string {
	for _, r := range results {
		if run.topicPattern != nil && (run.topicPattern.MatchString(r.Title) || run.topicPattern.MatchString(r.Snippet)) {
			return r.Title
		}
	}
	return results[0].Title
}

func (run *resolveRun) pickOption(options []string) string {
	for _, opt := range options {
		if run.topicPattern != nil && run.topicPattern.MatchString(opt) {
			return opt
		}
	}
	if len(options) > 0 {
		return options[0]
	}
	return ""
}

// TopicPattern matches any topic keyword, or the domain itself, as a whole
// word, case-insensitively. It is nil for a topic with neither.
func TopicPattern(topic model.Topic) *regexp.Regexp {
	var words []string
	for _, w := range append(append([]string(nil), topic.Keywords...), topic.Domain) {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, regexp.QuoteMeta(w))
		}
	}
	if len(words) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
}
