package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/terminus/internal/model"
)

// fakeSource answers from fixed tables and records every call
type fakeSource struct {
	searches  map[string][]SearchResult
	summaries map[string]string
	ambiguous map[string][]string
	failing   map[string]error
	missOnce  map[string]bool
	delay     time.Duration

	mu    sync.Mutex
	calls []string
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSource) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	f.record("search:" + query)
	if err := f.failing["search:"+query]; err != nil {
		return nil, err
	}
	results := f.searches[query]
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (f *fakeSource) Summary(ctx context.Context, title string) (string, error) {
	f.record("summary:" + title)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := f.failing["summary:"+title]; err != nil {
		return "", err
	}
	f.mu.Lock()
	miss := f.missOnce[title]
	delete(f.missOnce, title)
	f.mu.Unlock()
	if miss {
		return "", ErrPageNotFound
	}
	if options, ok := f.ambiguous[title]; ok {
		return "", &DisambiguationError{Title: title, Options: options}
	}
	if text, ok := f.summaries[title]; ok {
		return text, nil
	}
	return "", ErrPageNotFound
}

var financeTopic = model.Topic{Domain: "finance", Keywords: []string{"financial", "investment"}}

func TestResolve_BondPrefersTopicOption(t *testing.T) {
	source := &fakeSource{
		// The explicit "bond (finance)" title query misses
		missOnce: map[string]bool{"bond (finance)": true},
		searches: map[string][]SearchResult{
			"bond": {{Title: "Bond"}},
		},
		ambiguous: map[string][]string{
			"Bond": {"chemical bond", "bond (finance)"},
		},
		summaries: map[string]string{
			"chemical bond":  "A chemical bond is a lasting attraction between atoms.",
			"bond (finance)": "In finance, a bond is a type of security under which the issuer owes the holder a debt.",
		},
	}

	res, err := NewResolver(source, ResolverOptions{}, nil).Resolve(context.Background(), "bond", financeTopic)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Title != "bond (finance)" {
		t.Errorf("Title = %q, want bond (finance)", res.Title)
	}
	if res.Strategy != StrategySearch {
		t.Errorf("Strategy = %q, want %q", res.Strategy, StrategySearch)
	}
}

func TestResolve_SearchResultsPreferTopicMatch(t *testing.T) {
	source := &fakeSource{
		searches: map[string][]SearchResult{
			"bond": {
				{Title: "chemical bond", Snippet: "attraction between atoms"},
				{Title: "bond (finance)", Snippet: "a debt security"},
			},
		},
		summaries: map[string]string{
			"chemical bond":  "A chemical bond ...",
			"bond (finance)": "A bond is a debt security.",
		},
	}

	res, err := NewResolver(source, ResolverOptions{}, nil).Resolve(context.Background(), "bond", financeTopic)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Title != "bond (finance)" {
		t.Errorf("Title = %q, want bond (finance)", res.Title)
	}
}

func TestResolve_SnippetMatchCounts(t *testing.T) {
	source := &fakeSource{
		searches: map[string][]SearchResult{
			"yield": {
				{Title: "Yield (chemistry)", Snippet: "amount of product"},
				{Title: "Yield", Snippet: "income return on an investment"},
			},
		},
		summaries: map[string]string{"Yield": "Yield is the income return on an investment."},
	}

	res, err := NewResolver(source, ResolverOptions{}, nil).Resolve(context.Background(), "yield", financeTopic)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Title != "Yield" {
		t.Errorf("Title = %q, want Yield", res.Title)
	}
}

func TestResolve_ExplicitTitleFirst(t *testing.T) {
	source := &fakeSource{
		summaries: map[string]string{"stock (finance)": "Stock is all of the shares into which ownership is divided."},
	}

	res, err := NewResolver(source, ResolverOptions{}, nil).Resolve(context.Background(), "stock", financeTopic)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Strategy != StrategyTopicTitle {
		t.Errorf("Strategy = %q, want %q", res.Strategy, StrategyTopicTitle)
	}
	if len(source.calls) != 1 {
		t.Errorf("expected a single source call, got %v", source.calls)
	}
}

func TestResolve_FallsBackToContextSearch(t *testing.T) {
	source := &fakeSource{
		searches: map[string][]SearchResult{
			"libor":         {{Title: "Libor scandal"}},
			"libor finance": {{Title: "Libor scandal"}, {Title: "London Interbank Offered Rate"}},
			"libor banking": {{Title: "London Interbank Offered Rate"}},
		},
		summaries: map[string]string{
			"London Interbank Offered Rate": "The London Inter-Bank Offered Rate is an interest-rate average.",
		},
	}

	topic := financeTopic
	topic.ContextHint = "banking"
	res, err := NewResolver(source, ResolverOptions{}, nil).Resolve(context.Background(), "libor", topic)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Strategy != StrategyContext || res.Title != "London Interbank Offered Rate" {
		t.Errorf("unexpected resolution: %+v", res)
	}
}

func TestResolve_ContextSearchSkipsFailedCandidate(t *testing.T) {
	source := &fakeSource{
		searches: map[string][]SearchResult{
			"zzz":         {{Title: "Zzz"}},
			"zzz finance": {{Title: "Zzz"}},
		},
	}

	_, err := NewResolver(source, ResolverOptions{}, nil).Resolve(context.Background(), "zzz", financeTopic)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	summaries := 0
	for _, c := range source.calls {
		if c == "summary:Zzz" {
			summaries++
		}
	}
	if summaries != 1 {
		t.Errorf("failed candidate summarized %d times, want 1", summaries)
	}
}

func TestResolve_NotFound(t *testing.T) {
	_, err := NewResolver(&fakeSource{}, ResolverOptions{}, nil).Resolve(context.Background(), "qwertyuiop", financeTopic)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolve_ProviderFailureIsDistinct(t *testing.T) {
	down := errors.New("connection refused")
	source := &fakeSource{
		failing: map[string]error{
			"summary:bond (finance)": down,
			"search:bond":            down,
			"search:bond finance":    down,
		},
	}

	_, err := NewResolver(source, ResolverOptions{}, nil).Resolve(context.Background(), "bond", financeTopic)
	if !model.IsProviderError(err) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if errors.Is(err, model.ErrNotFound) {
		t.Error("provider failure must not read as not found")
	}
}

func TestResolve_StepFailureFallsThrough(t *testing.T) {
	source := &fakeSource{
		failing:   map[string]error{"summary:bond (finance)": errors.New("HTTP 503")},
		searches:  map[string][]SearchResult{"bond": {{Title: "Bond (finance)"}}},
		summaries: map[string]string{"Bond (finance)": "A bond is a debt security."},
	}

	res, err := NewResolver(source, ResolverOptions{}, nil).Resolve(context.Background(), "bond", financeTopic)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Strategy != StrategySearch {
		t.Errorf("Strategy = %q, want %q", res.Strategy, StrategySearch)
	}
}

func TestResolve_PerCallTimeout(t *testing.T) {
	source := &fakeSource{
		delay:     50 * time.Millisecond,
		summaries: map[string]string{"bond (finance)": "A bond is a debt security."},
	}

	_, err := NewResolver(source, ResolverOptions{Timeout: 5 * time.Millisecond}, nil).Resolve(context.Background(), "bond", financeTopic)
	if !model.IsProviderError(err) {
		t.Fatalf("timed-out calls should surface as ProviderError, got %v", err)
	}
}

func TestResolve_EmptyTerm(t *testing.T) {
	_, err := NewResolver(&fakeSource{}, ResolverOptions{}, nil).Resolve(context.Background(), "  ", financeTopic)
	if !errors.Is(err, model.ErrInvalidTerm) {
		t.Fatalf("expected ErrInvalidTerm, got %v", err)
	}
}

func TestTopicPattern(t *testing.T) {
	p := TopicPattern(financeTopic)
	for _, s := range []string{"bond (finance)", "Financial market", "INVESTMENT bank"} {
		if !p.MatchString(s) {
			t.Errorf("expected match for %q", s)
		}
	}
	for _, s := range []string{"chemical bond", "refinanced", "investments"} {
		if p.MatchString(s) {
			t.Errorf("unexpected match for %q", s)
		}
	}
	if TopicPattern(model.Topic{}) != nil {
		t.Error("empty topic should have no pattern")
	}
}
