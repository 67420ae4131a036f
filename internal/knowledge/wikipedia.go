package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/ppiankov/terminus/internal/cache"
	"github.com/ppiankov/terminus/internal/model"
	"github.com/ppiankov/terminus/internal/util"
	"github.com/ppiankov/terminus/internal/worker"
)

const maxAttempts = 3

// WikipediaOption customizes a Wikipedia client
type WikipediaOption func(*Wikipedia)

// WithCache stores search and summary answers in c
func WithCache(c cache.Cache) WikipediaOption {
	return func(w *Wikipedia) { w.cache = c }
}

// WithLimiter throttles requests per host
func WithLimiter(l *worker.Limiter) WikipediaOption {
	return func(w *Wikipedia) { w.limiter = l }
}

// WithRobots checks robots.txt before fetching article HTML
func WithRobots(r *util.RobotsChecker) WikipediaOption {
	return func(w *Wikipedia) { w.robots = r }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) WikipediaOption {
	return func(w *Wikipedia) { w.httpClient = c }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) WikipediaOption {
	return func(w *Wikipedia) { w.logger = l }
}

// Wikipedia is a Source backed by the MediaWiki action API.
// Disambiguation options are read from the article HTML.
type Wikipedia struct {
	baseURL      string
	userAgent    string
	sentences    int
	maxBodyBytes int64
	httpClient   *http.Client
	cache        cache.Cache
	limiter      *worker.Limiter
	robots       *util.RobotsChecker
	logger       *zap.Logger
}

// NewWikipedia creates a client for cfg.BaseURL (e.g. https://en.wikipedia.org)
func NewWikipedia(cfg model.SourceConfig, opts ...WikipediaOption) *Wikipedia {
	w := &Wikipedia{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:    cfg.UserAgent,
		sentences:    cfg.SummarySentences,
		maxBodyBytes: cfg.MaxBodyBytes,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		cache:        cache.Noop{},
		logger:       zap.NewNop(),
	}
	if w.sentences <= 0 {
		w.sentences = 2
	}
	if w.maxBodyBytes <= 0 {
		w.maxBodyBytes = 2_000_000
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name implements Source
func (w *Wikipedia) Name() string {
	return "wikipedia"
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"search"`
	} `json:"query"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

// Search runs a full-text search and returns up to limit ranked hits
func (w *Wikipedia) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	key := cache.Key("search", w.baseURL, query, strconv.Itoa(limit))
	var cached []SearchResult
	if cache.GetJSON(w.cache, key, &cached) {
		return cached, nil
	}

	params := url.Values{
		"action":        {"query"},
		"list":          {"search"},
		"srsearch":      {query},
		"srlimit":       {strconv.Itoa(limit)},
		"format":        {"json"},
		"formatversion": {"2"},
	}

	var resp searchResponse
	if err := w.getJSON(ctx, params, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, model.NewProviderError(w.Name(), fmt.Errorf("search %q: %s: %s", query, resp.Error.Code, resp.Error.Info))
	}

	results := make([]SearchResult, 0, len(resp.Query.Search))
	for _, hit := range resp.Query.Search {
		results = append(results, SearchResult{Title: hit.Title, Snippet: plainText(hit.Snippet)})
	}

	_ = cache.SetJSON(w.cache, key, results, 0)
	return results, nil
}

type summaryResponse struct {
	Query struct {
		Pages []struct {
			Title     string `json:"title"`
			Missing   bool   `json:"missing"`
			Invalid   bool   `json:"invalid"`
			Extract   string `json:"extract"`
			PageProps struct {
				Disambiguation *string `json:"disambiguation"`
			} `json:"pageprops"`
		} `json:"pages"`
	} `json:"query"`
	Error *apiError `json:"error,omitempty"`
}

// summaryEntry is the cached outcome of a summary lookup
type summaryEntry struct {
	Text    string   `json:"text,omitempty"`
	Missing bool     `json:"missing,omitempty"`
	Options []string `json:"options,omitempty"`
}

// Summary returns the first sentences of the page's lead section.
// Redirects are followed; titles are taken verbatim (no auto-suggest).
func (w *Wikipedia) Summary(ctx context.Context, title string) (string, error) {
	key := cache.Key("summary", w.baseURL, title, strconv.Itoa(w.sentences))
	var entry summaryEntry
	if !cache.GetJSON(w.cache, key, &entry) {
		fetched, err := w.fetchSummary(ctx, title)
		if err != nil {
			return "", err
		}
		entry = *fetched
		_ = cache.SetJSON(w.cache, key, entry, 0)
	}

	switch {
	case entry.Missing:
		return "", ErrPageNotFound
	case entry.Options != nil:
		return "", &DisambiguationError{Title: title, Options: entry.Options}
	default:
		return entry.Text, nil
	}
}

func (w *Wikipedia) fetchSummary(ctx context.Context, title string) (*summaryEntry, error) {
	params := url.Values{
		"action":        {"query"},
		"prop":          {"extracts|pageprops"},
		"ppprop":        {"disambiguation"},
		"exintro":       {"1"},
		"explaintext":   {"1"},
		"exsentences":   {strconv.Itoa(w.sentences)},
		"redirects":     {"1"},
		"titles":        {title},
		"format":        {"json"},
		"formatversion": {"2"},
	}

	var resp summaryResponse
	if err := w.getJSON(ctx, params, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, model.NewProviderError(w.Name(), fmt.Errorf("summary %q: %s: %s", title, resp.Error.Code, resp.Error.Info))
	}
	if len(resp.Query.Pages) == 0 {
		return &summaryEntry{Missing: true}, nil
	}

	page := resp.Query.Pages[0]
	if page.Missing || page.Invalid {
		return &summaryEntry{Missing: true}, nil
	}

	if page.PageProps.Disambiguation != nil {
		options, err := w.fetchOptions(ctx, page.Title)
		if err != nil {
			return nil, err
		}
		w.logger.Debug("disambiguation page",
			zap.String("title", page.Title),
			zap.Strings("options", options),
		)
		if options == nil {
			options = []string{}
		}
		return &summaryEntry{Options: options}, nil
	}

	text := strings.TrimSpace(page.Extract)
	if text == "" {
		return &summaryEntry{Missing: true}, nil
	}
	return &summaryEntry{Text: text}, nil
}

// fetchOptions reads the link list of a disambiguation article
func (w *Wikipedia) fetchOptions(ctx context.Context, title string) ([]string, error) {
	pageURL := w.baseURL + pagePath(title)

	if w.robots != nil {
		allowed, delay, err := w.robots.CanFetch(ctx, pageURL)
		if err != nil {
			return nil, model.NewProviderError(w.Name(), err)
		}
		if !allowed {
			w.logger.Warn("robots.txt disallows page fetch", zap.String("url", pageURL))
			return nil, nil
		}
		if w.limiter != nil {
			w.limiter.ApplyCrawlDelay(pageURL, delay)
		}
	}

	body, err := w.get(ctx, pageURL)
	if err != nil {
		if errors.Is(err, ErrPageNotFound) {
			return nil, nil
		}
		return nil, err
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, model.NewProviderError(w.Name(), fmt.Errorf("parse %s: %w", pageURL, err))
	}
	return disambiguationOptions(doc), nil
}

func (w *Wikipedia) getJSON(ctx context.Context, params url.Values, out any) error {
	body, err := w.get(ctx, w.baseURL+"/w/api.php?"+params.Encode())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return model.NewProviderError(w.Name(), fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// get performs a rate-limited GET, retrying 429 and 5xx answers.
// A 404 maps to ErrPageNotFound.
func (w *Wikipedia) get(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx, rawURL); err != nil {
				return nil, err
			}
		}

		body, retryAfter, err := w.do(ctx, rawURL)
		if err == nil || errors.Is(err, ErrPageNotFound) {
			return body, err
		}
		lastErr = err
		if retryAfter < 0 || attempt == maxAttempts {
			break
		}

		w.logger.Debug("retrying wikipedia request",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryAfter):
		}
	}
	return nil, model.NewProviderError(w.Name(), lastErr)
}

// do returns the body, or an error with the wait before a retry
// (negative when the failure is not retryable)
func (w *Wikipedia) do(ctx context.Context, rawURL string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "application/json, text/html")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, -1, ctx.Err()
		}
		return nil, 200 * time.Millisecond, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, -1, ErrPageNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, retryDelay(resp.Header.Get("Retry-After")), fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Host)
	case resp.StatusCode != http.StatusOK:
		return nil, -1, fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Host)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, w.maxBodyBytes))
	if err != nil {
		return nil, -1, fmt.Errorf("read response: %w", err)
	}
	return body, 0, nil
}

// retryDelay honours a Retry-After header in seconds, capped at five
func retryDelay(header string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
		return min(time.Duration(secs)*time.Second, 5*time.Second)
	}
	return 500 * time.Millisecond
}
