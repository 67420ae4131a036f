// Package fetch downloads web pages whose text feeds term extraction.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/terminus/internal/model"
	"github.com/ppiankov/terminus/internal/util"
	"github.com/ppiankov/terminus/internal/worker"
)

const maxAttempts = 3

// ErrDisallowed means robots.txt forbids fetching the page
var ErrDisallowed = errors.New("disallowed by robots.txt")

// sleep waits between attempts; tests replace it
var sleep = func(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Page is a fetched document
type Page struct {
	Body        string
	ContentType string
	FinalURL    string
	// Subject is a readable name derived from the final URL
	Subject string
}

// Fetcher retrieves pages politely: per-host rate limits, optional
// robots.txt checks and a bounded body size
type Fetcher struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	limiter   *worker.Limiter
	robots    *util.RobotsChecker
	logger    *zap.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithLimiter throttles requests per host
func WithLimiter(l *worker.Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithRobots refuses pages robots.txt disallows
func WithRobots(r *util.RobotsChecker) Option {
	return func(f *Fetcher) { f.robots = r }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher
func New(timeout time.Duration, userAgent string, maxBytes int64, opts ...Option) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}
	f := &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		maxBytes:  maxBytes,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// statusError is a non-2xx answer
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.status)
}

// Fetch retrieves rawURL, retrying 429, 5xx and transport failures.
// Failures other than a bad URL or ErrDisallowed are *model.ProviderError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	target, err := url.Parse(rawURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("invalid URL %q: only absolute http(s) URLs can be fetched", rawURL)
	}

	if f.robots != nil {
		allowed, delay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, model.NewProviderError(target.Host, err)
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
		if f.limiter != nil {
			f.limiter.ApplyCrawlDelay(rawURL, delay)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, rawURL); err != nil {
				return nil, err
			}
		}

		page, err := f.do(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !retryable(err) || attempt == maxAttempts {
			break
		}

		f.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if err := sleep(ctx, time.Duration(attempt)*time.Second); err != nil {
			return nil, err
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return nil, model.NewProviderError(target.Host, lastErr)
}

func (f *Fetcher) do(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode, status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	finalURL := resp.Request.URL.String()
	return &Page{
		Body:        string(body),
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    finalURL,
		Subject:     subject(finalURL),
	}, nil
}

// retryable reports whether a failed attempt may succeed when repeated
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return strings.HasPrefix(err.Error(), "fetch: ")
}

// subject turns the last path segment of rawURL into words
func subject(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return parsed.Host
	}

	last := path[strings.LastIndex(path, "/")+1:]
	if unescaped, err := url.PathUnescape(last); err == nil {
		last = unescaped
	}
	if idx := strings.LastIndex(last, "."); idx > 0 {
		last = last[:idx]
	}
	return strings.NewReplacer("_", " ", "-", " ").Replace(last)
}
