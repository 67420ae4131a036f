package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/terminus/internal/model"
)

// Precomputer resolves one term ahead of demand. added reports whether the
// call created the entry rather than finding it stored.
type Precomputer interface {
	PrecomputeTerm(ctx context.Context, term string) (source model.Source, added bool, err error)
}

// PrecomputeJob resolves a single term
type PrecomputeJob struct {
	Term        string
	Precomputer Precomputer
}

// Execute implements Job
func (j *PrecomputeJob) Execute(ctx context.Context) Result {
	source, added, err := j.Precomputer.PrecomputeTerm(ctx, j.Term)
	return &PrecomputeResult{Term: j.Term, Source: source, Added: added, Error: err}
}

// PrecomputeResult reports where a term ended up
type PrecomputeResult struct {
	Term   string       `json:"term"`
	Source model.Source `json:"source,omitempty"`
	Added  bool         `json:"added"`
	Error  error        `json:"-"`
}

// GetError implements Result
func (r *PrecomputeResult) GetError() error {
	return r.Error
}

// BatchProcessor precomputes many terms concurrently
type BatchProcessor struct {
	precomputer Precomputer
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(precomputer Precomputer, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		precomputer: precomputer,
		concurrency: concurrency,
	}
}

// ProcessTerms precomputes terms and returns one result per term, in order
func (b *BatchProcessor) ProcessTerms(ctx context.Context, terms []string) []*PrecomputeResult {
	if len(terms) == 0 {
		return []*PrecomputeResult{}
	}

	jobs := make([]Job, len(terms))
	for i, term := range terms {
		jobs[i] = &PrecomputeJob{Term: term, Precomputer: b.precomputer}
	}

	results := Run(ctx, b.concurrency, jobs)

	out := make([]*PrecomputeResult, len(terms))
	for i, result := range results {
		if result == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			out[i] = &PrecomputeResult{Term: terms[i], Error: err}
			continue
		}
		out[i] = result.(*PrecomputeResult)
	}
	return out
}

// ProcessFile reads terms from a file and precomputes them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*PrecomputeResult, error) {
	terms, err := ReadTermsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read terms: %w", err)
	}
	return b.ProcessTerms(ctx, terms), nil
}

// ReadTermsFromFile reads terms from a file (one per line)
func ReadTermsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadTerms(file)
}

// ReadTerms reads normalized, deduplicated terms, skipping blanks and # comments
func ReadTerms(r io.Reader) ([]string, error) {
	var terms []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		term, err := model.NormalizeTerm(line)
		if err != nil {
			continue
		}
		if !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan terms: %w", err)
	}

	return terms, nil
}
