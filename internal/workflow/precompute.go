package workflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/ppiankov/terminus/internal/model"
	"github.com/ppiankov/terminus/internal/worker"
)

// PrecomputeFailure is a term whose lookup failed
type PrecomputeFailure struct {
	Term  string `json:"term"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// PrecomputeReport summarizes a precompute run
type PrecomputeReport struct {
	Extracted []string            `json:"extracted,omitempty"`
	Added     []string            `json:"added"`
	Existing  []string            `json:"existing"`
	Failed    []PrecomputeFailure `json:"failed"`
}

// Precompute extracts the relevant terms from text and looks each one up,
// so that new terms land in the candidate store ahead of demand
func (o *Orchestrator) Precompute(ctx context.Context, text string) (*PrecomputeReport, error) {
	extracted, err := o.ExtractTerms(ctx, text, "")
	if err != nil {
		return nil, err
	}
	report := o.PrecomputeTerms(ctx, extracted.Terms)
	report.Extracted = extracted.Terms
	return report, nil
}

// PrecomputeTerms looks up terms concurrently. Failures are reported per term.
func (o *Orchestrator) PrecomputeTerms(ctx context.Context, terms []string) *PrecomputeReport {
	seen := make(map[string]bool)
	var keys []string
	for _, t := range terms {
		key, err := model.NormalizeTerm(t)
		if err != nil || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}

	processor := worker.NewBatchProcessor(o, o.deps.PrecomputeWorkers)
	report := &PrecomputeReport{Added: []string{}, Existing: []string{}, Failed: []PrecomputeFailure{}}
	for _, r := range processor.ProcessTerms(ctx, keys) {
		switch {
		case r.Error != nil:
			report.Failed = append(report.Failed, PrecomputeFailure{
				Term:  r.Term,
				Kind:  model.ErrorKind(r.Error),
				Error: r.Error.Error(),
			})
		case r.Added:
			report.Added = append(report.Added, r.Term)
		default:
			report.Existing = append(report.Existing, r.Term)
		}
	}

	o.logger.Info("precompute finished",
		zap.Int("terms", len(keys)),
		zap.Int("added", len(report.Added)),
		zap.Int("existing", len(report.Existing)),
		zap.Int("failed", len(report.Failed)),
	)
	return report
}
