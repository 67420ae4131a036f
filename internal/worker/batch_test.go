package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/terminus/internal/model"
)

type mockPrecomputer struct {
	fail map[string]bool
}

func (m *mockPrecomputer) PrecomputeTerm(ctx context.Context, term string) (model.Source, bool, error) {
	if m.fail[term] {
		return "", false, errors.New("lookup failed")
	}
	return model.SourceCandidate, term != "bond", nil
}

func TestBatchProcessor_ProcessTerms(t *testing.T) {
	processor := NewBatchProcessor(&mockPrecomputer{fail: map[string]bool{"mystery": true}}, 2)

	results := processor.ProcessTerms(context.Background(), []string{"bond", "mystery", "equity"})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	for i, want := range []string{"bond", "mystery", "equity"} {
		if results[i].Term != want {
			t.Errorf("result %d term = %q, want %q", i, results[i].Term, want)
		}
	}
	if results[0].Error != nil || results[0].Source != model.SourceCandidate || results[0].Added {
		t.Errorf("unexpected result for bond: %+v", results[0])
	}
	if !results[2].Added {
		t.Errorf("expected equity to be reported as added: %+v", results[2])
	}
	if results[1].Error == nil {
		t.Error("expected error for mystery")
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockPrecomputer{}, 2)
	if results := processor.ProcessTerms(context.Background(), nil); len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestBatchProcessor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processor := NewBatchProcessor(&mockPrecomputer{}, 1)
	results := processor.ProcessTerms(ctx, []string{"a", "b", "c", "d", "e"})
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	for _, r := range results {
		if r == nil {
			t.Fatal("nil result slot")
		}
	}
}

func TestReadTerms(t *testing.T) {
	input := "# finance terms\nBond\n\n  equity  \nbond\nDerivative\n"
	terms, err := ReadTerms(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadTerms: %v", err)
	}
	if diff := cmp.Diff([]string{"bond", "equity", "derivative"}, terms); diff != "" {
		t.Errorf("terms mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "terms.txt")
	if err := os.WriteFile(path, []byte("bond\nstock\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	processor := NewBatchProcessor(&mockPrecomputer{}, 2)
	results, err := processor.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}

	if _, err := processor.ProcessFile(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
