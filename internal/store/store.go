// Package store persists official and candidate entries.
//
// Terms are stored under their normalized key (see model.NormalizeTerm);
// callers normalize before calling. Every read goes to the backing store.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/terminus/internal/model"
)

// OfficialStore holds approved entries. There is no update or delete.
type OfficialStore interface {
	// GetOfficial returns model.ErrNotFound when the term is absent
	GetOfficial(ctx context.Context, term string) (*model.OfficialEntry, error)

	// InsertOfficial returns model.ErrDuplicateKey when the term exists
	InsertOfficial(ctx context.Context, entry model.OfficialEntry) error
}

// CandidateStore holds entries awaiting, or denied, promotion.
type CandidateStore interface {
	// GetCandidate returns model.ErrNotFound when the term is absent
	GetCandidate(ctx context.Context, term string) (*model.CandidateEntry, error)

	// InsertCandidate returns model.ErrDuplicateKey when the term is already
	// a candidate or already official
	InsertCandidate(ctx context.Context, entry model.CandidateEntry) error

	// UpdateCandidateStatus sets status and reason; model.ErrNotFound when absent
	UpdateCandidateStatus(ctx context.Context, term string, status model.Status, reason string) error

	// DeleteCandidate removes the candidate; model.ErrNotFound when absent
	DeleteCandidate(ctx context.Context, term string) error

	// ListCandidates returns candidates in creation order. An empty status lists all.
	ListCandidates(ctx context.Context, status model.Status) ([]model.CandidateEntry, error)
}

// Store is both collections behind one handle
type Store interface {
	OfficialStore
	CandidateStore
	Close() error
}

// Promoter is implemented by stores that can move an under-review candidate
// into the official collection in one atomic step. Promote returns
// model.ErrNotFound for an absent candidate and model.ErrInvalidTransition
// for a rejected one.
type Promoter interface {
	Promote(ctx context.Context, term string) (*model.OfficialEntry, error)
}

// checkCandidate enforces the status/reason pairing before a write
func checkCandidate(status model.Status, reason string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid candidate: unknown status %q", status)
	}
	if (status == model.StatusRejected) != (reason != "") {
		return errors.New("invalid candidate: reason must be set exactly when status is rejected")
	}
	return nil
}
