package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ppiankov/terminus/internal/model"
)

// Memory is a process-local Store, used by tests and dry runs
type Memory struct {
	mu         sync.Mutex
	official   map[string]model.OfficialEntry
	candidates map[string]model.CandidateEntry
	order      []string // candidate insertion order
}

var (
	_ Store    = (*Memory)(nil)
	_ Promoter = (*Memory)(nil)
)

// NewMemory returns an empty store
func NewMemory() *Memory {
	return &Memory{
		official:   make(map[string]model.OfficialEntry),
		candidates: make(map[string]model.CandidateEntry),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) GetOfficial(_ context.Context, term string) (*model.OfficialEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.official[term]
	if !ok {
		return nil, model.ErrNotFound
	}
	e.FollowUps = cloneFollowUps(e.FollowUps)
	return &e, nil
}

func (m *Memory) InsertOfficial(_ context.Context, entry model.OfficialEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertOfficialLocked(entry)
}

func (m *Memory) insertOfficialLocked(entry model.OfficialEntry) error {
	if _, ok := m.official[entry.Term]; ok {
		return fmt.Errorf("insert official %q: %w", entry.Term, model.ErrDuplicateKey)
	}
	entry.FollowUps = cloneFollowUps(entry.FollowUps)
	m.official[entry.Term] = entry
	return nil
}

func (m *Memory) GetCandidate(_ context.Context, term string) (*model.CandidateEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.candidates[term]
	if !ok {
		return nil, model.ErrNotFound
	}
	c.FollowUps = cloneFollowUps(c.FollowUps)
	return &c, nil
}

func (m *Memory) InsertCandidate(_ context.Context, entry model.CandidateEntry) error {
	if err := checkCandidate(entry.Status, entry.Reason); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.official[entry.Term]; ok {
		return fmt.Errorf("insert candidate %q: already official: %w", entry.Term, model.ErrDuplicateKey)
	}
	if _, ok := m.candidates[entry.Term]; ok {
		return fmt.Errorf("insert candidate %q: %w", entry.Term, model.ErrDuplicateKey)
	}
	entry.FollowUps = cloneFollowUps(entry.FollowUps)
	m.candidates[entry.Term] = entry
	m.order = append(m.order, entry.Term)
	return nil
}

func (m *Memory) UpdateCandidateStatus(_ context.Context, term string, status model.Status, reason string) error {
	if err := checkCandidate(status, reason); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.candidates[term]
	if !ok {
		return model.ErrNotFound
	}
	c.Status = status
	c.Reason = reason
	m.candidates[term] = c
	return nil
}

func (m *Memory) DeleteCandidate(_ context.Context, term string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.candidates[term]; !ok {
		return model.ErrNotFound
	}
	m.deleteCandidateLocked(term)
	return nil
}

func (m *Memory) deleteCandidateLocked(term string) {
	delete(m.candidates, term)
	for i, t := range m.order {
		if t == term {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Memory) ListCandidates(_ context.Context, status model.Status) ([]model.CandidateEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []model.CandidateEntry{}
	for _, term := range m.order {
		c := m.candidates[term]
		if status != "" && c.Status != status {
			continue
		}
		c.FollowUps = cloneFollowUps(c.FollowUps)
		out = append(out, c)
	}
	return out, nil
}

// Promote moves the candidate under the store lock
func (m *Memory) Promote(_ context.Context, term string) (*model.OfficialEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.candidates[term]
	if !ok {
		return nil, model.ErrNotFound
	}
	if c.Status != model.StatusUnderReview {
		return nil, fmt.Errorf("promote %q from %s: %w", term, c.Status, model.ErrInvalidTransition)
	}

	official := c.Promote()
	if err := m.insertOfficialLocked(official); err != nil {
		return nil, err
	}
	m.deleteCandidateLocked(term)

	official.FollowUps = cloneFollowUps(official.FollowUps)
	return &official, nil
}

func cloneFollowUps(f model.FollowUps) model.FollowUps {
	return append(model.FollowUps{}, f...)
}
