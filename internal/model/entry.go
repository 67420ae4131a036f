package model

import (
	"encoding/json"
	"strings"
)

// Status is the review state of a candidate entry
type Status string

const (
	StatusUnderReview Status = "under_review" // Awaiting a review decision
	StatusRejected    Status = "rejected"     // Rejected by a reviewer, kept with a reason
)

// Valid reports whether s is a known candidate status
func (s Status) Valid() bool {
	return s == StatusUnderReview || s == StatusRejected
}

// Source identifies which store answered a lookup
type Source string

const (
	SourceOfficial  Source = "official"
	SourceCandidate Source = "candidate"
)

// FollowUp is a clarifying question tied to a sub-term of a definition
type FollowUp struct {
	Question    string `json:"question" yaml:"question"`
	RelatedTerm string `json:"related_term" yaml:"related_term"`
}

// FollowUps is an ordered list of follow-up questions.
// It always encodes as a JSON array, never as null.
type FollowUps []FollowUp

// MarshalJSON encodes a nil list as []
func (f FollowUps) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]FollowUp(f))
}

// UnmarshalJSON decodes null as an empty list
func (f *FollowUps) UnmarshalJSON(data []byte) error {
	var list []FollowUp
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	if list == nil {
		list = []FollowUp{}
	}
	*f = list
	return nil
}

// OrEmpty returns f, or an empty non-nil list when f is nil
func (f FollowUps) OrEmpty() FollowUps {
	if f == nil {
		return FollowUps{}
	}
	return f
}

// OfficialEntry is an approved, user-facing definition
type OfficialEntry struct {
	Term       string    `json:"term" yaml:"term"`
	Definition string    `json:"definition" yaml:"definition"`
	FollowUps  FollowUps `json:"follow_ups" yaml:"follow_ups"`
}

// CandidateEntry is a definition awaiting (or denied) promotion
type CandidateEntry struct {
	Term       string    `json:"term" yaml:"term"`
	Definition string    `json:"definition" yaml:"definition"`
	FollowUps  FollowUps `json:"follow_ups" yaml:"follow_ups"`
	Status     Status    `json:"status" yaml:"status"`
	Reason     string    `json:"reason,omitempty" yaml:"reason,omitempty"` // Set only when rejected
}

// Promote builds the official entry carrying this candidate's content
func (c CandidateEntry) Promote() OfficialEntry {
	return OfficialEntry{
		Term:       c.Term,
		Definition: c.Definition,
		FollowUps:  c.FollowUps.OrEmpty(),
	}
}

// ValidationVerdict is an advisory judgment on a definition. It is never persisted.
type ValidationVerdict struct {
	IsValid    bool    `json:"is_valid"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ExtractedTerm is a term proposed by the extraction stage, before critique
type ExtractedTerm struct {
	Text string `json:"text"`
}

// TermCritique is the per-term relevance verdict of the critique stage
type TermCritique struct {
	Term       string `json:"term"`
	IsRelevant bool   `json:"is_relevant"`
	Reason     string `json:"reason"`
}

// Topic scopes lookups and critiques to one subject area
type Topic struct {
	Domain      string   `json:"domain" yaml:"domain" mapstructure:"domain"`
	Keywords    []string `json:"keywords" yaml:"keywords" mapstructure:"keywords"`
	ContextHint string   `json:"context_hint,omitempty" yaml:"context_hint,omitempty" mapstructure:"context_hint"`
}

// Hint returns the text appended to context-hinted searches
func (t Topic) Hint() string {
	if t.ContextHint != "" {
		return t.ContextHint
	}
	return t.Domain
}

// NormalizeTerm returns the store key for a term: trimmed and lowercased.
// Two terms are the same entry iff their normalized forms are equal.
func NormalizeTerm(term string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(term))
	if key == "" {
		return "", ErrInvalidTerm
	}
	return key, nil
}
