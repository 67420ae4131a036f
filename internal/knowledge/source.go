// Package knowledge resolves domain terms to short definitions using an
// external encyclopedia.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrPageNotFound means the source has no page under the requested title
var ErrPageNotFound = errors.New("page not found")

// DisambiguationError means the title names several pages
type DisambiguationError struct {
	Title   string
	Options []string
}

func (e *DisambiguationError) Error() string {
	return fmt.Sprintf("%q is ambiguous: %s", e.Title, strings.Join(e.Options, ", "))
}

// SearchResult is one ranked hit of a source search
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Source is a searchable encyclopedia.
//
// Summary returns ErrPageNotFound or a *DisambiguationError for the two
// expected lookup failures; any other error is a transport or provider failure.
type Source interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Summary(ctx context.Context, title string) (string, error)
}

// isLookupMiss reports whether err is an expected "no such page" answer
// rather than a provider failure
func isLookupMiss(err error) bool {
	var de *DisambiguationError
	return errors.Is(err, ErrPageNotFound) || errors.As(err, &de)
}
