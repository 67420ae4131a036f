package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/ppiankov/terminus/internal/model"
)

// SQLite is the relational store: one table per collection
type SQLite struct {
	db *sql.DB
}

var (
	_ Store    = (*SQLite)(nil)
	_ Promoter = (*SQLite)(nil)
)

// OpenSQLite opens (or creates) the database at path and applies the schema
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	// Immediate transactions take the write lock up front, so Promote never
	// fails halfway on a lock upgrade
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) GetOfficial(ctx context.Context, term string) (*model.OfficialEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT term, definition, follow_ups FROM official_entries WHERE term = ?`, term)

	var e model.OfficialEntry
	var followUps string
	if err := row.Scan(&e.Term, &e.Definition, &followUps); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get official %q: %w", term, err)
	}
	fu, err := decodeFollowUps(followUps)
	if err != nil {
		return nil, fmt.Errorf("get official %q: %w", term, err)
	}
	e.FollowUps = fu
	return &e, nil
}

func (s *SQLite) InsertOfficial(ctx context.Context, entry model.OfficialEntry) error {
	return insertOfficial(ctx, s.db, entry)
}

func (s *SQLite) GetCandidate(ctx context.Context, term string) (*model.CandidateEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT term, definition, follow_ups, status, reason FROM candidate_entries WHERE term = ?`, term)
	c, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get candidate %q: %w", term, err)
	}
	return c, nil
}

// InsertCandidate refuses terms that are already official in the same
// statement, so a concurrent promotion cannot leave the term in both tables
func (s *SQLite) InsertCandidate(ctx context.Context, entry model.CandidateEntry) error {
	if err := checkCandidate(entry.Status, entry.Reason); err != nil {
		return err
	}
	followUps, err := encodeFollowUps(entry.FollowUps)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO candidate_entries (term, definition, follow_ups, status, reason)
		 SELECT ?, ?, ?, ?, ?
		 WHERE NOT EXISTS (SELECT 1 FROM official_entries WHERE term = ?)`,
		entry.Term, entry.Definition, followUps, string(entry.Status), entry.Reason, entry.Term,
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("insert candidate %q: %w", entry.Term, model.ErrDuplicateKey)
		}
		return fmt.Errorf("insert candidate %q: %w", entry.Term, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("insert candidate %q: already official: %w", entry.Term, model.ErrDuplicateKey)
	}
	return nil
}

func (s *SQLite) UpdateCandidateStatus(ctx context.Context, term string, status model.Status, reason string) error {
	if err := checkCandidate(status, reason); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE candidate_entries SET status = ?, reason = ?, updated_at = datetime('now') WHERE term = ?`,
		string(status), reason, term,
	)
	if err != nil {
		return fmt.Errorf("update candidate %q: %w", term, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *SQLite) DeleteCandidate(ctx context.Context, term string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM candidate_entries WHERE term = ?`, term)
	if err != nil {
		return fmt.Errorf("delete candidate %q: %w", term, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *SQLite) ListCandidates(ctx context.Context, status model.Status) ([]model.CandidateEntry, error) {
	var rows *sql.Rows
	var err error

	if status == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT term, definition, follow_ups, status, reason FROM candidate_entries ORDER BY created_at, rowid`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT term, definition, follow_ups, status, reason FROM candidate_entries WHERE status = ? ORDER BY created_at, rowid`,
			string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := []model.CandidateEntry{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, *c)
	}
	return candidates, rows.Err()
}

// Promote copies an under-review candidate into official_entries and deletes
// it, in one transaction
func (s *SQLite) Promote(ctx context.Context, term string) (*model.OfficialEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT term, definition, follow_ups, status, reason FROM candidate_entries WHERE term = ?`, term)
	c, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("promote %q: %w", term, err)
	}
	if c.Status != model.StatusUnderReview {
		return nil, fmt.Errorf("promote %q from %s: %w", term, c.Status, model.ErrInvalidTransition)
	}

	official := c.Promote()
	if err := insertOfficial(ctx, tx, official); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM candidate_entries WHERE term = ?`, term); err != nil {
		return nil, fmt.Errorf("promote %q: delete candidate: %w", term, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &official, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertOfficial(ctx context.Context, db execer, entry model.OfficialEntry) error {
	followUps, err := encodeFollowUps(entry.FollowUps)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO official_entries (term, definition, follow_ups) VALUES (?, ?, ?)`,
		entry.Term, entry.Definition, followUps,
	)
	if err != nil {
		if isConstraint(err) {
			return fmt.Errorf("insert official %q: %w", entry.Term, model.ErrDuplicateKey)
		}
		return fmt.Errorf("insert official %q: %w", entry.Term, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row scanner) (*model.CandidateEntry, error) {
	var c model.CandidateEntry
	var followUps, status string
	if err := row.Scan(&c.Term, &c.Definition, &followUps, &status, &c.Reason); err != nil {
		return nil, err
	}
	fu, err := decodeFollowUps(followUps)
	if err != nil {
		return nil, err
	}
	c.FollowUps = fu
	c.Status = model.Status(status)
	return &c, nil
}

func encodeFollowUps(f model.FollowUps) (string, error) {
	data, err := json.Marshal(f.OrEmpty())
	if err != nil {
		return "", fmt.Errorf("encode follow-ups: %w", err)
	}
	return string(data), nil
}

func decodeFollowUps(s string) (model.FollowUps, error) {
	var f model.FollowUps
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return nil, fmt.Errorf("decode follow-ups: %w", err)
	}
	return f.OrEmpty(), nil
}

func isConstraint(err error) bool {
	return errors.Is(err, sqlite3.CONSTRAINT)
}
