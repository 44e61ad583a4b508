package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kittclouds/skillscan/pkg/ledger"
)

// Compile-time interface checks
var (
	_ ledger.Backend   = (*SQLiteStore)(nil)
	_ ledger.KeyLocker = (*SQLiteStore)(nil)
)

var errClosed = errors.New("store closed")

// LockPerKey reports that discovery rows are written independently.
func (s *SQLiteStore) LockPerKey() bool { return true }

// Merge upserts candidates; counts add up and the sighting window widens.
func (s *SQLiteStore) Merge(ctx context.Context, candidates []ledger.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	for _, c := range candidates {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO discoveries (term_key, role, term, count, context, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(term_key, role) DO UPDATE SET
				count = count + excluded.count,
				first_seen = MIN(first_seen, excluded.first_seen),
				last_seen = MAX(last_seen, excluded.last_seen),
				context = CASE WHEN context = '' THEN excluded.context ELSE context END
		`, ledger.TermKey(c.Term), strings.TrimSpace(c.Role), c.Term, c.Count, c.Context,
			c.FirstSeen.UnixNano(), c.LastSeen.UnixNano())
		if err != nil {
			return fmt.Errorf("upsert discovery %q: %w", c.Term, err)
		}
	}
	return tx.Commit()
}

// Pending lists every pending discovery row.
func (s *SQLiteStore) Pending(ctx context.Context) ([]ledger.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT term, role, count, context, first_seen, last_seen
		FROM discoveries ORDER BY count DESC, term_key, role
	`)
	if err != nil {
		return nil, fmt.Errorf("query discoveries: %w", err)
	}
	defer rows.Close()

	var out []ledger.Candidate
	for rows.Next() {
		var c ledger.Candidate
		var first, last int64
		if err := rows.Scan(&c.Term, &c.Role, &c.Count, &c.Context, &first, &last); err != nil {
			return nil, fmt.Errorf("scan discovery: %w", err)
		}
		c.FirstSeen = time.Unix(0, first).UTC()
		c.LastSeen = time.Unix(0, last).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Ignored returns the ignore list keyed by ledger.TermKey.
func (s *SQLiteStore) Ignored(ctx context.Context) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errClosed
	}

	rows, err := s.db.QueryContext(ctx, "SELECT term_key FROM ignored_terms")
	if err != nil {
		return nil, fmt.Errorf("query ignored terms: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out[k] = true
	}
	return out, rows.Err()
}

// AddIgnored suppresses term and drops its pending rows.
func (s *SQLiteStore) AddIgnored(ctx context.Context, term string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errClosed
	}

	key := ledger.TermKey(term)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ignore: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ignored_terms (term_key, term, created_at) VALUES (?, ?, ?)
		ON CONFLICT(term_key) DO NOTHING
	`, key, strings.TrimSpace(term), time.Now().UnixNano()); err != nil {
		return fmt.Errorf("insert ignored term: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM discoveries WHERE term_key = ?", key); err != nil {
		return fmt.Errorf("drop pending rows: %w", err)
	}
	return tx.Commit()
}

// Approve stores a, replacing an earlier decision for the same term, and
// drops the term's pending rows.
func (s *SQLiteStore) Approve(ctx context.Context, a ledger.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return errClosed
	}

	key := ledger.TermKey(a.Term)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO approvals (term_key, term, canonical, approved_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(term_key) DO UPDATE SET
			term = excluded.term,
			canonical = excluded.canonical,
			approved_at = excluded.approved_at
	`, key, a.Term, a.Canonical, a.ApprovedAt.UnixNano()); err != nil {
		return fmt.Errorf("upsert approval: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM discoveries WHERE term_key = ?", key); err != nil {
		return fmt.Errorf("drop pending rows: %w", err)
	}
	return tx.Commit()
}

// Approved lists approvals, oldest first.
func (s *SQLiteStore) Approved(ctx context.Context) ([]ledger.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, errClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT term, canonical, approved_at FROM approvals ORDER BY approved_at, term_key
	`)
	if err != nil {
		return nil, fmt.Errorf("query approvals: %w", err)
	}
	defer rows.Close()

	var out []ledger.Approval
	for rows.Next() {
		var a ledger.Approval
		var at int64
		if err := rows.Scan(&a.Term, &a.Canonical, &at); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		a.ApprovedAt = time.Unix(0, at).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}
