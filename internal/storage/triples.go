package storage

import (
	"context"
	"fmt"
	"time"
)

// AppendTriples writes rows to the end of the provenance log in one
// transaction. The rows are durable when AppendTriples returns nil.
func (s *Store) AppendTriples(ctx context.Context, rows []TripleRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO triples (subject, predicate, object, object_kind, datatype, lang, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing append statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range rows {
		kind := r.ObjectKind
		if kind == "" {
			kind = "literal"
		}
		if _, err := stmt.ExecContext(ctx, r.Subject, r.Predicate, r.Object, kind, r.Datatype, r.Lang, now); err != nil {
			return fmt.Errorf("appending triple %s %s: %w", r.Subject, r.Predicate, err)
		}
	}
	return tx.Commit()
}

// ReplayTriples calls fn for every logged triple in insertion order.
// Iteration stops at the first error returned by fn.
func (s *Store) ReplayTriples(ctx context.Context, fn func(TripleRow) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, subject, predicate, object, object_kind, datatype, lang, created_at
		FROM triples ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("reading triple log: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r TripleRow
		var createdAt string
		if err := rows.Scan(&r.Seq, &r.Subject, &r.Predicate, &r.Object, &r.ObjectKind, &r.Datatype, &r.Lang, &createdAt); err != nil {
			return fmt.Errorf("scanning triple: %w", err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return fmt.Errorf("parsing created_at for triple %d: %w", r.Seq, err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}
