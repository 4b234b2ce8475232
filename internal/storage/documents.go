package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertDocument records the latest state of a course material file.
func (s *Store) UpsertDocument(d Document) error {
	updated := d.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	status := d.Status
	if status == "" {
		status = DocPending
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (course, filename, file_type, fragments, status, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(course, filename) DO UPDATE SET
			file_type = excluded.file_type,
			fragments = excluded.fragments,
			status = excluded.status,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		d.Course, d.Filename, d.FileType, d.Fragments, status, d.LastError,
		updated.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetDocument(course, filename string) (Document, error) {
	d, err := scanDocument(s.db.QueryRow(`
		SELECT course, filename, file_type, fragments, status, last_error, updated_at
		FROM documents WHERE course = ? AND filename = ?`, course, filename))
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	return d, err
}

// ListDocuments returns the documents of a course ordered by filename.
func (s *Store) ListDocuments(course string) ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT course, filename, file_type, fragments, status, last_error, updated_at
		FROM documents WHERE course = ? ORDER BY filename ASC`, course)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDocument(row interface{ Scan(...interface{}) error }) (Document, error) {
	var d Document
	var updated string
	if err := row.Scan(&d.Course, &d.Filename, &d.FileType, &d.Fragments, &d.Status, &d.LastError, &updated); err != nil {
		return Document{}, err
	}
	t, err := time.Parse(time.RFC3339, updated)
	if err != nil {
		return Document{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	d.UpdatedAt = t
	return d, nil
}
