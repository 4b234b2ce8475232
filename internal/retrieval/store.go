package retrieval

import (
	"container/heap"
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Compile-time check that SQLiteStore implements VectorStore.
var _ VectorStore = (*SQLiteStore)(nil)

// SQLiteStore is one course collection: fragment vectors in a SQLite file,
// searched with a brute-force cosine scan.
type SQLiteStore struct {
	db   *sql.DB
	name string
}

// OpenCollection opens (or creates) the collection database at path.
// Pass ":memory:" for an in-memory collection (used by tests).
func OpenCollection(path, name string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating collection directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", name, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging collection %s: %w", name, err)
	}

	// Single connection: an in-memory database is per-connection, and a read
	// transaction then owns the connection for the whole two-phase query.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode=WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s, err := NewSQLiteStore(db, name)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an existing *sql.DB and creates the fragments table if needed.
func NewSQLiteStore(db *sql.DB, name string) (*SQLiteStore, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("creating fragments schema: %w", err)
	}
	return &SQLiteStore{db: db, name: name}, nil
}

// Name returns the collection name, e.g. "course_42".
func (s *SQLiteStore) Name() string { return s.name }

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const upsertFragment = `
	INSERT INTO fragments (id, source, file_type, text, embedding, metadata, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		source = excluded.source,
		file_type = excluded.file_type,
		text = excluded.text,
		embedding = excluded.embedding,
		metadata = excluded.metadata,
		created_at = excluded.created_at`

// Add upserts records in a single transaction.
func (s *SQLiteStore) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning add transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRecords(ctx, tx, records); err != nil {
		return err
	}
	return tx.Commit()
}

// AddBatch adds parallel slices of ids, embeddings, texts and metadata.
// All four must have the same length.
func (s *SQLiteStore) AddBatch(ctx context.Context, ids []string, embeddings [][]float32, texts []string, metadata []string) error {
	if len(ids) != len(embeddings) || len(ids) != len(texts) || len(ids) != len(metadata) {
		return fmt.Errorf("%w: %d ids, %d embeddings, %d texts, %d metadata",
			ErrLengthMismatch, len(ids), len(embeddings), len(texts), len(metadata))
	}
	records := make([]Record, len(ids))
	for i := range ids {
		records[i] = Record{
			ID:        ids[i],
			Source:    sourceFromID(ids[i]),
			Text:      texts[i],
			Embedding: embeddings[i],
			Metadata:  metadata[i],
		}
	}
	return s.Add(ctx, records)
}

func insertRecords(ctx context.Context, tx *sql.Tx, records []Record) error {
	stmt, err := tx.PrepareContext(ctx, upsertFragment)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		if len(r.Embedding) == 0 {
			return fmt.Errorf("record %s has an empty embedding", r.ID)
		}
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		meta := r.Metadata
		if meta == "" {
			meta = "{}"
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Source, r.FileType, r.Text,
			encodeFloat32s(r.Embedding), meta, createdAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}
	return nil
}

// idDistance holds only the ID and distance during the scan phase of Query.
// Full record details are fetched only for top-K winners.
type idDistance struct {
	ID       string
	Seq      int64
	Distance float32
}

// Query performs a brute-force cosine scan and returns the k nearest records,
// nearest first. Both phases run inside one read transaction so concurrent
// adds are either fully visible or not at all.
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int) ([]ScoredRecord, error) {
	if k <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning query transaction: %w", err)
	}
	defer tx.Rollback()

	// Phase 1: scan only id + embedding to find top-K candidates.
	rows, err := tx.QueryContext(ctx, `SELECT seq, id, embedding FROM fragments ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}

	queryNorm := norm(vector)
	h := &idDistanceHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var c idDistance
		var blob []byte
		if err := rows.Scan(&c.Seq, &c.ID, &blob); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("decoding embedding for %s: %w", c.ID, err)
		}

		c.Distance = cosineDistance(vector, buf, queryNorm)
		if h.Len() < k {
			heap.Push(h, c)
		} else if c.Distance < (*h)[0].Distance {
			(*h)[0] = c
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	rows.Close()

	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch full records only for the top-K IDs.
	top := make([]idDistance, h.Len())
	for i := len(top) - 1; i >= 0; i-- {
		top[i] = heap.Pop(h).(idDistance)
	}

	ids := make([]string, len(top))
	for i, c := range top {
		ids[i] = c.ID
	}
	byID, err := fetchByIDs(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]ScoredRecord, 0, len(top))
	for _, c := range top {
		r, ok := byID[c.ID]
		if !ok {
			continue
		}
		results = append(results, ScoredRecord{Record: r, Distance: c.Distance})
	}
	return results, nil
}

func fetchByIDs(ctx context.Context, tx *sql.Tx, ids []string) (map[string]Record, error) {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT id, source, file_type, text, embedding, metadata, created_at
		FROM fragments WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Record, len(ids))
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out[r.ID] = r
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (Record, error) {
	var r Record
	var blob []byte
	var createdAt string
	if err := row.Scan(&r.ID, &r.Source, &r.FileType, &r.Text, &blob, &r.Metadata, &createdAt); err != nil {
		return Record{}, fmt.Errorf("scanning record: %w", err)
	}
	embedding, err := decodeFloat32s(blob)
	if err != nil {
		return Record{}, fmt.Errorf("decoding embedding for %s: %w", r.ID, err)
	}
	r.Embedding = embedding
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("parsing created_at for id %s: %w", r.ID, err)
	}
	r.CreatedAt = t
	return r, nil
}

// Delete removes the given ids. Unknown ids are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `DELETE FROM fragments WHERE id IN (?` + strings.Repeat(",?", len(ids)-1) + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting %d records: %w", len(ids), err)
	}
	return nil
}

// DeleteSource removes every fragment whose source filename equals source.
// Matching on the stored column means "a" never removes fragments of "a_b".
func (s *SQLiteStore) DeleteSource(ctx context.Context, source string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM fragments WHERE source = ?`, source)
	if err != nil {
		return 0, fmt.Errorf("deleting source %s: %w", source, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ReplaceSource swaps all fragments of source for records atomically.
func (s *SQLiteStore) ReplaceSource(ctx context.Context, source string, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning replace transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM fragments WHERE source = ?`, source); err != nil {
		return fmt.Errorf("clearing source %s: %w", source, err)
	}
	if err := insertRecords(ctx, tx, records); err != nil {
		return err
	}
	return tx.Commit()
}

// ExportAll returns all fragments in insertion order.
func (s *SQLiteStore) ExportAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, file_type, text, embedding, metadata, created_at
		FROM fragments ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying all vectors: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of stored fragments.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fragments").Scan(&count)
	return count, err
}

// Sources lists distinct source filenames ordered by name.
func (s *SQLiteStore) Sources(ctx context.Context) ([]SourceInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, MAX(file_type), COUNT(*), MAX(created_at)
		FROM fragments GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	var out []SourceInfo
	for rows.Next() {
		var si SourceInfo
		var updated string
		if err := rows.Scan(&si.Source, &si.FileType, &si.Fragments, &updated); err != nil {
			return nil, fmt.Errorf("scanning source: %w", err)
		}
		if si.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, fmt.Errorf("parsing created_at for source %s: %w", si.Source, err)
		}
		out = append(out, si)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

// FragmentID builds the "<filename>_<index>" id of a fragment.
func FragmentID(source string, index int) string {
	return fmt.Sprintf("%s_%d", source, index)
}

// sourceFromID recovers the filename from a "<filename>_<index>" id.
func sourceFromID(id string) string {
	i := strings.LastIndexByte(id, '_')
	if i < 0 {
		return id
	}
	return id[:i]
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4 (indicates data corruption).
func decodeFloat32s(b []byte) ([]float32, error) {
	return decodeFloat32sInto(nil, b)
}

// decodeFloat32sInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosineDistance returns 1 - cos(a, b), clamped to [0,2]. aNorm is the
// precomputed L2 norm of a. Mismatched dimensions or zero vectors have
// distance 1.
func cosineDistance(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) || aNorm == 0 {
		return 1
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 1
	}
	d := 1 - dot/(float64(aNorm)*bNorm)
	switch {
	case d < 0:
		d = 0
	case d > 2:
		d = 2
	}
	return float32(d)
}

// idDistanceHeap keeps the k nearest candidates with the farthest on top.
// Equal distances prefer the earlier-inserted fragment.
type idDistanceHeap []idDistance

func (h idDistanceHeap) Len() int { return len(h) }
func (h idDistanceHeap) Less(i, j int) bool {
	if h[i].Distance != h[j].Distance {
		return h[i].Distance > h[j].Distance
	}
	return h[i].Seq > h[j].Seq
}
func (h idDistanceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idDistanceHeap) Push(x interface{}) { *h = append(*h, x.(idDistance)) }
func (h *idDistanceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
