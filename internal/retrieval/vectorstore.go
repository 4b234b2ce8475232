package retrieval

import (
	"context"
	"errors"
	"time"
)

// ErrLengthMismatch is returned by AddBatch when the ids, embeddings, texts
// and metadata slices differ in length.
var ErrLengthMismatch = errors.New("ids, embeddings, texts and metadata must have equal length")

// VectorStore is the per-collection interface for fragment storage and
// nearest-neighbour search. Distances are cosine distances in [0,2].
//
// Re-adding an existing id overwrites the stored fragment. Deleting unknown
// ids is a no-op.
type VectorStore interface {
	// Add upserts records in submission order.
	Add(ctx context.Context, records []Record) error

	// Query returns at most k records ordered by ascending distance to vector.
	Query(ctx context.Context, vector []float32, k int) ([]ScoredRecord, error)

	// Delete removes exactly the given ids.
	Delete(ctx context.Context, ids []string) error

	// DeleteSource removes every fragment produced from the given filename and
	// reports how many were removed.
	DeleteSource(ctx context.Context, source string) (int, error)

	// ReplaceSource removes every fragment of source and adds records in a
	// single transaction.
	ReplaceSource(ctx context.Context, source string, records []Record) error

	// Count returns the number of stored fragments.
	Count(ctx context.Context) (int, error)

	// ExportAll returns every stored fragment in insertion order.
	ExportAll(ctx context.Context) ([]Record, error)

	// Sources lists the distinct source filenames with their fragment counts.
	Sources(ctx context.Context) ([]SourceInfo, error)
}

// Record is one stored fragment.
type Record struct {
	ID        string
	Source    string
	FileType  string
	Text      string
	Embedding []float32
	Metadata  string // JSON object stored as text
	CreatedAt time.Time
}

// ScoredRecord is a Record with its cosine distance to the query vector.
type ScoredRecord struct {
	Record
	Distance float32
}

// SourceInfo summarises the fragments stored for one source filename.
type SourceInfo struct {
	Source    string
	FileType  string
	Fragments int
	UpdatedAt time.Time
}
