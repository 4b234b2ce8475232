package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// TripleRow is one persisted statement of the provenance log.
type TripleRow struct {
	Seq        int64
	Subject    string
	Predicate  string
	Object     string
	ObjectKind string // "iri" or "literal"
	Datatype   string // XSD datatype IRI for typed literals, empty otherwise
	Lang       string // language tag for tagged literals, empty otherwise
	CreatedAt  time.Time
}

// Document statuses.
const (
	DocPending = "pending"
	DocIndexed = "indexed"
	DocFailed  = "failed"
	DocDeleted = "deleted"
)

// Document tracks one uploaded course material file.
type Document struct {
	Course    string
	Filename  string
	FileType  string
	Fragments int
	Status    string
	LastError string
	UpdatedAt time.Time
}
