// Package ingest loads course material files into course collections,
// directly, from a folder, through the background job queue, or by watching
// a folder for changes.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/borisletic/lti-qa-tool/internal/extract"
	"github.com/borisletic/lti-qa-tool/internal/qa"
	"github.com/borisletic/lti-qa-tool/internal/segment"
	"github.com/borisletic/lti-qa-tool/internal/storage"
)

// Indexer writes documents into course collections. *qa.Registry implements it.
type Indexer interface {
	Ingest(ctx context.Context, course, text string, meta qa.DocumentMeta) (int, error)
	Remove(ctx context.Context, course, filename string) (int, error)
}

// DocumentStore records the indexing state of material files.
type DocumentStore interface {
	UpsertDocument(d storage.Document) error
}

// Compile-time check.
var _ Indexer = (*qa.Registry)(nil)

var errBadPayload = errors.New("invalid job payload")

// IsPermanent reports whether err cannot succeed on retry.
func IsPermanent(err error) bool {
	for _, target := range []error{
		qa.ErrEmptyInput,
		extract.ErrUnsupported,
		extract.ErrInvalidDocument,
		segment.ErrConfig,
		os.ErrNotExist,
		errBadPayload,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Outcome describes one ingested file.
type Outcome struct {
	Filename  string `json:"filename"`
	FileType  string `json:"file_type"`
	Fragments int    `json:"fragments"`
	Words     int    `json:"words"`
	Error     string `json:"error,omitempty"`
}

// File extracts the text of path and ingests it into course under its base
// name. A non-nil docs receives the resulting document state.
func File(ctx context.Context, idx Indexer, docs DocumentStore, course, path string) (Outcome, error) {
	name := filepath.Base(path)
	out := Outcome{Filename: name, FileType: extract.FileType(name)}

	n, words, err := ingestFile(ctx, idx, course, path, name)
	out.Fragments, out.Words = n, words
	if err != nil {
		out.Error = err.Error()
	}

	if docs != nil {
		doc := storage.Document{
			Course:    course,
			Filename:  name,
			FileType:  out.FileType,
			Fragments: n,
			Status:    storage.DocIndexed,
		}
		if err != nil {
			doc.Status, doc.LastError = storage.DocFailed, err.Error()
		}
		if derr := docs.UpsertDocument(doc); derr != nil {
			return out, errors.Join(err, fmt.Errorf("recording document %s: %w", name, derr))
		}
	}
	return out, err
}

func ingestFile(ctx context.Context, idx Indexer, course, path, name string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	text, err := extract.Text(name, f)
	if err != nil {
		return 0, 0, err
	}
	words := len(strings.Fields(text))

	n, err := idx.Ingest(ctx, course, text, qa.DocumentMeta{
		Filename: name,
		FileType: extract.FileType(name),
	})
	return n, words, err
}

// Remove deletes filename from course and marks the document deleted. It
// returns the number of fragments removed.
func Remove(ctx context.Context, idx Indexer, docs DocumentStore, course, filename string) (int, error) {
	n, err := idx.Remove(ctx, course, filename)
	if err != nil {
		return 0, err
	}
	if docs != nil {
		doc := storage.Document{
			Course:   course,
			Filename: filename,
			FileType: extract.FileType(filename),
			Status:   storage.DocDeleted,
		}
		if err := docs.UpsertDocument(doc); err != nil {
			return n, fmt.Errorf("recording document %s: %w", filename, err)
		}
	}
	return n, nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
