package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/borisletic/lti-qa-tool/internal/extract"
)

// ChangeKind classifies a filesystem event on a material file.
type ChangeKind int

const (
	ChangeUpserted ChangeKind = iota + 1
	ChangeRemoved
)

// classify maps an fsnotify event to a change. Directories, hidden files,
// unsupported extensions and attribute-only events are ignored.
func classify(ev fsnotify.Event, isDir func(string) bool) (ChangeKind, bool) {
	if !include(filepath.Base(ev.Name)) {
		return 0, false
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return ChangeRemoved, true
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if isDir(ev.Name) {
			return 0, false
		}
		return ChangeUpserted, true
	}
	return 0, false
}

// DefaultSettle is how long a file must stay quiet before it is ingested.
const DefaultSettle = 500 * time.Millisecond

// Watcher keeps a course collection in sync with a folder: new or modified
// files are re-ingested, removed files are deleted from the collection.
type Watcher struct {
	index  Indexer
	docs   DocumentStore
	course string
	dir    string
	settle time.Duration
	logger *slog.Logger

	// OnResult, when set, is called after each processed change.
	OnResult func(kind ChangeKind, out Outcome, err error)

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a Watcher for dir. settle <= 0 uses DefaultSettle.
func NewWatcher(index Indexer, docs DocumentStore, course, dir string, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{
		index:   index,
		docs:    docs,
		course:  course,
		dir:     dir,
		settle:  settle,
		logger:  slog.Default().With("course", course, "dir", dir),
		pending: make(map[string]*time.Timer),
	}
}

// Run watches the folder until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching folder")

	var wg sync.WaitGroup
	defer func() {
		w.mu.Lock()
		for name, t := range w.pending {
			if t.Stop() {
				wg.Done()
			}
			delete(w.pending, name)
		}
		w.mu.Unlock()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			kind, ok := classify(ev, isDir)
			if !ok {
				continue
			}
			w.schedule(ctx, &wg, ev.Name, kind)
		}
	}
}

// schedule debounces changes per file so editors that write in several
// steps trigger a single ingest.
func (w *Watcher) schedule(ctx context.Context, wg *sync.WaitGroup, path string, kind ChangeKind) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		wg.Done()
	}
	wg.Add(1)
	w.pending[path] = time.AfterFunc(w.settle, func() {
		defer wg.Done()
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.apply(ctx, path, kind)
	})
}

func (w *Watcher) apply(ctx context.Context, path string, kind ChangeKind) {
	var (
		out Outcome
		err error
	)
	switch kind {
	case ChangeUpserted:
		out, err = File(ctx, w.index, w.docs, w.course, path)
	case ChangeRemoved:
		out, err = w.remove(ctx, filepath.Base(path))
	}
	if err != nil {
		w.logger.Warn("sync failed", "file", out.Filename, "error", err)
	} else {
		w.logger.Info("synced", "file", out.Filename, "fragments", out.Fragments)
	}
	if w.OnResult != nil {
		w.OnResult(kind, out, err)
	}
}

func (w *Watcher) remove(ctx context.Context, name string) (Outcome, error) {
	out := Outcome{Filename: name, FileType: extract.FileType(name)}
	n, err := Remove(ctx, w.index, w.docs, w.course, name)
	out.Fragments = n
	if err != nil {
		out.Error = err.Error()
	}
	return out, err
}
