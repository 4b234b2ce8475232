package qa

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/borisletic/lti-qa-tool/internal/engine"
	"github.com/borisletic/lti-qa-tool/internal/metrics"
	"github.com/borisletic/lti-qa-tool/internal/provenance"
	"github.com/borisletic/lti-qa-tool/internal/retrieval"
)

// OpenStoreFunc opens the collection for a course.
type OpenStoreFunc func(course string) (retrieval.VectorStore, error)

// SQLiteCollections opens per-course SQLite collections under dataDir.
func SQLiteCollections(dataDir string) OpenStoreFunc {
	return func(course string) (retrieval.VectorStore, error) {
		return retrieval.OpenCollection(retrieval.CollectionPath(dataDir, course), retrieval.CollectionName(course))
	}
}

// Registry owns one Engine per course. Concurrent first access for the same
// course opens a single collection handle.
type Registry struct {
	backend  engine.Engine
	embedder *retrieval.Embedder
	graph    *provenance.Graph
	metrics  *metrics.Metrics
	cfg      Config
	open     OpenStoreFunc

	mu      sync.RWMutex
	engines map[string]*Engine
	group   singleflight.Group
}

// NewRegistry creates an empty Registry. Engines are built on demand with cfg.
func NewRegistry(backend engine.Engine, embedder *retrieval.Embedder, graph *provenance.Graph, m *metrics.Metrics, open OpenStoreFunc, cfg Config) *Registry {
	return &Registry{
		backend:  backend,
		embedder: embedder,
		graph:    graph,
		metrics:  m,
		cfg:      cfg,
		open:     open,
		engines:  make(map[string]*Engine),
	}
}

// Graph returns the shared provenance graph.
func (r *Registry) Graph() *provenance.Graph { return r.graph }

// Get returns the Engine for course, opening its collection on first use.
func (r *Registry) Get(ctx context.Context, course string) (*Engine, error) {
	if course == "" {
		return nil, ErrEmptyInput
	}

	r.mu.RLock()
	e, ok := r.engines[course]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	ch := r.group.DoChan(course, func() (any, error) {
		r.mu.RLock()
		e, ok := r.engines[course]
		r.mu.RUnlock()
		if ok {
			return e, nil
		}

		store, err := r.open(course)
		if err != nil {
			return nil, fmt.Errorf("opening collection for course %s: %w", course, err)
		}
		e = NewEngine(course, r.backend, r.embedder, store, r.graph, r.metrics, r.cfg)

		r.mu.Lock()
		r.engines[course] = e
		r.mu.Unlock()
		return e, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Engine), nil
	}
}

// Unavailable returns the answer served when a course collection cannot be
// opened: the no-context message with confidence 0 and no sources.
func (r *Registry) Unavailable() Result {
	r.metrics.ObserveAsk(metrics.OutcomeFallback)
	return Result{Answer: LocaleFor(r.cfg.Language).NoContext, Sources: []Source{}}
}

// Courses returns the ids of courses with an open engine, sorted.
func (r *Registry) Courses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for c := range r.engines {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Close closes every collection handle the registry opened.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for course, e := range r.engines {
		if c, ok := e.store.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing course %s: %w", course, err))
			}
		}
		delete(r.engines, course)
	}
	return errors.Join(errs...)
}

// Ingest stores a document in the collection of course.
func (r *Registry) Ingest(ctx context.Context, course, text string, meta DocumentMeta) (int, error) {
	e, err := r.Get(ctx, course)
	if err != nil {
		return 0, err
	}
	return e.Ingest(ctx, text, meta)
}

// Remove deletes a document from the collection of course.
func (r *Registry) Remove(ctx context.Context, course, filename string) (int, error) {
	e, err := r.Get(ctx, course)
	if err != nil {
		return 0, err
	}
	return e.Remove(ctx, filename)
}
