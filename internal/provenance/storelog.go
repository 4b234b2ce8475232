package provenance

import (
	"context"

	"github.com/borisletic/lti-qa-tool/internal/storage"
)

// StoreLog persists the graph in the triples table of a storage.Store.
type StoreLog struct {
	store *storage.Store
}

// NewStoreLog returns a Log backed by store.
func NewStoreLog(store *storage.Store) *StoreLog {
	return &StoreLog{store: store}
}

func (l *StoreLog) Append(ctx context.Context, triples []Triple) error {
	rows := make([]storage.TripleRow, len(triples))
	for i, t := range triples {
		kind := "literal"
		if t.Object.Kind == KindIRI {
			kind = "iri"
		}
		rows[i] = storage.TripleRow{
			Subject:    t.Subject,
			Predicate:  t.Predicate,
			Object:     t.Object.Value,
			ObjectKind: kind,
			Datatype:   t.Object.Datatype,
			Lang:       t.Object.Lang,
		}
	}
	return l.store.AppendTriples(ctx, rows)
}

func (l *StoreLog) Replay(ctx context.Context, fn func(Triple) error) error {
	return l.store.ReplayTriples(ctx, func(r storage.TripleRow) error {
		obj := Term{Kind: KindLiteral, Value: r.Object, Datatype: r.Datatype, Lang: r.Lang}
		if r.ObjectKind == "iri" {
			obj = IRI(r.Object)
		}
		return fn(Triple{Subject: r.Subject, Predicate: r.Predicate, Object: obj})
	})
}

// Compile-time check.
var _ Log = (*StoreLog)(nil)
