package retrieval

import (
	"context"
	"fmt"
)

// Fragment is a retrieved piece of course material with its distance to the question.
type Fragment struct {
	ID       string
	Source   string
	FileType string
	Text     string
	Metadata string
	Distance float32
}

// Retriever combines embedding and vector search to find relevant fragments.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve embeds the question and returns the top-K nearest fragments,
// nearest first.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int) ([]Fragment, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	scored, err := r.store.Query(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	return scoredToFragments(scored), nil
}

func scoredToFragments(scored []ScoredRecord) []Fragment {
	out := make([]Fragment, len(scored))
	for i, s := range scored {
		out[i] = Fragment{
			ID:       s.ID,
			Source:   s.Source,
			FileType: s.FileType,
			Text:     s.Text,
			Metadata: s.Metadata,
			Distance: s.Distance,
		}
	}
	return out
}
