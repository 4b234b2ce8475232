package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/borisletic/lti-qa-tool/internal/engine"
)

// mockVectorStore implements VectorStore for testing.
type mockVectorStore struct {
	queryFn func(ctx context.Context, vector []float32, k int) ([]ScoredRecord, error)
}

func (m *mockVectorStore) Add(_ context.Context, _ []Record) error { return nil }
func (m *mockVectorStore) Query(ctx context.Context, vector []float32, k int) ([]ScoredRecord, error) {
	return m.queryFn(ctx, vector, k)
}
func (m *mockVectorStore) Delete(_ context.Context, _ []string) error { return nil }
func (m *mockVectorStore) DeleteSource(_ context.Context, _ string) (int, error) {
	return 0, nil
}
func (m *mockVectorStore) ReplaceSource(_ context.Context, _ string, _ []Record) error {
	return nil
}
func (m *mockVectorStore) Count(_ context.Context) (int, error)          { return 0, nil }
func (m *mockVectorStore) ExportAll(_ context.Context) ([]Record, error) { return nil, nil }
func (m *mockVectorStore) Sources(_ context.Context) ([]SourceInfo, error) {
	return nil, nil
}

func staticEmbedder(vec []float32) *Embedder {
	return NewEmbedder(&mockEngine{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return vec, nil
		},
	}, "nomic-embed-text")
}

func TestRetrieve_MapsFragments(t *testing.T) {
	store := &mockVectorStore{
		queryFn: func(_ context.Context, vector []float32, k int) ([]ScoredRecord, error) {
			if k != 3 {
				t.Errorf("k = %d, want 3", k)
			}
			return []ScoredRecord{
				{Record: Record{ID: "lti.pdf_0", Source: "lti.pdf", FileType: "pdf", Text: "LTI je standard"}, Distance: 0.1},
				{Record: Record{ID: "lti.pdf_1", Source: "lti.pdf", FileType: "pdf", Text: "za integraciju"}, Distance: 0.3},
			}, nil
		},
	}
	r := NewRetriever(staticEmbedder([]float32{1, 0}), store)

	frags, err := r.Retrieve(context.Background(), "Sta je LTI?", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(frags) != 2 {
		t.Fatalf("got %d fragments, want 2", len(frags))
	}
	if frags[0].ID != "lti.pdf_0" || frags[0].Distance != 0.1 || frags[0].Source != "lti.pdf" {
		t.Errorf("frags[0] = %+v", frags[0])
	}
}

func TestRetrieve_EmbedFailure(t *testing.T) {
	store := &mockVectorStore{
		queryFn: func(_ context.Context, _ []float32, _ int) ([]ScoredRecord, error) {
			t.Fatal("store should not be queried when embedding fails")
			return nil, nil
		},
	}
	eng := &mockEngine{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return nil, engine.ErrBackendUnavailable
		},
	}
	r := NewRetriever(NewEmbedder(eng, "nomic-embed-text"), store)

	_, err := r.Retrieve(context.Background(), "q", 3)
	if !errors.Is(err, engine.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}
}

func TestRetrieve_StoreFailure(t *testing.T) {
	store := &mockVectorStore{
		queryFn: func(_ context.Context, _ []float32, _ int) ([]ScoredRecord, error) {
			return nil, errors.New("disk I/O error")
		},
	}
	r := NewRetriever(staticEmbedder([]float32{1}), store)

	if _, err := r.Retrieve(context.Background(), "q", 3); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetrieve_AgainstSQLiteStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Add(ctx, []Record{rec("a.txt", 0, unit(0)), rec("a.txt", 1, unit(1.2))}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	r := NewRetriever(staticEmbedder(unit(0)), s)
	frags, err := r.Retrieve(ctx, "q", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(frags) != 1 || frags[0].ID != "a.txt_0" {
		t.Errorf("frags = %+v, want [a.txt_0]", frags)
	}
}

func TestCollectionName(t *testing.T) {
	tests := map[string]string{
		"42":                 "course_42",
		"CS-101":             "course_CS-101",
		"a/b c":              "course_a_2fb_20c",
		"../escape":          "course__2e_2e_2fescape",
		"course-v1:MIT+6.00": "course_course-v1_3aMIT_2b6_2e00",
		"course-v1_MIT_6_00": "course_course-v1_5fMIT_5f6_5f00",
		"č":                  "course__c4_8d",
	}
	for in, want := range tests {
		if got := CollectionName(in); got != want {
			t.Errorf("CollectionName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCollectionName_DistinctCourses(t *testing.T) {
	ids := []string{
		"course-v1:MIT+6.00",
		"course-v1_MIT_6_00",
		"course-v1.MIT.6.00",
		"a b",
		"a_b",
		"a_20b",
		"a/b",
	}
	seen := make(map[string]string)
	for _, id := range ids {
		name := CollectionName(id)
		if prev, ok := seen[name]; ok {
			t.Errorf("CollectionName(%q) = CollectionName(%q) = %q", id, prev, name)
		}
		seen[name] = id
		if strings.ContainsAny(name, "/\\. :") {
			t.Errorf("CollectionName(%q) = %q contains path-unsafe characters", id, name)
		}
	}
	if CollectionPath("data", ids[0]) == CollectionPath("data", ids[1]) {
		t.Error("distinct courses share a collection file")
	}
}
