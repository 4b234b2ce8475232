package qa

import (
	"context"
	"strings"
	"testing"
)

func TestAsk_CacheHit(t *testing.T) {
	eng := &mockEngine{
		embedFn: func(_ context.Context, _, _ string) ([]float32, error) {
			t.Error("cache hit should not embed the question")
			return []float32{1, 0, 0}, nil
		},
	}
	e, g := newTestEngine(t, eng, openMemCollection(t), Config{})
	ctx := context.Background()

	qid, _, err := g.RegisterQuestionAnswer(ctx, "Explain the LTI standard for LMS integration", "LTI connects external tools.", "1", "u0", 0.9, nil)
	if err != nil {
		t.Fatalf("RegisterQuestionAnswer: %v", err)
	}
	before := g.Len()

	res, err := e.Ask(ctx, "What is the LTI standard?", "u1")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !res.Cached {
		t.Fatal("expected a cache hit")
	}
	if res.Answer != "LTI connects external tools." || res.Confidence != 0.9 || res.QuestionID != qid {
		t.Errorf("result = %+v", res)
	}
	if eng.generates.Load() != 0 {
		t.Error("cache hit should not call the generator")
	}
	if g.Len() != before {
		t.Error("cache hit should not register a new interaction")
	}
}

func TestAsk_ThresholdIsExclusive(t *testing.T) {
	e, g := newTestEngine(t, &mockEngine{}, openMemCollection(t), Config{})
	ctx := context.Background()

	if _, _, err := g.RegisterQuestionAnswer(ctx, "Explain the LTI standard", "old", "1", "u0", 0.85, nil); err != nil {
		t.Fatalf("RegisterQuestionAnswer: %v", err)
	}

	res, err := e.Ask(ctx, "What is the LTI standard?", "u1")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Cached {
		t.Error("confidence equal to the threshold should not be served from cache")
	}
}

func TestAsk_OtherCourseNotCached(t *testing.T) {
	e, g := newTestEngine(t, &mockEngine{}, openMemCollection(t), Config{})
	ctx := context.Background()

	if _, _, err := g.RegisterQuestionAnswer(ctx, "Explain the LTI standard", "other course", "2", "u0", 0.99, nil); err != nil {
		t.Fatalf("RegisterQuestionAnswer: %v", err)
	}

	res, err := e.Ask(ctx, "What is the LTI standard?", "u1")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Cached {
		t.Error("answers from another course must not be reused")
	}
}

func TestAsk_InvalidatedByCorpusChange(t *testing.T) {
	e, g := newTestEngine(t, &mockEngine{}, openMemCollection(t), Config{})
	ctx := context.Background()

	if _, _, err := g.RegisterQuestionAnswer(ctx, "Explain the LTI standard", "stale", "1", "u0", 0.95, nil); err != nil {
		t.Fatalf("RegisterQuestionAnswer: %v", err)
	}
	if _, err := e.Ingest(ctx, "LTI standard povezuje alate sa LMS platformom.", DocumentMeta{Filename: "lti.txt"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	res, err := e.Ask(ctx, "What is the LTI standard?", "u1")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Cached {
		t.Error("answer older than the last corpus change should not be reused")
	}
	if res.Answer != "odgovor" {
		t.Errorf("answer = %q, want fresh generation", res.Answer)
	}
}

func TestAsk_StaleAnswerServedWhenInvalidationDisabled(t *testing.T) {
	cfg := Config{Cache: CachePolicy{Threshold: DefaultCacheThreshold}}
	e, g := newTestEngine(t, &mockEngine{}, openMemCollection(t), cfg)
	ctx := context.Background()

	if _, _, err := g.RegisterQuestionAnswer(ctx, "Explain the LTI standard", "stale", "1", "u0", 0.95, nil); err != nil {
		t.Fatalf("RegisterQuestionAnswer: %v", err)
	}
	if _, err := e.Ingest(ctx, "LTI standard povezuje alate.", DocumentMeta{Filename: "lti.txt"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	res, err := e.Ask(ctx, "What is the LTI standard?", "u1")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !res.Cached || res.Answer != "stale" {
		t.Errorf("result = %+v, want cached stale answer", res)
	}
}

func TestAsk_CacheDisabled(t *testing.T) {
	e, g := newTestEngine(t, &mockEngine{}, openMemCollection(t), Config{Cache: CachePolicy{Disabled: true}})
	ctx := context.Background()

	if _, _, err := g.RegisterQuestionAnswer(ctx, "Explain the LTI standard", "prior", "1", "u0", 0.99, nil); err != nil {
		t.Fatalf("RegisterQuestionAnswer: %v", err)
	}

	res, err := e.Ask(ctx, "What is the LTI standard?", "u1")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Cached {
		t.Error("disabled cache returned a hit")
	}
}

func TestAsk_ConfidentAnswerIsReused(t *testing.T) {
	eng := &mockEngine{}
	e, _ := newTestEngine(t, eng, openMemCollection(t), Config{})
	ctx := context.Background()

	if _, err := e.Ingest(ctx, strings.Repeat("Protokol LTI omogućava integraciju. ", 5), DocumentMeta{Filename: "lti.txt"}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	first, err := e.Ask(ctx, "Objasni integraciju alata", "u1")
	if err != nil {
		t.Fatalf("first Ask: %v", err)
	}
	if first.Cached || first.Confidence != 1 {
		t.Fatalf("first = %+v, want fresh answer with confidence 1", first)
	}

	second, err := e.Ask(ctx, "Kako radi integraciju?", "u2")
	if err != nil {
		t.Fatalf("second Ask: %v", err)
	}
	if !second.Cached || second.QuestionID != first.QuestionID {
		t.Errorf("second = %+v, want cache hit on %s", second, first.QuestionID)
	}
	if got := eng.generates.Load(); got != 1 {
		t.Errorf("generator called %d times, want 1", got)
	}
}
