package provenance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/borisletic/lti-qa-tool/internal/storage"
)

// memLog is an in-memory Log with optional failure injection.
type memLog struct {
	mu        sync.Mutex
	triples   []Triple
	appendErr error
	appends   int
}

func (m *memLog) Append(_ context.Context, triples []Triple) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appends++
	m.triples = append(m.triples, triples...)
	return nil
}

func (m *memLog) Replay(_ context.Context, fn func(Triple) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.triples {
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

func openTestGraph(t *testing.T, opts ...Option) (*Graph, *memLog) {
	t.Helper()
	log := &memLog{}
	g, err := Open(context.Background(), log, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return g, log
}

func register(t *testing.T, g *Graph, question, answer, course string, conf float64) string {
	t.Helper()
	qid, _, err := g.RegisterQuestionAnswer(context.Background(), question, answer, course, "u1", conf, nil)
	if err != nil {
		t.Fatalf("RegisterQuestionAnswer: %v", err)
	}
	return qid
}

func TestRegisterQuestionAnswer_PersistsBeforeReturn(t *testing.T) {
	g, log := openTestGraph(t)

	qid, aid, err := g.RegisterQuestionAnswer(context.Background(),
		"Sta je LTI?", "LTI je standard.", "1", "student7", 0.8, []string{"lti.pdf_0", "lti.pdf_2"})
	if err != nil {
		t.Fatalf("RegisterQuestionAnswer: %v", err)
	}
	if qid == "" || aid == "" || qid == aid {
		t.Fatalf("ids = %q, %q", qid, aid)
	}
	if log.appends != 1 {
		t.Errorf("appends = %d, want 1", log.appends)
	}
	if len(log.triples) != g.Len() {
		t.Errorf("log has %d triples, graph has %d", len(log.triples), g.Len())
	}

	sources := g.Match(Pattern{Subject: AnswerIRI(aid), Predicate: PredSupportedBy})
	if len(sources) != 2 || sources[0].Object.Value != "lti.pdf_0" || sources[1].Object.Value != "lti.pdf_2" {
		t.Errorf("supportedBy = %+v", sources)
	}
	users := g.Match(Pattern{Subject: QuestionIRI(qid), Predicate: PredAskedBy})
	if len(users) != 1 || users[0].Object.Value != UserIRI("student7") {
		t.Errorf("askedBy = %+v", users)
	}
}

func TestRegisterQuestionAnswer_ClampsConfidence(t *testing.T) {
	g, _ := openTestGraph(t)

	for _, conf := range []float64{-0.5, 1.7, math.NaN()} {
		_, aid, err := g.RegisterQuestionAnswer(context.Background(), "q text", "a", "1", "u", conf, nil)
		if err != nil {
			t.Fatalf("RegisterQuestionAnswer(%v): %v", conf, err)
		}
		got := g.Match(Pattern{Subject: AnswerIRI(aid), Predicate: PredConfidenceScore})
		if len(got) != 1 {
			t.Fatalf("no confidence triple for %v", conf)
		}
		if v := got[0].Object.Value; v != "0" && v != "1" {
			t.Errorf("confidence(%v) stored as %q, want 0 or 1", conf, v)
		}
	}
}

func TestRegisterQuestionAnswer_EmptyQuestion(t *testing.T) {
	g, log := openTestGraph(t)

	_, _, err := g.RegisterQuestionAnswer(context.Background(), "   ", "a", "1", "u", 0.5, nil)
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("err = %v, want ErrEmptyInput", err)
	}
	if len(log.triples) != 0 {
		t.Errorf("log has %d triples, want 0", len(log.triples))
	}
}

func TestCommit_LogFailureLeavesGraphUnchanged(t *testing.T) {
	g, log := openTestGraph(t)
	log.appendErr = errors.New("disk full")

	if _, _, err := g.RegisterQuestionAnswer(context.Background(), "question", "a", "1", "u", 0.5, nil); err == nil {
		t.Fatal("expected error")
	}
	if g.Len() != 0 {
		t.Errorf("graph has %d triples after failed append, want 0", g.Len())
	}
}

func TestAddFeedback_RatingValidation(t *testing.T) {
	g, log := openTestGraph(t)
	qid := register(t, g, "Kako radi LTI launch?", "Preko POST forme.", "1", 0.9)
	before := len(log.triples)

	for _, rating := range []int{0, 6, -1} {
		_, err := g.AddFeedback(context.Background(), qid, rating, "x")
		if !errors.Is(err, ErrInvalidRating) {
			t.Errorf("AddFeedback(rating=%d) = %v, want ErrInvalidRating", rating, err)
		}
	}
	if len(log.triples) != before {
		t.Errorf("log grew by %d triples on invalid ratings", len(log.triples)-before)
	}

	if _, err := g.AddFeedback(context.Background(), qid, 3, "ok"); err != nil {
		t.Fatalf("AddFeedback(3): %v", err)
	}
	st := g.Statistics("1")
	if st.FeedbackCount != 1 || st.MeanRating != 3 {
		t.Errorf("stats = %+v, want one feedback with mean 3", st)
	}
}

func TestAddFeedback_UnknownQuestion(t *testing.T) {
	g, _ := openTestGraph(t)

	_, err := g.AddFeedback(context.Background(), "does-not-exist", 4, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAddFeedback_CommentOptional(t *testing.T) {
	g, _ := openTestGraph(t)
	qid := register(t, g, "Pitanje broj jedan", "Odgovor", "1", 0.5)

	fid, err := g.AddFeedback(context.Background(), qid, 5, "")
	if err != nil {
		t.Fatalf("AddFeedback: %v", err)
	}
	if got := g.Match(Pattern{Subject: FeedbackIRI(fid), Predicate: PredComment}); len(got) != 0 {
		t.Errorf("empty comment stored: %+v", got)
	}
}

func TestFindSimilar_LTIStandardScenario(t *testing.T) {
	g, _ := openTestGraph(t)
	register(t, g, "Explain the LTI standard for LMS integration", "LTI connects tools.", "1", 0.9)
	register(t, g, "How do I submit homework?", "Use the upload form.", "1", 0.95)

	got := g.FindSimilar("What is the LTI standard?", "1", 5)
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1: %+v", len(got), got)
	}
	if got[0].Question != "Explain the LTI standard for LMS integration" {
		t.Errorf("question = %q", got[0].Question)
	}
	if got[0].Answer != "LTI connects tools." || got[0].Confidence != 0.9 {
		t.Errorf("result = %+v", got[0])
	}
}

func TestFindSimilar_NeverCrossesCourses(t *testing.T) {
	g, _ := openTestGraph(t)
	register(t, g, "Explain interoperability standards", "A", "1", 0.7)
	register(t, g, "Explain interoperability standards", "B", "2", 0.99)

	got := g.FindSimilar("interoperability", "1", 10)
	if len(got) != 1 || got[0].Answer != "A" {
		t.Fatalf("got %+v, want only course 1 answer", got)
	}
	for _, s := range g.FindSimilar("interoperability", "3", 10) {
		t.Errorf("unexpected result for empty course: %+v", s)
	}
}

func TestFindSimilar_OrderAndLimit(t *testing.T) {
	g, _ := openTestGraph(t)
	register(t, g, "moodle plugin first", "low", "1", 0.2)
	register(t, g, "moodle plugin second", "high", "1", 0.9)
	register(t, g, "moodle plugin third", "mid-a", "1", 0.5)
	register(t, g, "moodle plugin fourth", "mid-b", "1", 0.5)

	got := g.FindSimilar("moodle", "1", 3)
	want := []string{"high", "mid-a", "mid-b"}
	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Answer != w {
			t.Errorf("got[%d].Answer = %q, want %q", i, got[i].Answer, w)
		}
	}
}

func TestFindSimilar_ShortWordsMatchNothing(t *testing.T) {
	g, _ := openTestGraph(t)
	register(t, g, "what is it", "x", "1", 0.99)

	if got := g.FindSimilar("what is it", "1", 5); len(got) != 0 {
		t.Errorf("got %d results, want 0", len(got))
	}
}

func TestFindSimilar_CaseInsensitive(t *testing.T) {
	g, _ := openTestGraph(t)
	register(t, g, "Šta je CANVAS platforma?", "LMS.", "1", 0.8)

	if got := g.FindSimilar("canvas", "1", 5); len(got) != 1 {
		t.Errorf("got %d results, want 1", len(got))
	}
}

func TestFindSimilar_KeywordPolicy(t *testing.T) {
	g, _ := openTestGraph(t, WithKeywordPolicy(1, 3))
	register(t, g, "the lti spec", "x", "1", 0.8)

	if got := g.FindSimilar("lti zzzz", "1", 5); len(got) != 1 {
		t.Errorf("got %d results, want 1 with min length 3", len(got))
	}
	if got := g.FindSimilar("zzz lti", "1", 5); len(got) != 0 {
		t.Errorf("got %d results, want 0 when only the first keyword is used", len(got))
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords("Explain, explain the STANDARD (standard) of interoperability! please", 3, 5)
	want := []string{"explain", "standard", "interoperability"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Keywords = %v, want %v", got, want)
	}
	if got := Keywords("a bb ccc dddd", 3, 5); len(got) != 0 {
		t.Errorf("Keywords of short words = %v, want none", got)
	}
}

func TestStatistics(t *testing.T) {
	g, _ := openTestGraph(t)

	if st := g.Statistics("1"); st.QuestionCount != 0 || st.MeanConfidence != 0 {
		t.Errorf("empty stats = %+v", st)
	}

	register(t, g, "question one", "a", "1", 0.6)
	register(t, g, "question two", "b", "1", 0.8)
	register(t, g, "question three", "c", "2", 0.1)

	st := g.Statistics("1")
	if st.QuestionCount != 2 {
		t.Errorf("QuestionCount = %d, want 2", st.QuestionCount)
	}
	if math.Abs(st.MeanConfidence-0.7) > 1e-9 {
		t.Errorf("MeanConfidence = %f, want 0.7", st.MeanConfidence)
	}
}

func TestLogLaunchAndStats(t *testing.T) {
	g, _ := openTestGraph(t)

	if _, err := g.LogLaunch(context.Background(), "qa-assistant", "1", "u1"); err != nil {
		t.Fatalf("LogLaunch: %v", err)
	}
	if _, err := g.LogLaunch(context.Background(), "", "1", "u1"); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("LogLaunch without tool = %v, want ErrEmptyInput", err)
	}
	register(t, g, "question text", "a", "1", 0.5)

	st := g.Stats()
	if st.Nodes["ToolLaunch"] != 1 || st.Nodes["Question"] != 1 || st.Nodes["Answer"] != 1 {
		t.Errorf("Nodes = %v", st.Nodes)
	}
	if st.Classes != 8 {
		t.Errorf("Classes = %d, want 8", st.Classes)
	}
	if st.ObjectProperties != 7 || st.DataProperties != 10 {
		t.Errorf("properties = %d object, %d data", st.ObjectProperties, st.DataProperties)
	}
	if st.TotalTriples != st.EventTriples+len(Ontology()) {
		t.Errorf("TotalTriples = %d, EventTriples = %d", st.TotalTriples, st.EventTriples)
	}
}

func TestCorpusChange_Latest(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	g, _ := openTestGraph(t, WithClock(func() time.Time { return now }))

	if _, ok := g.LastCorpusChange("1"); ok {
		t.Fatal("expected no change recorded")
	}
	if err := g.RecordCorpusChange(context.Background(), "1", "a.pdf", ChangeIngest); err != nil {
		t.Fatalf("RecordCorpusChange: %v", err)
	}
	now = now.Add(time.Hour)
	if err := g.RecordCorpusChange(context.Background(), "1", "a.pdf", ChangeDelete); err != nil {
		t.Fatalf("RecordCorpusChange: %v", err)
	}
	if err := g.RecordCorpusChange(context.Background(), "2", "b.pdf", ChangeIngest); err != nil {
		t.Fatalf("RecordCorpusChange: %v", err)
	}

	got, ok := g.LastCorpusChange("1")
	if !ok || !got.Equal(now) {
		t.Errorf("LastCorpusChange = %v, %v; want %v", got, ok, now)
	}
}

func TestMatch_Wildcards(t *testing.T) {
	g, _ := openTestGraph(t)
	qid := register(t, g, "question text", "a", "1", 0.5)

	all := g.Match(Pattern{Subject: QuestionIRI(qid)})
	if len(all) != 5 {
		t.Errorf("question has %d triples, want 5", len(all))
	}
	if all[0].Predicate != RDFType {
		t.Errorf("first triple predicate = %q, want rdf:type", all[0].Predicate)
	}

	classes := g.Match(Pattern{Predicate: RDFType, Object: OWL + "Class"})
	if len(classes) != 8 {
		t.Errorf("got %d classes, want 8", len(classes))
	}
}

func TestOpen_ReplaysStoreLog(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	st, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	g, err := Open(ctx, NewStoreLog(st))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	qid := register(t, g, "Explain the LTI standard", "LTI je standard.", "1", 0.9)
	if _, err := g.AddFeedback(ctx, qid, 4, "korisno"); err != nil {
		t.Fatalf("AddFeedback: %v", err)
	}
	wantLen := g.Len()
	st.Close()

	st, err = storage.Open(dir)
	if err != nil {
		t.Fatalf("reopen storage: %v", err)
	}
	defer st.Close()
	g, err = Open(ctx, NewStoreLog(st))
	if err != nil {
		t.Fatalf("reopen graph: %v", err)
	}
	if g.Len() != wantLen {
		t.Errorf("replayed %d triples, want %d", g.Len(), wantLen)
	}
	got := g.FindSimilar("What is the LTI standard?", "1", 5)
	if len(got) != 1 || got[0].Confidence != 0.9 {
		t.Errorf("FindSimilar after replay = %+v", got)
	}
	if s := g.Statistics("1"); s.FeedbackCount != 1 || s.MeanRating != 4 {
		t.Errorf("Statistics after replay = %+v", s)
	}
	text := g.Match(Pattern{Subject: QuestionIRI(qid), Predicate: PredQuestionText})
	if len(text) != 1 || text[0].Object.Lang != "sr" {
		t.Errorf("question literal after replay = %+v", text)
	}
}

func TestConcurrentRegistrations(t *testing.T) {
	g, log := openTestGraph(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := g.RegisterQuestionAnswer(context.Background(),
				fmt.Sprintf("question %d", i), "a", "1", "u", 0.5, nil)
			if err != nil {
				t.Errorf("RegisterQuestionAnswer: %v", err)
			}
		}()
	}
	wg.Wait()

	if st := g.Statistics("1"); st.QuestionCount != 20 {
		t.Errorf("QuestionCount = %d, want 20", st.QuestionCount)
	}
	if len(log.triples) != g.Len() {
		t.Errorf("log has %d triples, graph has %d", len(log.triples), g.Len())
	}
}
