// Package provenance records questions, answers, feedback, tool launches and
// corpus changes as an append-only RDF graph. Every mutation is appended to a
// durable log before it becomes visible; the in-memory index is rebuilt by
// replaying the log on Open.
package provenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/knakk/rdf"
)

var (
	// ErrEmptyInput is returned when a required text field is blank.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidRating is returned by AddFeedback for ratings outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrNotFound is returned when a referenced node does not exist.
	ErrNotFound = errors.New("not found")
)

// Log is the durable, append-only backing store of a Graph.
type Log interface {
	// Append persists triples in order. They must be durable when Append returns nil.
	Append(ctx context.Context, triples []Triple) error

	// Replay calls fn for every persisted triple in insertion order.
	Replay(ctx context.Context, fn func(Triple) error) error
}

type node struct {
	class string
	props map[string][]Term
}

func (n *node) str(pred string) string {
	if v := n.props[pred]; len(v) > 0 {
		return v[0].Value
	}
	return ""
}

func (n *node) float(pred string) float64 {
	f, _ := strconv.ParseFloat(n.str(pred), 64)
	return f
}

func (n *node) time(pred string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, n.str(pred))
	return t
}

// Graph is the provenance graph. It is safe for concurrent use; mutations
// are serialized.
type Graph struct {
	mu        sync.RWMutex
	log       Log
	triples   []Triple
	nodes     map[string]*node
	byClass   map[string][]string
	answersOf map[string][]string

	lang          string
	maxKeywords   int
	minKeywordLen int
	now           func() time.Time
	newID         func() string
	logger        *slog.Logger
}

// Option configures a Graph.
type Option func(*Graph)

// WithLanguage sets the language tag of question and answer literals.
func WithLanguage(lang string) Option {
	return func(g *Graph) { g.lang = lang }
}

// WithKeywordPolicy sets how many keywords FindSimilar extracts and their
// minimum length in characters.
func WithKeywordPolicy(maxKeywords, minLen int) Option {
	return func(g *Graph) {
		if maxKeywords > 0 {
			g.maxKeywords = maxKeywords
		}
		if minLen > 0 {
			g.minKeywordLen = minLen
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Graph) { g.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) { g.logger = l }
}

// Open builds a Graph by replaying log.
func Open(ctx context.Context, log Log, opts ...Option) (*Graph, error) {
	g := &Graph{
		log:           log,
		nodes:         make(map[string]*node),
		byClass:       make(map[string][]string),
		answersOf:     make(map[string][]string),
		lang:          "sr",
		maxKeywords:   3,
		minKeywordLen: 5,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         func() string { return uuid.New().String() },
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if err := log.Replay(ctx, func(t Triple) error {
		g.apply(t)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("replaying provenance log: %w", err)
	}
	g.logger.Debug("provenance graph loaded", "triples", len(g.triples), "questions", len(g.byClass[ClassQuestion]))
	return g, nil
}

func (g *Graph) apply(t Triple) {
	g.triples = append(g.triples, t)
	n, ok := g.nodes[t.Subject]
	if !ok {
		n = &node{props: make(map[string][]Term)}
		g.nodes[t.Subject] = n
	}
	if t.Predicate == RDFType {
		n.class = t.Object.Value
		g.byClass[n.class] = append(g.byClass[n.class], t.Subject)
		return
	}
	n.props[t.Predicate] = append(n.props[t.Predicate], t.Object)
	if t.Predicate == PredAnswersQuestion {
		g.answersOf[t.Object.Value] = append(g.answersOf[t.Object.Value], t.Subject)
	}
}

// commitLocked appends triples to the log and then to the index.
// The caller must hold g.mu for writing.
func (g *Graph) commitLocked(ctx context.Context, triples []Triple) error {
	if err := g.log.Append(ctx, triples); err != nil {
		return fmt.Errorf("persisting provenance: %w", err)
	}
	for _, t := range triples {
		g.apply(t)
	}
	return nil
}

func (g *Graph) commit(ctx context.Context, triples []Triple) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.commitLocked(ctx, triples)
}

// asIRI returns v unchanged when it already is a valid absolute IRI,
// otherwise the node IRI built by mk.
func asIRI(v string, mk func(string) string) string {
	if strings.Contains(v, "://") {
		if _, err := rdf.NewIRI(v); err == nil {
			return v
		}
	}
	return mk(v)
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// RegisterQuestionAnswer records a question and its answer. The confidence
// is clamped to [0,1]; sources are the supporting fragment ids in rank order.
func (g *Graph) RegisterQuestionAnswer(ctx context.Context, question, answer, course, user string, confidence float64, sources []string) (questionID, answerID string, err error) {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(course) == "" {
		return "", "", ErrEmptyInput
	}
	if user == "" {
		user = "anonymous"
	}

	questionID, answerID = g.newID(), g.newID()
	qIRI, aIRI := QuestionIRI(questionID), AnswerIRI(answerID)
	now := g.now()

	triples := []Triple{
		{qIRI, RDFType, IRI(ClassQuestion)},
		{qIRI, PredQuestionText, Literal(question, g.lang)},
		{qIRI, PredAskedBy, IRI(asIRI(user, UserIRI))},
		{qIRI, PredRelatedToCourse, IRI(asIRI(course, CourseIRI))},
		{qIRI, PredTimestamp, DateTime(now)},
		{aIRI, RDFType, IRI(ClassAnswer)},
		{aIRI, PredAnswerText, Literal(answer, g.lang)},
		{aIRI, PredAnswersQuestion, IRI(qIRI)},
		{aIRI, PredConfidenceScore, Float(clamp01(confidence))},
		{aIRI, PredGeneratedAt, DateTime(now)},
	}
	for _, s := range sources {
		triples = append(triples, Triple{aIRI, PredSupportedBy, Literal(s, "")})
	}

	if err := g.commit(ctx, triples); err != nil {
		return "", "", err
	}
	return questionID, answerID, nil
}

// LogLaunch records a tool launch. Bare ids are expanded to node IRIs.
func (g *Graph) LogLaunch(ctx context.Context, tool, course, user string) (string, error) {
	if tool == "" || course == "" || user == "" {
		return "", ErrEmptyInput
	}
	id := g.newID()
	iri := LaunchIRI(id)
	err := g.commit(ctx, []Triple{
		{iri, RDFType, IRI(ClassToolLaunch)},
		{iri, PredLaunchedTool, IRI(asIRI(tool, ToolIRI))},
		{iri, PredInCourse, IRI(asIRI(course, CourseIRI))},
		{iri, PredByUser, IRI(asIRI(user, UserIRI))},
		{iri, PredTimestamp, DateTime(g.now())},
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// AddFeedback attaches a 1..5 rating and optional comment to a question.
// Validation happens before anything is written.
func (g *Graph) AddFeedback(ctx context.Context, questionID string, rating int, comment string) (string, error) {
	if rating < 1 || rating > 5 {
		return "", fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	qIRI := asIRI(questionID, QuestionIRI)
	if n, ok := g.nodes[qIRI]; !ok || n.class != ClassQuestion {
		return "", fmt.Errorf("question %s: %w", questionID, ErrNotFound)
	}

	id := g.newID()
	iri := FeedbackIRI(id)
	triples := []Triple{
		{iri, RDFType, IRI(ClassFeedback)},
		{iri, PredForQuestion, IRI(qIRI)},
		{iri, PredRating, Integer(rating)},
	}
	if comment != "" {
		triples = append(triples, Triple{iri, PredComment, Literal(comment, "")})
	}
	triples = append(triples, Triple{iri, PredTimestamp, DateTime(g.now())})

	if err := g.commitLocked(ctx, triples); err != nil {
		return "", err
	}
	return id, nil
}

// Corpus change kinds.
const (
	ChangeIngest = "ingest"
	ChangeDelete = "delete"
)

// RecordCorpusChange notes that a course document was (re)ingested or deleted.
func (g *Graph) RecordCorpusChange(ctx context.Context, course, filename, kind string) error {
	if course == "" || filename == "" {
		return ErrEmptyInput
	}
	iri := ChangeIRI(g.newID())
	return g.commit(ctx, []Triple{
		{iri, RDFType, IRI(ClassCorpusChange)},
		{iri, PredInCourse, IRI(asIRI(course, CourseIRI))},
		{iri, PredSourceFile, Literal(filename, "")},
		{iri, PredChangeKind, Literal(kind, "")},
		{iri, PredTimestamp, DateTime(g.now())},
	})
}

// LastCorpusChange returns the time of the most recent corpus change in course.
func (g *Graph) LastCorpusChange(course string) (time.Time, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	courseIRI := asIRI(course, CourseIRI)
	var latest time.Time
	found := false
	for _, s := range g.byClass[ClassCorpusChange] {
		n := g.nodes[s]
		if n.str(PredInCourse) != courseIRI {
			continue
		}
		if t := n.time(PredTimestamp); !found || t.After(latest) {
			latest, found = t, true
		}
	}
	return latest, found
}

// Match returns the triples matching p, schema first and then events in
// insertion order.
func (g *Graph) Match(p Pattern) []Triple {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Triple
	for _, src := range [][]Triple{ontology, g.triples} {
		for _, t := range src {
			if p.matches(t) {
				out = append(out, t)
			}
		}
	}
	return out
}

// GraphStats summarises the graph contents.
type GraphStats struct {
	TotalTriples     int
	EventTriples     int
	Classes          int
	ObjectProperties int
	DataProperties   int
	Nodes            map[string]int // instance count per class local name
}

// Stats reports triple counts, the schema size and instance counts per class.
func (g *Graph) Stats() GraphStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	st := GraphStats{
		TotalTriples: len(ontology) + len(g.triples),
		EventTriples: len(g.triples),
		Nodes:        make(map[string]int, len(g.byClass)),
	}
	for _, t := range ontology {
		if t.Predicate != RDFType {
			continue
		}
		switch t.Object.Value {
		case OWL + "Class":
			st.Classes++
		case OWL + "ObjectProperty":
			st.ObjectProperties++
		case OWL + "DatatypeProperty":
			st.DataProperties++
		}
	}
	for class, subjects := range g.byClass {
		st.Nodes[localID(class)] = len(subjects)
	}
	return st
}

// Len returns the number of event triples.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.triples)
}
