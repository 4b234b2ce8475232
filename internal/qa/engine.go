// Package qa answers course questions from retrieved material and records
// every interaction in the provenance graph.
package qa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/borisletic/lti-qa-tool/internal/engine"
	"github.com/borisletic/lti-qa-tool/internal/metrics"
	"github.com/borisletic/lti-qa-tool/internal/provenance"
	"github.com/borisletic/lti-qa-tool/internal/retrieval"
	"github.com/borisletic/lti-qa-tool/internal/segment"
)

var (
	// ErrEmptyInput is returned for an empty document or question.
	ErrEmptyInput = provenance.ErrEmptyInput

	// ErrBackendUnavailable is returned when embedding fails during ingest.
	ErrBackendUnavailable = engine.ErrBackendUnavailable
)

const (
	DefaultTopK            = 3
	DefaultRetrieveTimeout = 30 * time.Second
	DefaultIngestTimeout   = 5 * time.Minute

	defaultFilename = "doc"
)

// Config holds per-engine tunables. Zero values select the defaults.
type Config struct {
	GenerateModel   string
	Generate        engine.GenerateOptions
	GenerateTimeout time.Duration
	RetrieveTimeout time.Duration
	IngestTimeout   time.Duration
	SegmentSize     int
	SegmentOverlap  int
	TopK            int
	Language        string
	Cache           CachePolicy
}

func (c Config) withDefaults() Config {
	if c.GenerateModel == "" {
		c.GenerateModel = "mistral"
	}
	if c.Generate == (engine.GenerateOptions{}) {
		c.Generate = engine.DefaultGenerateOptions()
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = engine.DefaultGenerateTimeout
	}
	if c.RetrieveTimeout <= 0 {
		c.RetrieveTimeout = DefaultRetrieveTimeout
	}
	if c.IngestTimeout <= 0 {
		c.IngestTimeout = DefaultIngestTimeout
	}
	if c.SegmentSize == 0 && c.SegmentOverlap == 0 {
		c.SegmentSize = segment.DefaultSize
		c.SegmentOverlap = segment.DefaultOverlap
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.Cache == (CachePolicy{}) {
		c.Cache = DefaultCachePolicy()
	}
	return c
}

// Source is a fragment that supported an answer.
type Source struct {
	ID       string  `json:"id"`
	Filename string  `json:"filename"`
	Distance float32 `json:"distance"`
	Excerpt  string  `json:"excerpt"`
}

// Result is the answer to one question.
type Result struct {
	Answer     string   `json:"answer"`
	Confidence float64  `json:"confidence"`
	Sources    []Source `json:"sources"`
	Cached     bool     `json:"cached"`
	QuestionID string   `json:"question_id,omitempty"`
}

// DocumentMeta describes an ingested document.
type DocumentMeta struct {
	Filename string
	FileType string
	Extra    map[string]string
}

// Engine runs ingestion and question answering for one course.
type Engine struct {
	course    string
	cfg       Config
	locale    Locale
	backend   engine.Engine
	embedder  *retrieval.Embedder
	store     retrieval.VectorStore
	retriever *retrieval.Retriever
	graph     *provenance.Graph
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewEngine wires an Engine for course. A nil metrics disables instrumentation.
func NewEngine(course string, backend engine.Engine, embedder *retrieval.Embedder, store retrieval.VectorStore, graph *provenance.Graph, m *metrics.Metrics, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		course:    course,
		cfg:       cfg,
		locale:    LocaleFor(cfg.Language),
		backend:   backend,
		embedder:  embedder,
		store:     store,
		retriever: retrieval.NewRetriever(embedder, store),
		graph:     graph,
		metrics:   m,
		logger:    slog.Default().With("course", course),
	}
}

// Course returns the course id the engine serves.
func (e *Engine) Course() string { return e.course }

// Store returns the course collection.
func (e *Engine) Store() retrieval.VectorStore { return e.store }

// Ingest segments, embeds and stores a document, replacing any fragments
// previously stored under the same filename. It returns the number of
// fragments written. Nothing is written when any embedding fails.
func (e *Engine) Ingest(ctx context.Context, text string, meta DocumentMeta) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, ErrEmptyInput
	}
	if meta.Filename == "" {
		meta.Filename = defaultFilename
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.IngestTimeout)
	defer cancel()

	chunks, err := segment.Split(text, e.cfg.SegmentSize, e.cfg.SegmentOverlap)
	if err != nil {
		return 0, err
	}

	vecs, err := e.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("ingesting %s: %w", meta.Filename, err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = retrieval.Record{
			ID:        retrieval.FragmentID(meta.Filename, i),
			Source:    meta.Filename,
			FileType:  meta.FileType,
			Text:      chunk,
			Embedding: vecs[i],
			Metadata:  e.fragmentMetadata(meta, i),
			CreatedAt: now,
		}
	}

	if err := e.store.ReplaceSource(ctx, meta.Filename, records); err != nil {
		return 0, fmt.Errorf("storing %s: %w", meta.Filename, err)
	}
	e.metrics.AddFragments(len(records))

	if err := e.graph.RecordCorpusChange(ctx, e.course, meta.Filename, provenance.ChangeIngest); err != nil {
		return len(records), fmt.Errorf("recording corpus change: %w", err)
	}

	e.logger.Info("document ingested", "filename", meta.Filename, "fragments", len(records))
	return len(records), nil
}

// Remove deletes every fragment of filename and returns how many were removed.
func (e *Engine) Remove(ctx context.Context, filename string) (int, error) {
	if filename == "" {
		return 0, ErrEmptyInput
	}
	n, err := e.store.DeleteSource(ctx, filename)
	if err != nil {
		return 0, fmt.Errorf("deleting %s: %w", filename, err)
	}
	if n == 0 {
		return 0, nil
	}
	if err := e.graph.RecordCorpusChange(ctx, e.course, filename, provenance.ChangeDelete); err != nil {
		return n, fmt.Errorf("recording corpus change: %w", err)
	}
	e.logger.Info("document removed", "filename", filename, "fragments", n)
	return n, nil
}

func (e *Engine) fragmentMetadata(meta DocumentMeta, index int) string {
	m := make(map[string]string, len(meta.Extra)+4)
	for k, v := range meta.Extra {
		m[k] = v
	}
	m["filename"] = meta.Filename
	m["course"] = e.course
	m["chunk_index"] = fmt.Sprint(index)
	if meta.FileType != "" {
		m["file_type"] = meta.FileType
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Query answers question from the course collection and records the
// interaction. topK <= 0 uses the configured default.
//
//  1. Retrieve the nearest fragments (retrieval failures degrade to the no-context answer)
//  2. Build the grounding prompt
//  3. Generate with the configured sampling options and timeout
//  4. Score confidence as 1 - mean distance, clamped to [0, 1]
//  5. Register question and answer in the provenance graph
//
// Generation failures yield an explicit error answer with confidence 0. An
// error is returned only for empty input or when the interaction cannot be
// recorded; in the latter case the Result is still populated.
func (e *Engine) Query(ctx context.Context, question, user string, topK int) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, ErrEmptyInput
	}
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	res, outcome := e.answer(ctx, question, topK)

	qid, _, err := e.graph.RegisterQuestionAnswer(ctx, question, res.Answer, e.course, user, res.Confidence, sourceIDs(res.Sources))
	if err != nil {
		return res, fmt.Errorf("registering answer: %w", err)
	}
	res.QuestionID = qid
	e.metrics.ObserveAsk(outcome)
	return res, nil
}

func (e *Engine) answer(ctx context.Context, question string, topK int) (Result, string) {
	// 1. Retrieve.
	rctx, cancel := context.WithTimeout(ctx, e.cfg.RetrieveTimeout)
	fragments, err := e.retriever.Retrieve(rctx, question, topK)
	cancel()
	if err != nil {
		e.logger.Warn("retrieval failed, answering without context", "error", err)
		fragments = nil
	}
	if len(fragments) == 0 {
		return Result{Answer: e.locale.NoContext, Sources: []Source{}}, metrics.OutcomeFallback
	}

	// 2. Compose.
	prompt := e.locale.BuildPrompt(question, fragments)

	// 3. Generate.
	gctx, cancel := context.WithTimeout(ctx, e.cfg.GenerateTimeout)
	defer cancel()
	start := time.Now()
	text, err := e.backend.Generate(gctx, e.cfg.GenerateModel, prompt, e.cfg.Generate)
	e.metrics.ObserveGeneration(time.Since(start))
	if err != nil {
		e.logger.Warn("generation failed", "error", err)
		return Result{
			Answer:  fmt.Sprintf("%s: %v", e.locale.GenerationFailed, generationCause(err)),
			Sources: []Source{},
		}, metrics.OutcomeFailed
	}

	// 4. Score.
	return Result{
		Answer:     strings.TrimSpace(text),
		Confidence: Confidence(fragments),
		Sources:    toSources(fragments),
	}, metrics.OutcomeAnswered
}

// generationCause strips the backend sentinel prefix so the answer text names
// the underlying failure.
func generationCause(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}
	return err
}

// Confidence scores retrieval quality as 1 minus the mean fragment distance,
// clamped to [0, 1]. It reflects how close the evidence is to the question,
// not how certain the generator is. No fragments score 0.
func Confidence(fragments []retrieval.Fragment) float64 {
	if len(fragments) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fragments {
		sum += float64(f.Distance)
	}
	c := 1 - sum/float64(len(fragments))
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}

func toSources(fragments []retrieval.Fragment) []Source {
	out := make([]Source, len(fragments))
	for i, f := range fragments {
		out[i] = Source{
			ID:       f.ID,
			Filename: f.Source,
			Distance: f.Distance,
			Excerpt:  excerpt(f.Text, 200),
		}
	}
	return out
}

func sourceIDs(sources []Source) []string {
	if len(sources) == 0 {
		return nil
	}
	ids := make([]string, len(sources))
	for i, s := range sources {
		ids[i] = s.ID
	}
	return ids
}

func excerpt(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
