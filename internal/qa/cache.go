package qa

import (
	"context"
	"strings"

	"github.com/borisletic/lti-qa-tool/internal/metrics"
	"github.com/borisletic/lti-qa-tool/internal/provenance"
)

// DefaultCacheThreshold is the confidence a prior answer must exceed to be reused.
const DefaultCacheThreshold = 0.85

// CachePolicy decides when a prior answer from the provenance graph may be
// returned instead of running retrieval and generation.
//
// Matching is keyword substring overlap (see provenance.Graph.FindSimilar),
// an approximation of semantic similarity. With InvalidateOnChange disabled,
// cached answers never expire when course material changes.
type CachePolicy struct {
	Disabled           bool
	Threshold          float64
	InvalidateOnChange bool
}

// DefaultCachePolicy returns the policy used when none is configured.
func DefaultCachePolicy() CachePolicy {
	return CachePolicy{Threshold: DefaultCacheThreshold, InvalidateOnChange: true}
}

// Lookup returns the best prior answer for question in course when it passes
// the policy.
func (p CachePolicy) Lookup(g *provenance.Graph, question, course string) (provenance.Similar, bool) {
	if p.Disabled {
		return provenance.Similar{}, false
	}
	top := g.FindSimilar(question, course, 1)
	if len(top) == 0 || top[0].Confidence <= p.Threshold {
		return provenance.Similar{}, false
	}
	if p.InvalidateOnChange {
		if changed, ok := g.LastCorpusChange(course); ok && top[0].GeneratedAt.Before(changed) {
			return provenance.Similar{}, false
		}
	}
	return top[0], true
}

// Ask answers question, reusing a prior answer when the cache policy allows
// it. Cache hits are not registered again and carry the original question id.
func (e *Engine) Ask(ctx context.Context, question, user string) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, ErrEmptyInput
	}

	if hit, ok := e.cfg.Cache.Lookup(e.graph, question, e.course); ok {
		e.logger.Debug("answer served from cache", "question_id", hit.QuestionID, "confidence", hit.Confidence)
		e.metrics.ObserveAsk(metrics.OutcomeCached)
		return Result{
			Answer:     hit.Answer,
			Confidence: hit.Confidence,
			Sources:    []Source{},
			Cached:     true,
			QuestionID: hit.QuestionID,
		}, nil
	}

	return e.Query(ctx, question, user, 0)
}
