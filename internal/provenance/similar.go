package provenance

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Similar is a previously answered question returned by FindSimilar.
type Similar struct {
	QuestionID  string
	Question    string
	Answer      string
	Confidence  float64
	GeneratedAt time.Time
}

// Keywords extracts up to max distinct lower-cased words of at least minLen
// characters, in order of first appearance. Surrounding punctuation is
// trimmed before measuring.
func Keywords(text string, max, minLen int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		if len(out) == max {
			break
		}
		w = strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		}))
		if utf8.RuneCountInString(w) < minLen || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// FindSimilar returns answered questions of the same course whose text
// contains any keyword of question as a case-insensitive substring. This is
// keyword overlap, not semantic similarity. Results are ordered by
// descending confidence, ties in insertion order, and truncated to limit.
// A question without keywords matches nothing.
func (g *Graph) FindSimilar(question, course string, limit int) []Similar {
	if limit <= 0 {
		return nil
	}
	keywords := Keywords(question, g.maxKeywords, g.minKeywordLen)
	if len(keywords) == 0 {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	courseIRI := asIRI(course, CourseIRI)
	var out []Similar
	for _, qIRI := range g.byClass[ClassQuestion] {
		q := g.nodes[qIRI]
		if q.str(PredRelatedToCourse) != courseIRI {
			continue
		}
		text := q.str(PredQuestionText)
		if !containsAny(strings.ToLower(text), keywords) {
			continue
		}
		for _, aIRI := range g.answersOf[qIRI] {
			a := g.nodes[aIRI]
			if a.class != ClassAnswer {
				continue
			}
			out = append(out, Similar{
				QuestionID:  localID(qIRI),
				Question:    text,
				Answer:      a.str(PredAnswerText),
				Confidence:  a.float(PredConfidenceScore),
				GeneratedAt: a.time(PredGeneratedAt),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// CourseStats aggregates the answers and feedback of one course.
type CourseStats struct {
	QuestionCount  int     `json:"question_count"`
	MeanConfidence float64 `json:"mean_confidence"`
	FeedbackCount  int     `json:"feedback_count"`
	MeanRating     float64 `json:"mean_rating"`
}

// Statistics counts answered questions of course and their mean confidence,
// plus the feedback received on them. Means are 0 when there is nothing to
// average.
func (g *Graph) Statistics(course string) CourseStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	courseIRI := asIRI(course, CourseIRI)
	inCourse := make(map[string]bool)
	var st CourseStats
	var confSum float64
	for _, qIRI := range g.byClass[ClassQuestion] {
		if g.nodes[qIRI].str(PredRelatedToCourse) != courseIRI {
			continue
		}
		inCourse[qIRI] = true
		for _, aIRI := range g.answersOf[qIRI] {
			a := g.nodes[aIRI]
			if a.class != ClassAnswer || len(a.props[PredConfidenceScore]) == 0 {
				continue
			}
			st.QuestionCount++
			confSum += a.float(PredConfidenceScore)
		}
	}

	var ratingSum float64
	for _, fIRI := range g.byClass[ClassFeedback] {
		f := g.nodes[fIRI]
		if !inCourse[f.str(PredForQuestion)] {
			continue
		}
		st.FeedbackCount++
		ratingSum += f.float(PredRating)
	}

	if st.QuestionCount > 0 {
		st.MeanConfidence = confSum / float64(st.QuestionCount)
	}
	if st.FeedbackCount > 0 {
		st.MeanRating = ratingSum / float64(st.FeedbackCount)
	}
	return st
}
