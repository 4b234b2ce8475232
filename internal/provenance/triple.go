package provenance

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Namespaces and node bases used by the graph.
const (
	NS      = "http://example.org/lms-tools#"
	RDF     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	RDFS    = "http://www.w3.org/2000/01/rdf-schema#"
	OWL     = "http://www.w3.org/2002/07/owl#"
	XSD     = "http://www.w3.org/2001/XMLSchema#"
	baseIRI = "http://example.org/"

	RDFType = RDF + "type"
)

// Classes.
const (
	ClassQuestion     = NS + "Question"
	ClassAnswer       = NS + "Answer"
	ClassFeedback     = NS + "Feedback"
	ClassToolLaunch   = NS + "ToolLaunch"
	ClassCorpusChange = NS + "CorpusChange"
	ClassCourse       = NS + "Course"
	ClassUser         = NS + "User"
	ClassTool         = NS + "Tool"
)

// Predicates.
const (
	PredQuestionText    = NS + "questionText"
	PredAskedBy         = NS + "askedBy"
	PredRelatedToCourse = NS + "relatedToCourse"
	PredTimestamp       = NS + "timestamp"
	PredAnswerText      = NS + "answerText"
	PredAnswersQuestion = NS + "answersQuestion"
	PredConfidenceScore = NS + "confidenceScore"
	PredGeneratedAt     = NS + "generatedAt"
	PredSupportedBy     = NS + "supportedBy"
	PredLaunchedTool    = NS + "launchedTool"
	PredInCourse        = NS + "inCourse"
	PredByUser          = NS + "byUser"
	PredForQuestion     = NS + "forQuestion"
	PredRating          = NS + "rating"
	PredComment         = NS + "comment"
	PredSourceFile      = NS + "sourceFile"
	PredChangeKind      = NS + "changeKind"
)

// Datatypes.
const (
	XSDString   = XSD + "string"
	XSDDateTime = XSD + "dateTime"
	XSDFloat    = XSD + "float"
	XSDInteger  = XSD + "integer"
)

// TermKind distinguishes IRIs from literals.
type TermKind int

const (
	KindIRI TermKind = iota
	KindLiteral
)

// Term is the object position of a triple.
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string // typed literals only
	Lang     string // language-tagged literals only
}

// IRI returns an IRI term.
func IRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

// Literal returns a plain string literal, language-tagged when lang is set.
func Literal(v, lang string) Term { return Term{Kind: KindLiteral, Value: v, Lang: lang} }

// Float returns an xsd:float literal.
func Float(f float64) Term {
	return Term{Kind: KindLiteral, Value: strconv.FormatFloat(f, 'g', -1, 64), Datatype: XSDFloat}
}

// Integer returns an xsd:integer literal.
func Integer(n int) Term {
	return Term{Kind: KindLiteral, Value: strconv.Itoa(n), Datatype: XSDInteger}
}

// DateTime returns an xsd:dateTime literal in UTC.
func DateTime(t time.Time) Term {
	return Term{Kind: KindLiteral, Value: t.UTC().Format(time.RFC3339Nano), Datatype: XSDDateTime}
}

// Triple is one statement of the graph.
type Triple struct {
	Subject   string
	Predicate string
	Object    Term
}

// Pattern selects triples; empty fields match anything.
type Pattern struct {
	Subject   string
	Predicate string
	Object    string
}

func (p Pattern) matches(t Triple) bool {
	return (p.Subject == "" || p.Subject == t.Subject) &&
		(p.Predicate == "" || p.Predicate == t.Predicate) &&
		(p.Object == "" || p.Object == t.Object.Value)
}

// Node IRIs. Ids are path-escaped so any course, user or tool id yields a
// valid IRI.

func QuestionIRI(id string) string { return nodeIRI("questions/", id) }
func AnswerIRI(id string) string   { return nodeIRI("answers/", id) }
func FeedbackIRI(id string) string { return nodeIRI("feedback/", id) }
func LaunchIRI(id string) string   { return nodeIRI("launches/", id) }
func ChangeIRI(id string) string   { return nodeIRI("changes/", id) }
func CourseIRI(id string) string   { return nodeIRI("courses/", id) }
func UserIRI(id string) string     { return nodeIRI("users/", id) }
func ToolIRI(id string) string     { return nodeIRI("tools/", id) }

func nodeIRI(kind, id string) string {
	return baseIRI + kind + url.PathEscape(id)
}

// localID returns the unescaped last path segment of an IRI.
func localID(iri string) string {
	if i := strings.LastIndexAny(iri, "/#"); i >= 0 {
		iri = iri[i+1:]
	}
	if id, err := url.PathUnescape(iri); err == nil {
		return id
	}
	return iri
}
