package provenance

// ontology is the schema the event graph is described by. It is held in
// memory, included in exports and never written to the event log.
var ontology = buildOntology()

type propertyDecl struct {
	name  string
	label string
	kind  string // owl:ObjectProperty or owl:DatatypeProperty
}

func buildOntology() []Triple {
	classes := []struct{ iri, label string }{
		{ClassQuestion, "Question"},
		{ClassAnswer, "Answer"},
		{ClassFeedback, "Feedback"},
		{ClassToolLaunch, "Tool launch"},
		{ClassCorpusChange, "Corpus change"},
		{ClassCourse, "Course"},
		{ClassUser, "User"},
		{ClassTool, "Tool"},
	}
	object, data := OWL+"ObjectProperty", OWL+"DatatypeProperty"
	props := []propertyDecl{
		{PredAskedBy, "asked by", object},
		{PredRelatedToCourse, "related to course", object},
		{PredAnswersQuestion, "answers question", object},
		{PredLaunchedTool, "launched tool", object},
		{PredInCourse, "in course", object},
		{PredByUser, "by user", object},
		{PredForQuestion, "for question", object},
		{PredQuestionText, "question text", data},
		{PredAnswerText, "answer text", data},
		{PredConfidenceScore, "confidence score", data},
		{PredGeneratedAt, "generated at", data},
		{PredSupportedBy, "supported by fragment", data},
		{PredTimestamp, "timestamp", data},
		{PredRating, "rating", data},
		{PredComment, "comment", data},
		{PredSourceFile, "source file", data},
		{PredChangeKind, "change kind", data},
	}

	out := make([]Triple, 0, 2*(len(classes)+len(props)))
	for _, c := range classes {
		out = append(out,
			Triple{Subject: c.iri, Predicate: RDFType, Object: IRI(OWL + "Class")},
			Triple{Subject: c.iri, Predicate: RDFS + "label", Object: Literal(c.label, "en")},
		)
	}
	for _, p := range props {
		out = append(out,
			Triple{Subject: p.name, Predicate: RDFType, Object: IRI(p.kind)},
			Triple{Subject: p.name, Predicate: RDFS + "label", Object: Literal(p.label, "en")},
		)
	}
	return out
}

// Ontology returns a copy of the schema triples.
func Ontology() []Triple {
	out := make([]Triple, len(ontology))
	copy(out, ontology)
	return out
}
