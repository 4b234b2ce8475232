package provenance

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/knakk/rdf"
)

var prefixes = []struct{ name, iri string }{
	{"lms", NS},
	{"rdf", RDF},
	{"rdfs", RDFS},
	{"owl", OWL},
	{"xsd", XSD},
}

// snapshot returns schema and event triples under the read lock.
func (g *Graph) snapshot() []Triple {
	g.mu.RLock()
	defer g.mu.RUnlock()
	all := make([]Triple, 0, len(ontology)+len(g.triples))
	all = append(all, ontology...)
	return append(all, g.triples...)
}

// rdfSnapshot returns the graph as validated RDF statements alongside the
// source triples. Any term that is not valid RDF fails the whole snapshot.
func (g *Graph) rdfSnapshot() ([]Triple, []rdf.Triple, error) {
	triples := g.snapshot()
	out := make([]rdf.Triple, len(triples))
	for i, t := range triples {
		rt, err := toRDF(t)
		if err != nil {
			return nil, nil, err
		}
		out[i] = rt
	}
	return triples, out, nil
}

func toRDF(t Triple) (rdf.Triple, error) {
	subj, err := rdf.NewIRI(t.Subject)
	if err != nil {
		return rdf.Triple{}, fmt.Errorf("subject %q: %w", t.Subject, err)
	}
	pred, err := rdf.NewIRI(t.Predicate)
	if err != nil {
		return rdf.Triple{}, fmt.Errorf("predicate %q: %w", t.Predicate, err)
	}
	obj, err := toObject(t.Object)
	if err != nil {
		return rdf.Triple{}, fmt.Errorf("object of %s %s: %w", t.Subject, t.Predicate, err)
	}
	return rdf.Triple{Subj: subj, Pred: pred, Obj: obj}, nil
}

func toObject(t Term) (rdf.Object, error) {
	if t.Kind == KindIRI {
		iri, err := rdf.NewIRI(t.Value)
		if err != nil {
			return nil, err
		}
		return iri, nil
	}
	if t.Lang != "" {
		lit, err := rdf.NewLangLiteral(t.Value, t.Lang)
		if err != nil {
			return nil, err
		}
		return lit, nil
	}
	dt := t.Datatype
	if dt == "" {
		dt = XSDString
	}
	dtIRI, err := rdf.NewIRI(dt)
	if err != nil {
		return nil, err
	}
	return rdf.NewTypedLiteral(t.Value, dtIRI), nil
}

// WriteTurtle serializes the whole graph as Turtle, grouping statements by
// subject in order of first appearance.
func (g *Graph) WriteTurtle(w io.Writer) error {
	triples, _, err := g.rdfSnapshot()
	if err != nil {
		return fmt.Errorf("serializing turtle: %w", err)
	}
	bw := bufio.NewWriter(w)

	for _, p := range prefixes {
		bw.WriteString("@prefix " + p.name + ": <" + p.iri + "> .\n")
	}

	var order []string
	bySubject := make(map[string][]Triple)
	for _, t := range triples {
		if _, ok := bySubject[t.Subject]; !ok {
			order = append(order, t.Subject)
		}
		bySubject[t.Subject] = append(bySubject[t.Subject], t)
	}

	for _, s := range order {
		bw.WriteString("\n" + turtleIRI(s))
		ts := bySubject[s]
		for i, t := range ts {
			pred := turtleIRI(t.Predicate)
			if t.Predicate == RDFType {
				pred = "a"
			}
			bw.WriteString("\n    " + pred + " " + turtleTerm(t.Object))
			if i < len(ts)-1 {
				bw.WriteString(" ;")
			} else {
				bw.WriteString(" .\n")
			}
		}
	}
	return bw.Flush()
}

// WriteNTriples serializes the whole graph as N-Triples, one statement per line.
func (g *Graph) WriteNTriples(w io.Writer) error {
	_, triples, err := g.rdfSnapshot()
	if err != nil {
		return fmt.Errorf("serializing n-triples: %w", err)
	}
	enc := rdf.NewTripleEncoder(w, rdf.NTriples)
	for _, t := range triples {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("encoding triple: %w", err)
		}
	}
	return enc.Close()
}

func turtleIRI(iri string) string {
	for _, p := range prefixes {
		if local, ok := strings.CutPrefix(iri, p.iri); ok && isPrefixedLocal(local) {
			return p.name + ":" + local
		}
	}
	return "<" + iri + ">"
}

func isPrefixedLocal(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		letter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 && !letter {
			return false
		}
		if !letter && !(r >= '0' && r <= '9') && r != '-' {
			return false
		}
	}
	return true
}

func turtleTerm(t Term) string {
	if t.Kind == KindIRI {
		return turtleIRI(t.Value)
	}
	lit := `"` + escapeLiteral(t.Value) + `"`
	switch {
	case t.Lang != "":
		return lit + "@" + t.Lang
	case t.Datatype != "" && t.Datatype != XSDString:
		return lit + "^^" + turtleIRI(t.Datatype)
	}
	return lit
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}
