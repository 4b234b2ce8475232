package qa

import (
	"strings"

	"github.com/borisletic/lti-qa-tool/internal/retrieval"
)

// Locale holds the fixed texts used to instruct the generator and to answer
// when no grounded answer can be produced.
type Locale struct {
	// Lang is the BCP 47 tag stored on graph literals.
	Lang string

	Instructions  string
	Rules         []string
	ContextLabel  string
	QuestionLabel string
	AnswerLabel   string

	// Decline is the phrase the generator must use when the context does
	// not contain the answer.
	Decline string

	// NoContext is returned when retrieval finds nothing.
	NoContext string

	// GenerationFailed prefixes the answer returned when generation fails.
	GenerationFailed string
}

var locales = map[string]Locale{
	"sr": {
		Lang:         "sr",
		Instructions: "Ti si obrazovni asistent. Tvoj zadatak je da odgovoriš na pitanje ISKLJUČIVO na osnovu datog konteksta.",
		Rules: []string{
			"Odgovori SAMO na osnovu informacija iz konteksta ispod",
			`Ako informacija NIJE u kontekstu, odgovori: "Ne mogu odgovoriti na osnovu dostupnih materijala"`,
			"NE izmišljaj informacije",
			"Odgovaraj NA SRPSKOM JEZIKU",
			"Budi precizan i koncizan",
		},
		ContextLabel:     "KONTEKST IZ NASTAVNIH MATERIJALA:",
		QuestionLabel:    "PITANJE STUDENTA:",
		AnswerLabel:      "ODGOVOR (samo na osnovu konteksta iznad):",
		Decline:          "Ne mogu odgovoriti na osnovu dostupnih materijala",
		NoContext:        "Nisam pronašao relevantne informacije u nastavnim materijalima. Molim postavite pitanje vezano za sadržaj kursa.",
		GenerationFailed: "Došlo je do greške pri generisanju odgovora",
	},
	"en": {
		Lang:         "en",
		Instructions: "You are a teaching assistant. Answer the question using ONLY the context below.",
		Rules: []string{
			"Answer ONLY from the information in the context below",
			`If the information is NOT in the context, answer: "I cannot answer based on the available materials"`,
			"Do NOT invent information",
			"Answer IN ENGLISH",
			"Be precise and concise",
		},
		ContextLabel:     "CONTEXT FROM COURSE MATERIALS:",
		QuestionLabel:    "STUDENT QUESTION:",
		AnswerLabel:      "ANSWER (only from the context above):",
		Decline:          "I cannot answer based on the available materials",
		NoContext:        "I found no relevant information in the course materials. Please ask a question about the course content.",
		GenerationFailed: "An error occurred while generating the answer",
	},
}

// DefaultLanguage is the answer language used when none is configured.
const DefaultLanguage = "sr"

// LocaleFor returns the texts for lang, falling back to DefaultLanguage for
// unknown tags.
func LocaleFor(lang string) Locale {
	if l, ok := locales[strings.ToLower(lang)]; ok {
		return l
	}
	return locales[DefaultLanguage]
}

// BuildPrompt assembles the grounding prompt. Fragment texts are joined by a
// blank line in retrieval order.
func (l Locale) BuildPrompt(question string, fragments []retrieval.Fragment) string {
	var sb strings.Builder
	sb.WriteString(l.Instructions)
	sb.WriteString("\n\n")
	for _, r := range l.Rules {
		sb.WriteString("- ")
		sb.WriteString(r)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')
	sb.WriteString(l.ContextLabel)
	sb.WriteByte('\n')
	sb.WriteString(joinContext(fragments))
	sb.WriteString("\n\n")
	sb.WriteString(l.QuestionLabel)
	sb.WriteByte(' ')
	sb.WriteString(question)
	sb.WriteString("\n\n")
	sb.WriteString(l.AnswerLabel)
	return sb.String()
}

func joinContext(fragments []retrieval.Fragment) string {
	texts := make([]string, len(fragments))
	for i, f := range fragments {
		texts[i] = f.Text
	}
	return strings.Join(texts, "\n\n")
}
