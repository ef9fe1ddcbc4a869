package quiz

import "context"

// Scope bounds a duplicate or history lookup. Topic scope is preferred;
// Categories is the fallback when no topic is known.
type Scope struct {
	SourceMaterial string
	Topic          string
	Categories     []string
	Limit          int
}

// ConceptRecord is a previously persisted question, reduced to what the
// dedup engine and prompt history need.
type ConceptRecord struct {
	Concept string
	Stem    string
	Answer  string
}

// HistoryText renders the record the way history is surfaced to the dedup
// engine and to prompts.
func (r ConceptRecord) HistoryText() string {
	return "Answer: " + r.Answer + " | Question: " + r.Stem
}

// SignatureText builds the record's exact-match signature
func (r ConceptRecord) SignatureText() string {
	base := r.Concept
	if base == "" {
		base = r.Stem
	}
	if base == "" || r.Answer == "" {
		return ""
	}
	return NormalizeText(base) + "||" + NormalizeText(ExpandRomanAnswer(r.Stem, r.Answer))
}

// QuestionStore persists validated questions
type QuestionStore interface {
	AddQuestion(ctx context.Context, q *ValidatedQuestion) (int64, error)
}

// ConceptSource exposes previously generated questions within a scope
type ConceptSource interface {
	ExistingConcepts(ctx context.Context, scope Scope) ([]ConceptRecord, error)
}
