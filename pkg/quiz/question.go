package quiz

import "strings"

// Difficulty presets. Payloads may also carry a free-form directive.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Option is a single answer choice
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Draft is a question as produced by the drafting stage, before the
// explanation and validation stages have run.
type Draft struct {
	Stem            string   `json:"question_text"`
	Options         []Option `json:"options"`
	CorrectOptionID string   `json:"correct_option_id"`
	Tags            []string `json:"tags"`
	SourceRef       string   `json:"source_ref,omitempty"`
}

// Concept returns the concept: tag value, or "" when absent
func (d *Draft) Concept() string {
	for _, tag := range d.Tags {
		if strings.HasPrefix(tag, "concept:") {
			return strings.TrimSpace(strings.TrimPrefix(tag, "concept:"))
		}
	}
	return ""
}

// CorrectAnswerText returns the text of the correct option
func (d *Draft) CorrectAnswerText() (string, bool) {
	for _, opt := range d.Options {
		if opt.ID == d.CorrectOptionID {
			return strings.TrimSpace(opt.Text), true
		}
	}
	return "", false
}

// Explanation is the nested explanation object attached to a validated
// question. Blocks is a closed union, see blocks.go.
type Explanation struct {
	MainMechanism        string    `json:"main_mechanism"`
	ClinicalSignificance string    `json:"clinical_significance"`
	Blocks               BlockList `json:"blocks"`
	SiblingEntities      []string  `json:"sibling_entities,omitempty"`
}

// ValidatedQuestion is a fully assembled question ready for persistence
type ValidatedQuestion struct {
	Draft

	SourceMaterial string       `json:"source_material"`
	Topic          string       `json:"topic"`
	Category       string       `json:"category,omitempty"`
	Difficulty     string       `json:"difficulty,omitempty"`
	Explanation    *Explanation `json:"explanation"`
}
