package quiz

import "strings"

const minStemLength = 20

// Validate checks every structural invariant of a finished question.
// The returned error carries enough detail to be fed back verbatim into
// a repair prompt.
func (q *ValidatedQuestion) Validate() error {
	if len(strings.TrimSpace(q.Stem)) < minStemLength {
		return quizErrors.New(ErrEmptyStem).
			WithDetail("length", len(strings.TrimSpace(q.Stem)))
	}

	if len(q.Options) < 2 || len(q.Options) > 5 {
		return quizErrors.New(ErrOptionCount).
			WithDetail("count", len(q.Options))
	}

	seen := make(map[string]bool, len(q.Options))
	matches := 0
	for _, opt := range q.Options {
		if seen[opt.ID] {
			return quizErrors.New(ErrDuplicateOptionID).
				WithDetail("option_id", opt.ID)
		}
		seen[opt.ID] = true
		if opt.ID == q.CorrectOptionID {
			matches++
		}
	}
	if matches != 1 {
		return quizErrors.New(ErrCorrectOption).
			WithDetail("correct_option_id", q.CorrectOptionID).
			WithDetail("matches", matches)
	}

	if q.Concept() == "" {
		return quizErrors.New(ErrMissingConcept)
	}

	if q.Explanation == nil || len(q.Explanation.Blocks) == 0 {
		return quizErrors.New(ErrMissingExplanation)
	}

	for i, block := range q.Explanation.Blocks {
		if err := block.validate(); err != nil {
			return quizErrors.NewWithCause(ErrInvalidBlock, err).
				WithDetail("block_index", i).
				WithDetail("block_type", block.BlockType())
		}
	}

	if err := q.validateDDX(); err != nil {
		return err
	}

	return nil
}

// validateDDX cross-checks mini_ddx coverage against the wrong options.
// Skipped when the DDX uses non-standard IDs (roman numeral statements).
func (q *ValidatedQuestion) validateDDX() error {
	block := q.Explanation.Blocks.Find(BlockTypeMiniDDX)
	if block == nil {
		return nil
	}
	ddx := block.(*MiniDDXBlock)

	standard := true
	ddxIDs := make(map[string]bool, len(ddx.Items))
	for _, item := range ddx.Items {
		ddxIDs[item.OptionID] = true
		if len(item.OptionID) != 1 || !strings.Contains("ABCDE", item.OptionID) {
			standard = false
		}
	}
	if !standard {
		return nil
	}

	wrongIDs := make(map[string]bool, len(q.Options))
	for _, opt := range q.Options {
		if opt.ID != q.CorrectOptionID {
			wrongIDs[opt.ID] = true
		}
	}

	if len(ddxIDs) != len(wrongIDs) {
		return quizErrors.New(ErrDDXMismatch).
			WithDetail("ddx_items", len(ddx.Items)).
			WithDetail("wrong_options", len(wrongIDs))
	}
	for id := range wrongIDs {
		if !ddxIDs[id] {
			return quizErrors.New(ErrDDXMismatch).
				WithDetail("missing_option", id)
		}
	}

	return nil
}
