package quiz

import (
	"errors"
	"net/http"

	"github.com/Abraxas-365/examforge/pkg/errx"
)

var (
	quizErrors = errx.NewRegistry("QUIZ")

	ErrEmptyStem = quizErrors.Register(
		"EMPTY_STEM",
		errx.TypeValidation,
		http.StatusBadRequest,
		"Question stem is empty or too short",
	)

	ErrOptionCount = quizErrors.Register(
		"OPTION_COUNT",
		errx.TypeValidation,
		http.StatusBadRequest,
		"Question must have between 2 and 5 options",
	)

	ErrDuplicateOptionID = quizErrors.Register(
		"DUPLICATE_OPTION_ID",
		errx.TypeValidation,
		http.StatusBadRequest,
		"Option IDs must be unique",
	)

	ErrCorrectOption = quizErrors.Register(
		"CORRECT_OPTION",
		errx.TypeValidation,
		http.StatusBadRequest,
		"Exactly one option must match correct_option_id",
	)

	ErrMissingConcept = quizErrors.Register(
		"MISSING_CONCEPT",
		errx.TypeValidation,
		http.StatusBadRequest,
		"Question must carry a concept: tag",
	)

	ErrMissingExplanation = quizErrors.Register(
		"MISSING_EXPLANATION",
		errx.TypeValidation,
		http.StatusBadRequest,
		"Question must carry an explanation with at least one block",
	)

	ErrInvalidBlock = quizErrors.Register(
		"INVALID_BLOCK",
		errx.TypeValidation,
		http.StatusBadRequest,
		"Explanation block failed validation",
	)

	ErrDDXMismatch = quizErrors.Register(
		"DDX_MISMATCH",
		errx.TypeValidation,
		http.StatusBadRequest,
		"mini_ddx items must cover exactly the wrong options",
	)

	ErrDuplicateQuestion = quizErrors.Register(
		"DUPLICATE_QUESTION",
		errx.TypeConflict,
		http.StatusConflict,
		"A question with the same concept and answer already exists in this scope",
	)
)

// NewDuplicateError builds the insert-time duplicate rejection.
func NewDuplicateError(signature string) *errx.Error {
	return quizErrors.New(ErrDuplicateQuestion).WithDetail("signature", signature)
}

// IsDuplicate reports whether err is the duplicate-question rejection.
func IsDuplicate(err error) bool {
	var appErr *errx.Error
	return errors.As(err, &appErr) && appErr.Code == ErrDuplicateQuestion.Code
}
