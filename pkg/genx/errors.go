package genx

import "github.com/Abraxas-365/examforge/pkg/errx"

var genxErrors = errx.NewRegistry("GENX")

var (
	ErrInvalidPayload       = genxErrors.Register("INVALID_PAYLOAD", errx.TypeValidation, 400, "Invalid generation payload")
	ErrEvidenceUnavailable  = genxErrors.Register("EVIDENCE_UNAVAILABLE", errx.TypeNotFound, 404, "Evidence source could not be resolved")
	ErrInsufficientEvidence = genxErrors.Register("INSUFFICIENT_EVIDENCE", errx.TypeValidation, 422, "Evidence does not support the requested concept")
	ErrDraftFailed          = genxErrors.Register("DRAFT_FAILED", errx.TypeExternal, 502, "Question drafting failed")
	ErrBadModelOutput       = genxErrors.Register("BAD_MODEL_OUTPUT", errx.TypeExternal, 502, "Model output could not be decoded")
	ErrNothingGenerated     = genxErrors.Register("NOTHING_GENERATED", errx.TypeInternal, 500, "No questions survived the pipeline")
)
