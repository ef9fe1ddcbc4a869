package errx

// Type represents the category of error
type Type string

const (
	// TypeInternal represents internal server errors
	TypeInternal Type = "INTERNAL"

	// TypeValidation represents validation errors
	TypeValidation Type = "VALIDATION"

	// TypeNotFound represents resource not found errors
	TypeNotFound Type = "NOT_FOUND"

	// TypeConflict represents resource conflict errors
	TypeConflict Type = "CONFLICT"

	// TypeBusiness represents business logic errors
	TypeBusiness Type = "BUSINESS"

	// TypeExternal represents errors from external services
	TypeExternal Type = "EXTERNAL"

	// TypeRateLimit represents provider throttling (429, resource exhausted)
	TypeRateLimit Type = "RATE_LIMIT"

	// TypeUnavailable represents temporarily unavailable dependencies
	TypeUnavailable Type = "UNAVAILABLE"
)

// String returns the string representation of the error type
func (t Type) String() string {
	return string(t)
}

// Retryable reports whether errors of this type are worth retrying
func (t Type) Retryable() bool {
	return t == TypeRateLimit || t == TypeUnavailable || t == TypeExternal
}
