package genx

import (
	"context"
	"strings"

	"github.com/Abraxas-365/examforge/pkg/fsx"
	"github.com/Abraxas-365/examforge/pkg/quiz"
)

// Evidence is the source text the drafting stage is grounded on.
type Evidence struct {
	Text string
	// FromDocument marks evidence read from an attached document. The
	// insufficient-evidence gate is overridden for document evidence.
	FromDocument bool
	Ref          string
}

// SourceResolver turns a request into drafting evidence. A resolution
// failure is fatal to the whole job.
type SourceResolver interface {
	Resolve(ctx context.Context, req *Request) (Evidence, error)
}

// FileResolver resolves evidence from the request itself: an attached
// document path wins over inline override text.
type FileResolver struct {
	fs fsx.PathReader
}

// NewFileResolver creates a resolver reading attached documents via fs.
func NewFileResolver(fs fsx.PathReader) *FileResolver {
	return &FileResolver{fs: fs}
}

// Resolve returns document content when paths are attached, the inline
// evidence otherwise. Multiple documents are concatenated in order; any
// unreadable document fails the resolution.
func (r *FileResolver) Resolve(ctx context.Context, req *Request) (Evidence, error) {
	paths := req.SourcePDFs
	if req.SourceDocPath != "" {
		paths = append([]string{req.SourceDocPath}, paths...)
	}
	if len(paths) > 0 {
		parts := make([]string, 0, len(paths))
		for _, path := range paths {
			data, err := r.fs.ReadFile(ctx, path)
			if err != nil {
				return Evidence{}, genxErrors.NewWithCause(ErrEvidenceUnavailable, err).
					WithDetail("path", path)
			}
			parts = append(parts, string(data))
		}
		return Evidence{
			Text:         strings.Join(parts, "\n\n"),
			FromDocument: true,
			Ref:          strings.Join(paths, ","),
		}, nil
	}

	if strings.TrimSpace(req.Evidence) == "" {
		return Evidence{}, genxErrors.New(ErrEvidenceUnavailable).
			WithDetail("reason", "no evidence text or document attached")
	}
	return Evidence{Text: req.Evidence, Ref: "inline"}, nil
}

// evidenceSupports reports whether the evidence plausibly covers the
// request. Topic, concept and category are tokenized through the question
// normalizer; any normalized token of length >= 3 found in the normalized
// evidence counts as support.
func evidenceSupports(evidence string, parts ...string) bool {
	normalized := quiz.NormalizeText(evidence)
	if normalized == "" {
		return false
	}

	tokens := make(map[string]struct{})
	for _, part := range parts {
		for _, tok := range strings.Fields(quiz.NormalizeText(part)) {
			if len([]rune(tok)) >= 3 {
				tokens[tok] = struct{}{}
			}
		}
	}
	if len(tokens) == 0 {
		return false
	}

	for tok := range tokens {
		if strings.Contains(normalized, tok) {
			return true
		}
	}
	return false
}
