// Package genx runs the multi-stage question generation pipeline: evidence
// resolution, drafting, duplicate gating, explanation, validation with a
// single repair pass, and persistence. It plugs into jobx as a handler.
package genx

import (
	"encoding/json"
	"strings"

	"github.com/Abraxas-365/examforge/pkg/quiz"
)

// Generation modes.
const (
	ModeSingle = "single"
	ModeBulk   = "bulk"
)

// JobType is the job type the pipeline handler registers under.
const JobType = "generate_questions"

// Request is the payload of a generation job.
type Request struct {
	Mode           string `json:"mode"`
	SourceMaterial string `json:"source_material"`
	Topic          string `json:"topic"`
	Category       string `json:"category,omitempty"`

	// Section header of the source chapter, used for prompt context and
	// the evidence-overlap check.
	MainHeader string `json:"main_header,omitempty"`

	// Single mode: one pipeline run per concept.
	Concepts []string `json:"concepts,omitempty"`

	// Bulk mode: one free-form call producing Count questions.
	Count int `json:"count,omitempty"`

	Difficulty string `json:"difficulty,omitempty"`

	// Per-request difficulty directives, keyed by difficulty name. Takes
	// precedence over the built-in directives.
	CustomDifficultyLevels map[string]string `json:"custom_difficulty_levels,omitempty"`

	// Evidence override pasted into the request, used when no document is
	// attached.
	Evidence string `json:"evidence,omitempty"`

	// Path of an attached source document, read through fsx.
	SourceDocPath string `json:"source_doc_path,omitempty"`

	// Additional source documents concatenated into the evidence.
	SourcePDFs []string `json:"source_pdfs_list,omitempty"`

	// Optional per-request overrides for named prompt sections.
	PromptSections map[string]string `json:"prompt_sections,omitempty"`
}

// ParseRequest decodes and validates a job payload.
func ParseRequest(raw json.RawMessage) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, genxErrors.NewWithCause(ErrInvalidPayload, err)
	}

	switch req.Mode {
	case ModeSingle:
		if len(req.Concepts) == 0 {
			return nil, genxErrors.New(ErrInvalidPayload).WithDetail("reason", "single mode requires at least one concept")
		}
	case ModeBulk:
		if req.Count <= 0 {
			return nil, genxErrors.New(ErrInvalidPayload).WithDetail("reason", "bulk mode requires a positive count")
		}
	default:
		return nil, genxErrors.New(ErrInvalidPayload).WithDetail("mode", req.Mode)
	}

	if strings.TrimSpace(req.Topic) == "" {
		return nil, genxErrors.New(ErrInvalidPayload).WithDetail("reason", "topic is required")
	}
	return &req, nil
}

// Scope returns the history scope this request deduplicates against.
func (r *Request) Scope() quiz.Scope {
	scope := quiz.Scope{
		SourceMaterial: r.SourceMaterial,
		Topic:          r.Topic,
	}
	if r.Category != "" {
		scope.Categories = []string{r.Category}
	}
	return scope
}
