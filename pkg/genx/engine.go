package genx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Abraxas-365/examforge/pkg/ai/llm"
	"github.com/Abraxas-365/examforge/pkg/dedupx"
	"github.com/Abraxas-365/examforge/pkg/errx"
	"github.com/Abraxas-365/examforge/pkg/jobx"
	"github.com/Abraxas-365/examforge/pkg/logx"
	"github.com/Abraxas-365/examforge/pkg/quiz"
	"github.com/Abraxas-365/examforge/pkg/ratex"
	"github.com/cenkalti/backoff/v4"
)

const (
	maxDuplicateRedrafts = 2
	historyPromptLimit   = 50
)

// Engine orchestrates the generation pipeline for one job.
type Engine struct {
	chat     llm.Chat
	resolver SourceResolver
	dedup    *dedupx.Engine
	store    quiz.QuestionStore
	history  quiz.ConceptSource

	limiter    *ratex.Limiter
	chatOpts   []llm.Option
	maxRetries uint64
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLimiter routes every model call through the shared rate limiter.
func WithLimiter(l *ratex.Limiter) EngineOption {
	return func(e *Engine) { e.limiter = l }
}

// WithChatOptions sets options applied to every chat call.
func WithChatOptions(opts ...llm.Option) EngineOption {
	return func(e *Engine) { e.chatOpts = opts }
}

// WithHistory supplies prior questions for prompt context. Usually the
// same source the dedup engine reads.
func WithHistory(source quiz.ConceptSource) EngineOption {
	return func(e *Engine) { e.history = source }
}

// WithMaxRetries bounds transient-error retries per model call.
func WithMaxRetries(n uint64) EngineOption {
	return func(e *Engine) { e.maxRetries = n }
}

// NewEngine wires the pipeline stages together.
func NewEngine(chat llm.Chat, resolver SourceResolver, dedup *dedupx.Engine, store quiz.QuestionStore, options ...EngineOption) *Engine {
	e := &Engine{
		chat:       chat,
		resolver:   resolver,
		dedup:      dedup,
		store:      store,
		maxRetries: 3,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Handler adapts the engine to the job worker.
func (e *Engine) Handler() jobx.HandlerFunc {
	return func(ctx context.Context, job *jobx.Job, report jobx.ProgressFunc) (string, error) {
		req, err := ParseRequest(job.Payload)
		if err != nil {
			return "", err
		}

		ev, err := e.resolver.Resolve(ctx, req)
		if err != nil {
			return "", err
		}

		switch req.Mode {
		case ModeBulk:
			return e.runBulk(ctx, req, ev, report)
		default:
			return e.runSingle(ctx, req, ev, report)
		}
	}
}

func (e *Engine) runSingle(ctx context.Context, req *Request, ev Evidence, report jobx.ProgressFunc) (string, error) {
	total := len(req.Concepts)
	persisted := 0
	var lastErr error

	for i, concept := range req.Concepts {
		report(ctx, jobx.Progress{Stage: "draft", Done: i, Total: total, Message: concept})

		q, err := e.generateOne(ctx, req, concept, ev)
		if err != nil {
			logx.WithError(err).Warnf("genx: item %q skipped", concept)
			lastErr = err
			continue
		}

		if _, err := e.store.AddQuestion(ctx, q); err != nil {
			if quiz.IsDuplicate(err) {
				logx.Infof("genx: %q rejected at persist as an exact duplicate, skipping", concept)
				continue
			}
			logx.WithError(err).Errorf("genx: persisting %q failed", concept)
			lastErr = err
			continue
		}
		persisted++
		report(ctx, jobx.Progress{Stage: "persist", Done: i + 1, Total: total, Message: concept})
	}

	return e.summarize(persisted, total, lastErr)
}

func (e *Engine) runBulk(ctx context.Context, req *Request, ev Evidence, report jobx.ProgressFunc) (string, error) {
	report(ctx, jobx.Progress{Stage: "draft", Done: 0, Total: req.Count})

	pb := newPromptBuilder(req)
	raw, err := e.call(ctx, pb.BulkSystem(), pb.Bulk(ev, e.historyTexts(ctx, req)))
	if err != nil {
		return "", err
	}

	items := ParseBulkResponse(raw, req.Topic)
	if len(items) == 0 {
		return "", genxErrors.New(ErrBadModelOutput).WithDetail("reason", "bulk response yielded no questions")
	}

	persisted := 0
	var lastErr error
	for i, q := range items {
		q.SourceMaterial = req.SourceMaterial
		q.Category = req.Category
		q.Difficulty = req.Difficulty

		verdict, err := e.dedup.Check(ctx, &q.Draft, req.Scope())
		if err != nil {
			lastErr = err
			continue
		}
		if verdict.Duplicate {
			logx.Infof("genx: bulk item %d dropped as %s duplicate of %q", i+1, verdict.Layer, verdict.Matched)
			continue
		}

		valid, err := e.validateWithRepair(ctx, req, q)
		if err != nil {
			logx.WithError(err).Warnf("genx: bulk item %d failed validation", i+1)
			lastErr = err
			continue
		}

		if _, err := e.store.AddQuestion(ctx, valid); err != nil {
			if quiz.IsDuplicate(err) {
				logx.Infof("genx: bulk item %d rejected at persist as an exact duplicate, skipping", i+1)
				continue
			}
			lastErr = err
			continue
		}
		persisted++
		report(ctx, jobx.Progress{Stage: "persist", Done: persisted, Total: len(items)})
	}

	return e.summarize(persisted, len(items), lastErr)
}

type draftResponse struct {
	InsufficientEvidence bool   `json:"insufficient_evidence"`
	Reason               string `json:"reason,omitempty"`
	quiz.Draft
}

type explanationResponse struct {
	QuestionText    string            `json:"question_text"`
	Options         []quiz.Option     `json:"options"`
	CorrectOptionID string            `json:"correct_option_id"`
	Tags            []string          `json:"tags"`
	Explanation     *quiz.Explanation `json:"explanation"`
}

func (e *Engine) generateOne(ctx context.Context, req *Request, concept string, ev Evidence) (*quiz.ValidatedQuestion, error) {
	pb := newPromptBuilder(req)
	history := e.historyTexts(ctx, req)

	draft, err := e.draftWithGate(ctx, pb, req, concept, ev, history)
	if err != nil {
		return nil, err
	}

	draft, err = e.duplicateGate(ctx, pb, req, concept, ev, history, draft)
	if err != nil {
		return nil, err
	}

	q, err := e.explain(ctx, pb, req, draft, ev)
	if err != nil {
		return nil, err
	}

	return e.validateWithRepair(ctx, req, q)
}

// draftWithGate runs the drafting call and the insufficient-evidence
// policy: document evidence overrides the gate, keyword overlap earns one
// relaxed retry, anything else aborts the item.
func (e *Engine) draftWithGate(ctx context.Context, pb *promptBuilder, req *Request, concept string, ev Evidence, history []string) (*quiz.Draft, error) {
	draft, err := e.draftOnce(ctx, pb, concept, ev, history, false)
	if err != nil {
		return nil, err
	}

	if draft.InsufficientEvidence {
		switch {
		case ev.FromDocument:
			logx.Warnf("genx: insufficient evidence flagged for %q but document source is present, continuing", concept)
		case evidenceSupports(ev.Text, req.Topic, concept, req.MainHeader, req.Category):
			logx.Warnf("genx: insufficient evidence flagged for %q, retrying with relaxed gate: %s", concept, draft.Reason)
			draft, err = e.draftOnce(ctx, pb, concept, ev, history, true)
			if err != nil {
				return nil, err
			}
			if draft.InsufficientEvidence {
				return nil, genxErrors.New(ErrInsufficientEvidence).WithDetail("reason", draft.Reason)
			}
		default:
			return nil, genxErrors.New(ErrInsufficientEvidence).WithDetail("reason", draft.Reason)
		}
	}

	if strings.TrimSpace(draft.Stem) == "" || len(draft.Options) == 0 || draft.CorrectOptionID == "" {
		return nil, genxErrors.New(ErrDraftFailed).WithDetail("reason", "draft missing required fields")
	}
	return &draft.Draft, nil
}

func (e *Engine) draftOnce(ctx context.Context, pb *promptBuilder, concept string, ev Evidence, history []string, relaxed bool) (*draftResponse, error) {
	raw, err := e.call(ctx, pb.DraftSystem(), pb.Draft(concept, ev, history, relaxed))
	if err != nil {
		return nil, err
	}
	var draft draftResponse
	if err := json.Unmarshal(extractJSON(raw), &draft); err != nil {
		return nil, genxErrors.NewWithCause(ErrBadModelOutput, err)
	}
	return &draft, nil
}

// duplicateGate redrafts on a duplicate verdict, at most twice, then
// accepts the last draft anyway.
func (e *Engine) duplicateGate(ctx context.Context, pb *promptBuilder, req *Request, concept string, ev Evidence, history []string, draft *quiz.Draft) (*quiz.Draft, error) {
	for attempt := 0; ; attempt++ {
		verdict, err := e.dedup.Check(ctx, draft, req.Scope())
		if err != nil {
			return nil, err
		}
		if !verdict.Duplicate {
			return draft, nil
		}
		if attempt >= maxDuplicateRedrafts {
			logx.Warnf("genx: %q still a %s duplicate after %d redrafts, accepting anyway", concept, verdict.Layer, attempt)
			return draft, nil
		}

		logx.Infof("genx: %q is a %s duplicate of %q (score %.2f), redrafting", concept, verdict.Layer, verdict.Matched, verdict.Score)
		redrafted, err := e.draftOnce(ctx, pb, concept, ev, append(history, draft.HistoryText()), false)
		if err != nil {
			return nil, err
		}
		if redrafted.InsufficientEvidence || strings.TrimSpace(redrafted.Stem) == "" {
			// Keep the previous draft rather than losing the item.
			return draft, nil
		}
		draft = &redrafted.Draft
	}
}

// explain runs the explanation call. The explanation stage owns the final
// question text: revisions to stem or options win, logged for audit.
func (e *Engine) explain(ctx context.Context, pb *promptBuilder, req *Request, draft *quiz.Draft, ev Evidence) (*quiz.ValidatedQuestion, error) {
	draftJSON, err := json.Marshal(draft)
	if err != nil {
		return nil, err
	}

	raw, err := e.call(ctx, pb.DraftSystem(), pb.Explanation(string(draftJSON), ev))
	if err != nil {
		return nil, err
	}
	var resp explanationResponse
	if err := json.Unmarshal(extractJSON(raw), &resp); err != nil {
		return nil, genxErrors.NewWithCause(ErrBadModelOutput, err)
	}

	final := *draft
	if t := strings.TrimSpace(resp.QuestionText); t != "" && t != draft.Stem {
		logx.Infof("genx: explanation stage revised the stem (%d -> %d chars)", len(draft.Stem), len(t))
		final.Stem = t
	}
	if len(resp.Options) >= 2 {
		final.Options = resp.Options
	}
	if resp.CorrectOptionID != "" {
		final.CorrectOptionID = resp.CorrectOptionID
	}
	final.Tags = mergeTags(draft.Tags, resp.Tags)

	return &quiz.ValidatedQuestion{
		Draft:          final,
		SourceMaterial: req.SourceMaterial,
		Topic:          req.Topic,
		Category:       req.Category,
		Difficulty:     req.Difficulty,
		Explanation:    resp.Explanation,
	}, nil
}

// validateWithRepair validates the assembled question, feeding the error
// back to the model exactly once before giving up on the item.
func (e *Engine) validateWithRepair(ctx context.Context, req *Request, q *quiz.ValidatedQuestion) (*quiz.ValidatedQuestion, error) {
	err := q.Validate()
	if err == nil {
		return q, nil
	}
	logx.WithError(err).Warn("genx: validation failed, attempting repair pass")

	candidateJSON, mErr := json.Marshal(q)
	if mErr != nil {
		return nil, mErr
	}

	pb := newPromptBuilder(req)
	raw, cErr := e.call(ctx, pb.DraftSystem(), pb.Repair(string(candidateJSON), err))
	if cErr != nil {
		return nil, cErr
	}

	var repaired quiz.ValidatedQuestion
	if uErr := json.Unmarshal(extractJSON(raw), &repaired); uErr != nil {
		return nil, genxErrors.NewWithCause(ErrBadModelOutput, uErr)
	}
	if vErr := repaired.Validate(); vErr != nil {
		return nil, vErr
	}
	return &repaired, nil
}

// call issues one chat request with rate limiting and bounded retries on
// transient provider errors.
func (e *Engine) call(ctx context.Context, system, user string) (string, error) {
	messages := []llm.Message{
		llm.NewSystemMessage(system),
		llm.NewUserMessage(user),
	}

	var content string
	operation := func() error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		resp, err := e.chat.Chat(ctx, messages, e.chatOpts...)
		if err != nil {
			if e.limiter != nil {
				e.limiter.ReportFailure(err)
			}
			if errx.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if e.limiter != nil {
			e.limiter.ReportSuccess()
		}
		content = resp.Message.Content
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", err
	}
	return content, nil
}

func (e *Engine) historyTexts(ctx context.Context, req *Request) []string {
	if e.history == nil {
		return nil
	}
	scope := req.Scope()
	scope.Limit = historyPromptLimit
	records, err := e.history.ExistingConcepts(ctx, scope)
	if err != nil {
		logx.WithError(err).Warn("genx: loading prompt history failed")
		return nil
	}
	texts := make([]string, 0, len(records))
	for _, r := range records {
		texts = append(texts, r.HistoryText())
	}
	return texts
}

func (e *Engine) summarize(persisted, total int, lastErr error) (string, error) {
	if persisted == 0 {
		if lastErr != nil {
			return "", lastErr
		}
		return "", genxErrors.New(ErrNothingGenerated)
	}
	return fmt.Sprintf("generated %d/%d", persisted, total), nil
}

func mergeTags(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	merged := make([]string, 0, len(base)+len(extra))
	for _, t := range append(append([]string(nil), base...), extra...) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		merged = append(merged, t)
	}
	return merged
}

// extractJSON strips markdown code fences and leading prose so the
// decoder sees only the JSON object.
func extractJSON(raw string) []byte {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if start := strings.Index(s, "{"); start > 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return []byte(s)
}
