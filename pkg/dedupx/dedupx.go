// Package dedupx decides whether a drafted question duplicates one that
// was already generated for the same scope. Three layers run in order and
// short-circuit on the first hit: exact signature equality, fuzzy text
// similarity, and embedding cosine similarity.
package dedupx

import (
	"context"
	"math"
	"strings"

	"github.com/Abraxas-365/examforge/pkg/ai/embedding"
	"github.com/Abraxas-365/examforge/pkg/logx"
	"github.com/Abraxas-365/examforge/pkg/quiz"
	"github.com/pmezard/go-difflib/difflib"
)

const (
	LayerExact    = "exact"
	LayerFuzzy    = "fuzzy"
	LayerSemantic = "semantic"
)

// Verdict is the outcome of a duplicate check.
type Verdict struct {
	Duplicate bool
	Layer     string
	Matched   string
	Score     float64
}

// Engine runs the layered duplicate check.
type Engine struct {
	source   quiz.ConceptSource
	embedder embedding.Embedder
	cache    CacheStore

	fuzzyThreshold     float64
	embeddingThreshold float64
	backfillLimit      int
}

// Option configures the engine.
type Option func(*Engine)

// WithEmbedder enables the semantic layer. Without an embedder the check
// stops after the fuzzy layer.
func WithEmbedder(e embedding.Embedder, cache CacheStore) Option {
	return func(eng *Engine) {
		eng.embedder = e
		eng.cache = cache
	}
}

// WithFuzzyThreshold overrides the fuzzy similarity cutoff.
func WithFuzzyThreshold(t float64) Option {
	return func(eng *Engine) {
		eng.fuzzyThreshold = t
	}
}

// WithEmbeddingThreshold overrides the cosine similarity cutoff.
func WithEmbeddingThreshold(t float64) Option {
	return func(eng *Engine) {
		eng.embeddingThreshold = t
	}
}

// WithBackfillLimit bounds how many uncached historical concepts get
// embedded per check. Zero disables backfill.
func WithBackfillLimit(n int) Option {
	return func(eng *Engine) {
		eng.backfillLimit = n
	}
}

// New creates an engine reading history from source.
func New(source quiz.ConceptSource, options ...Option) *Engine {
	eng := &Engine{
		source:             source,
		fuzzyThreshold:     0.90,
		embeddingThreshold: 0.85,
	}
	for _, o := range options {
		o(eng)
	}
	return eng
}

// Check runs the layered duplicate check for a draft within a scope. Only
// a history lookup failure is returned as an error; embedder failures
// degrade the semantic layer to a pass.
func (e *Engine) Check(ctx context.Context, draft *quiz.Draft, scope quiz.Scope) (Verdict, error) {
	records, err := e.source.ExistingConcepts(ctx, scope)
	if err != nil {
		return Verdict{}, err
	}
	if len(records) == 0 {
		return Verdict{}, nil
	}

	candidateSig := draft.Signature()
	candidateText := draft.HistoryText()

	for _, r := range records {
		sig := r.SignatureText()
		if sig != "" && sig == candidateSig {
			return Verdict{Duplicate: true, Layer: LayerExact, Matched: r.HistoryText(), Score: 1}, nil
		}
	}

	for _, r := range records {
		ratio := similarityRatio(candidateText, r.HistoryText())
		if ratio > e.fuzzyThreshold {
			return Verdict{Duplicate: true, Layer: LayerFuzzy, Matched: r.HistoryText(), Score: ratio}, nil
		}
	}

	if e.embedder == nil {
		return Verdict{}, nil
	}
	return e.semanticCheck(ctx, candidateText, scope, records), nil
}

func (e *Engine) semanticCheck(ctx context.Context, candidateText string, scope quiz.Scope, records []quiz.ConceptRecord) Verdict {
	emb, err := e.embedder.EmbedQuery(ctx, candidateText)
	if err != nil {
		logx.WithError(err).Warn("dedupx: candidate embedding failed, semantic layer skipped")
		return Verdict{}
	}
	candidate := emb.Vector

	topic := cacheTopic(scope)
	if e.cache != nil {
		if err := e.cache.Put(ctx, topic, candidateText, candidate); err != nil {
			logx.WithError(err).Warn("dedupx: caching candidate embedding failed")
		}
	}

	backfilled := 0
	for _, r := range records {
		vector, ok := e.lookupVector(ctx, topic, r.HistoryText(), &backfilled)
		if !ok {
			continue
		}
		score := cosineSimilarity(candidate, vector)
		if score > e.embeddingThreshold {
			return Verdict{Duplicate: true, Layer: LayerSemantic, Matched: r.HistoryText(), Score: score}
		}
	}
	return Verdict{}
}

func (e *Engine) lookupVector(ctx context.Context, topic, text string, backfilled *int) ([]float32, bool) {
	if e.cache != nil {
		vector, ok, err := e.cache.Get(ctx, topic, text)
		if err != nil {
			logx.WithError(err).Warn("dedupx: embedding cache read failed")
			return nil, false
		}
		if ok {
			return vector, true
		}
	}

	if *backfilled >= e.backfillLimit {
		return nil, false
	}
	*backfilled++

	emb, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		logx.WithError(err).Warn("dedupx: backfill embedding failed")
		return nil, false
	}
	if e.cache != nil {
		if err := e.cache.Put(ctx, topic, text, emb.Vector); err != nil {
			logx.WithError(err).Warn("dedupx: caching backfill embedding failed")
		}
	}
	return emb.Vector, true
}

// similarityRatio is a character-level sequence match ratio in [0, 1].
func similarityRatio(a, b string) float64 {
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cacheTopic picks the cache partition key for a scope.
func cacheTopic(scope quiz.Scope) string {
	if scope.Topic != "" {
		return scope.Topic
	}
	if len(scope.Categories) > 0 {
		return scope.Categories[0]
	}
	return scope.SourceMaterial
}
