package embedding

import "context"

// Embedding is a single embedding vector with optional usage stats
type Embedding struct {
	Vector []float32 `json:"vector"`
	Usage  Usage     `json:"usage,omitempty"`
}

// Usage represents token usage for an embedding request
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Embedder is the interface implemented by embedding providers
type Embedder interface {
	EmbedDocuments(ctx context.Context, documents []string, opts ...Option) ([]Embedding, error)
	EmbedQuery(ctx context.Context, text string, opts ...Option) (Embedding, error)
}

// Options holds per-call parameters for embedding requests
type Options struct {
	Model      string
	Dimensions int
	User       string
}

// Option configures Options
type Option func(*Options)

// DefaultOptions returns the default embedding options
func DefaultOptions() *Options {
	return &Options{}
}

// WithModel sets the embedding model
func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// WithDimensions sets the requested output dimensionality
func WithDimensions(dimensions int) Option {
	return func(o *Options) {
		o.Dimensions = dimensions
	}
}

// WithUser sets the end-user identifier
func WithUser(user string) Option {
	return func(o *Options) {
		o.User = user
	}
}
