package llm

// ChatOptions holds per-call parameters for chat completions
type ChatOptions struct {
	Model               string
	Temperature         float32
	TopP                float32
	MaxTokens           int
	MaxCompletionTokens int
	Stop                []string
	Seed                int64
	User                string
	JSONMode            bool
	ResponseFormat      *ResponseFormat
}

// Option configures ChatOptions
type Option func(*ChatOptions)

// DefaultOptions returns the default chat options
func DefaultOptions() *ChatOptions {
	return &ChatOptions{
		Temperature: 0.7,
	}
}

// WithModel sets the model
func WithModel(model string) Option {
	return func(o *ChatOptions) {
		o.Model = model
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(temperature float32) Option {
	return func(o *ChatOptions) {
		o.Temperature = temperature
	}
}

// WithTopP sets nucleus sampling
func WithTopP(topP float32) Option {
	return func(o *ChatOptions) {
		o.TopP = topP
	}
}

// WithMaxTokens sets the maximum number of tokens to generate
func WithMaxTokens(maxTokens int) Option {
	return func(o *ChatOptions) {
		o.MaxTokens = maxTokens
	}
}

// WithMaxCompletionTokens sets the completion token limit (newer models)
func WithMaxCompletionTokens(maxTokens int) Option {
	return func(o *ChatOptions) {
		o.MaxCompletionTokens = maxTokens
	}
}

// WithStop sets stop sequences
func WithStop(stop ...string) Option {
	return func(o *ChatOptions) {
		o.Stop = stop
	}
}

// WithSeed sets a deterministic sampling seed
func WithSeed(seed int64) Option {
	return func(o *ChatOptions) {
		o.Seed = seed
	}
}

// WithUser sets the end-user identifier
func WithUser(user string) Option {
	return func(o *ChatOptions) {
		o.User = user
	}
}

// WithJSONMode requests JSON object output
func WithJSONMode() Option {
	return func(o *ChatOptions) {
		o.JSONMode = true
	}
}
