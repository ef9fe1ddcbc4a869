package llm

import "context"

// Response represents a chat completion
type Response struct {
	Message Message `json:"message"`
	Usage   Usage   `json:"usage"`
}

// Chat is the interface implemented by chat completion providers
type Chat interface {
	Chat(ctx context.Context, messages []Message, opts ...Option) (Response, error)
}
