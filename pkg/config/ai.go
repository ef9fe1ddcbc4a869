package config

import "time"

// AIConfig configures LLM and embedding providers.
type AIConfig struct {
	Provider string // "gemini" or "openai"

	GeminiAPIKey string
	OpenAIAPIKey string

	ChatModel      string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float64

	// Rate limiting across every provider call in the process
	RequestInterval time.Duration
	CooldownMin     time.Duration
	CooldownMax     time.Duration

	// Bounded retry for transient provider errors
	MaxRetries int
}

func loadAIConfig() AIConfig {
	return AIConfig{
		Provider:        getEnv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		ChatModel:       getEnv("LLM_CHAT_MODEL", ""),
		EmbeddingModel:  getEnv("LLM_EMBEDDING_MODEL", ""),
		MaxTokens:       getEnvInt("LLM_MAX_TOKENS", 8192),
		Temperature:     getEnvFloat("LLM_TEMPERATURE", 0.7),
		RequestInterval: getEnvDuration("LLM_REQUEST_INTERVAL", 750*time.Millisecond),
		CooldownMin:     getEnvDuration("LLM_COOLDOWN_MIN", 45*time.Second),
		CooldownMax:     getEnvDuration("LLM_COOLDOWN_MAX", 90*time.Second),
		MaxRetries:      getEnvInt("LLM_MAX_RETRIES", 3),
	}
}
