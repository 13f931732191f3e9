package llm

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// Completion is one chat completion: a system instruction, a user block and
// generation limits.
type Completion struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Provider is the interface for LLM providers.
type Provider interface {
	Name() string
	Generate(ctx context.Context, c Completion) (string, error)
	// Stream starts an incremental completion. The returned error is non-nil
	// only when the call could not be initiated.
	Stream(ctx context.Context, c Completion) (ChunkStream, error)
	IsConfigured() bool
}

// ChunkStream delivers text fragments in arrival order. It is not restartable.
type ChunkStream interface {
	Next() bool
	Current() string
	Err() error
	// Close releases the backend connection. Safe to call more than once.
	Close() error
}

// Settings selects and configures a provider. Credentials are passed in
// explicitly rather than read from the environment.
type Settings struct {
	Provider      string
	Model         string // Ollama model
	OllamaURL     string
	OpenAIModel   string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	GeminiModel   string
	GeminiAPIKey  string
	MockResponse  string
}

// CreateProvider creates an LLM provider based on configuration.
func CreateProvider(ctx context.Context, s Settings) Provider {
	switch strings.ToLower(s.Provider) {
	case "mock":
		log.Info().Msg("Using mock provider")
		return NewMockProvider(s.MockResponse)
	case "gemini":
		log.Info().Str("model", s.GeminiModel).Msg("Using Gemini")
		return NewGeminiProvider(ctx, s.GeminiModel, s.GeminiAPIKey, "")
	case "ollama":
		p := NewOllamaProvider(s.Model, s.OllamaURL)
		if p.IsConfigured() {
			log.Info().Str("model", s.Model).Msg("Using Ollama")
			return p
		}
		if s.OpenAIAPIKey == "" {
			log.Warn().Msg("Ollama not available and no OpenAI key set; generation will fail")
			return p
		}
		log.Info().Msg("Ollama not available, falling back to OpenAI")
	}

	p := NewOpenAIProvider(s.OpenAIModel, s.OpenAIAPIKey, s.OpenAIBaseURL)
	if !p.IsConfigured() {
		log.Warn().Msg("No OpenAI API key set; generation will fail until one is provided")
	} else {
		log.Info().Str("model", s.OpenAIModel).Msg("Using OpenAI")
	}
	return p
}
