package llm

import (
	"context"
	"errors"
	"iter"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider talks to the Gemini API through the genai SDK.
type GeminiProvider struct {
	Model   string
	APIKey  string
	client  *genai.Client
	initErr error
}

// NewGeminiProvider creates a new Gemini provider. A client construction
// failure is reported on first use.
func NewGeminiProvider(ctx context.Context, model, apiKey, baseURL string) *GeminiProvider {
	if model == "" {
		model = DefaultGeminiModel
	}
	g := &GeminiProvider{Model: model, APIKey: apiKey}
	if apiKey == "" {
		return g
	}
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	g.client, g.initErr = genai.NewClient(ctx, cfg)
	return g
}

func (g *GeminiProvider) Name() string { return "gemini" }

// IsConfigured checks if the API key is set.
func (g *GeminiProvider) IsConfigured() bool {
	return g.APIKey != "" && g.client != nil
}

func (g *GeminiProvider) ready() error {
	if g.APIKey == "" {
		return missingKey(g.Name())
	}
	if g.initErr != nil {
		return &GenerationError{Kind: Unavailable, Provider: g.Name(), Err: g.initErr}
	}
	return nil
}

func (g *GeminiProvider) config(c Completion) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: c.System}}},
		Temperature:       genai.Ptr(float32(c.Temperature)),
	}
	if c.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.MaxTokens)
	}
	return cfg
}

// Generate sends the completion to Gemini and returns the response.
func (g *GeminiProvider) Generate(ctx context.Context, c Completion) (string, error) {
	if err := g.ready(); err != nil {
		return "", err
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.Model, genai.Text(c.User), g.config(c))
	if err != nil {
		return "", g.classify(ctx, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", malformed(g.Name(), errors.New("empty completion"))
	}
	return text, nil
}

// Stream starts a streaming completion. The first response is pulled eagerly
// so that a rejected request is reported here rather than mid-stream.
func (g *GeminiProvider) Stream(ctx context.Context, c Completion) (ChunkStream, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	seq := g.client.Models.GenerateContentStream(ctx, g.Model, genai.Text(c.User), g.config(c))
	next, stop := iter.Pull2(seq)

	resp, err, ok := next()
	if ok && err != nil {
		stop()
		return nil, g.classify(ctx, err)
	}
	s := &geminiStream{ctx: ctx, provider: g, next: next, stop: stop, done: !ok}
	if ok && resp != nil {
		s.pending = resp.Text()
	}
	return s, nil
}

func (g *GeminiProvider) classify(ctx context.Context, err error) error {
	if code, ok := geminiStatus(err); ok {
		return statusError(g.Name(), code, err)
	}
	if ctx.Err() != nil {
		return classify(g.Name(), ctx.Err())
	}
	return classify(g.Name(), err)
}

func geminiStatus(err error) (int, bool) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch v := e.(type) {
		case genai.APIError:
			return v.Code, true
		case *genai.APIError:
			return v.Code, true
		}
	}
	return 0, false
}

type geminiStream struct {
	ctx      context.Context
	provider *GeminiProvider
	next     func() (*genai.GenerateContentResponse, error, bool)
	stop     func()
	pending  string
	cur      string
	err      error
	done     bool
}

func (s *geminiStream) Next() bool {
	if s.pending != "" {
		s.cur, s.pending = s.pending, ""
		return true
	}
	for !s.done && s.err == nil {
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			break
		}
		if err != nil {
			s.err = s.provider.classify(s.ctx, err)
			break
		}
		if resp == nil {
			continue
		}
		if text := resp.Text(); text != "" {
			s.cur = text
			return true
		}
	}
	return false
}

func (s *geminiStream) Current() string { return s.cur }

func (s *geminiStream) Err() error { return s.err }

func (s *geminiStream) Close() error {
	s.done = true
	s.stop()
	return nil
}
