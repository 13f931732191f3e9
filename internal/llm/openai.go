package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "chatgpt-4o-latest"

// DefaultOpenAIBaseURL is the public API endpoint.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1/"

// OpenAIProvider is an OpenAI API provider.
type OpenAIProvider struct {
	Model  string
	APIKey string
	client openai.Client
}

// NewOpenAIProvider creates a new OpenAI provider. baseURL may be empty to use
// the public API. SDK-level retries are disabled; failures surface directly.
// Only the given settings apply; OPENAI_* environment variables are ignored.
func NewOpenAIProvider(model, apiKey, baseURL string) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	opts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		option.WithAPIKey(apiKey),
		option.WithHeaderDel("OpenAI-Organization"),
		option.WithHeaderDel("OpenAI-Project"),
		option.WithMaxRetries(0),
	}
	return &OpenAIProvider{
		Model:  model,
		APIKey: apiKey,
		client: openai.NewClient(opts...),
	}
}

func (o *OpenAIProvider) Name() string { return "openai" }

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

func (o *OpenAIProvider) params(c Completion) openai.ChatCompletionNewParams {
	p := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.System),
			openai.UserMessage(c.User),
		},
		Temperature: openai.Float(c.Temperature),
	}
	if c.MaxTokens > 0 {
		p.MaxTokens = openai.Int(int64(c.MaxTokens))
	}
	return p
}

// Generate sends the completion to OpenAI and returns the response.
func (o *OpenAIProvider) Generate(ctx context.Context, c Completion) (string, error) {
	if !o.IsConfigured() {
		return "", missingKey(o.Name())
	}

	resp, err := o.client.Chat.Completions.New(ctx, o.params(c))
	if err != nil {
		return "", o.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", malformed(o.Name(), errors.New("no choices in OpenAI response"))
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", malformed(o.Name(), errors.New("empty completion"))
	}
	return content, nil
}

// Stream starts a streaming chat completion.
func (o *OpenAIProvider) Stream(ctx context.Context, c Completion) (ChunkStream, error) {
	if !o.IsConfigured() {
		return nil, missingKey(o.Name())
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(c))
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, o.classify(ctx, err)
	}
	return &openAIStream{ctx: ctx, provider: o, stream: stream}, nil
}

func (o *OpenAIProvider) classify(ctx context.Context, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return statusError(o.Name(), apiErr.StatusCode, err)
	}
	if ctx.Err() != nil {
		return classify(o.Name(), ctx.Err())
	}
	return classify(o.Name(), err)
}

type openAIStream struct {
	ctx      context.Context
	provider *OpenAIProvider
	stream   *ssestream.Stream[openai.ChatCompletionChunk]
	cur      string
}

func (s *openAIStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			s.cur = text
			return true
		}
	}
	return false
}

func (s *openAIStream) Current() string { return s.cur }

func (s *openAIStream) Err() error {
	if err := s.stream.Err(); err != nil {
		return s.provider.classify(s.ctx, err)
	}
	return nil
}

func (s *openAIStream) Close() error { return s.stream.Close() }
