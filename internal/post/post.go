// Package post generates social-media posts from a prompt.Request, either as
// one completed string or as a stream of fragments.
package post

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/ZennPost/internal/llm"
	"github.com/TobiSchelling/ZennPost/internal/metrics"
	"github.com/TobiSchelling/ZennPost/internal/prompt"
)

// ErrNoArticles is returned when the request carries an empty selection.
var ErrNoArticles = errors.New("no articles to write about")

const (
	// DefaultTimeout bounds one backend call when WithTimeout is not given.
	DefaultTimeout = 60 * time.Second
	// DefaultTemperature is the sampling temperature used unless overridden.
	DefaultTemperature = 0.7
)

// Generator sends prompt requests to an LLM provider.
type Generator struct {
	provider    llm.Provider
	timeout     time.Duration
	temperature float64
}

// Option configures a Generator.
type Option func(*Generator)

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Generator) {
		if t >= 0 {
			g.temperature = t
		}
	}
}

// New creates a Generator backed by provider.
func New(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		provider:    provider,
		timeout:     DefaultTimeout,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Provider returns the backend name.
func (g *Generator) Provider() string {
	return g.provider.Name()
}

func (g *Generator) completion(req prompt.Request) llm.Completion {
	return llm.Completion{
		System:      req.System,
		User:        req.User,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: g.temperature,
	}
}

func leading(req prompt.Request) string {
	if p := req.Preamble(); p != "" {
		return p + "\n\n"
	}
	return ""
}

// Generate returns the completed post. The resolved template, if any, leads
// the text.
func (g *Generator) Generate(ctx context.Context, req prompt.Request) (string, error) {
	if len(req.Articles) == 0 {
		return "", ErrNoArticles
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.provider.Generate(ctx, g.completion(req))
	if err != nil {
		g.recordError(err)
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		err := errEmptyCompletion(g.Provider())
		g.recordError(err)
		return "", err
	}
	metrics.ObserveGeneration(g.Provider(), "blocking", start)
	log.Debug().Str("provider", g.Provider()).Dur("took", time.Since(start)).Msg("Post generated")

	return leading(req) + text, nil
}

// GenerateStreaming starts the backend call and returns a Stream over its
// fragments. An error is returned only when the call cannot be initiated.
func (g *Generator) GenerateStreaming(ctx context.Context, req prompt.Request) (*Stream, error) {
	if len(req.Articles) == 0 {
		return nil, ErrNoArticles
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	start := time.Now()
	chunks, err := g.provider.Stream(ctx, g.completion(req))
	if err != nil {
		cancel()
		g.recordError(err)
		return nil, err
	}

	return &Stream{
		gen:     g,
		chunks:  chunks,
		cancel:  cancel,
		pending: leading(req),
		start:   start,
	}, nil
}

func errEmptyCompletion(provider string) error {
	return &llm.GenerationError{Kind: llm.MalformedResponse, Provider: provider, Err: errors.New("empty completion")}
}

func (g *Generator) recordError(err error) {
	kind := llm.KindOf(err)
	metrics.IncGenerationError(g.Provider(), kind.String())
	log.Warn().Err(err).Str("provider", g.Provider()).Str("kind", kind.String()).Msg("Generation failed")
}

// Stream is a finite, non-restartable sequence of post fragments. The
// concatenated fragments equal what Generate returns for the same request.
// A Stream is not safe for concurrent use.
type Stream struct {
	gen     *Generator
	chunks  llm.ChunkStream
	cancel  context.CancelFunc
	pending string
	cur     string
	err     error
	sawText bool
	closed  bool
	start   time.Time
}

// Next advances to the next fragment. It returns false at the end of the
// stream, after a failure, or once Close was called.
func (s *Stream) Next() bool {
	if s.closed || s.err != nil {
		return false
	}
	if s.pending != "" {
		s.cur, s.pending = s.pending, ""
		return true
	}
	if s.chunks.Next() {
		s.cur = s.chunks.Current()
		if strings.TrimSpace(s.cur) != "" {
			s.sawText = true
		}
		return true
	}

	switch err := s.chunks.Err(); {
	case err != nil:
		s.err = err
		s.gen.recordError(err)
	case !s.sawText:
		s.err = errEmptyCompletion(s.gen.Provider())
		s.gen.recordError(s.err)
	default:
		metrics.ObserveGeneration(s.gen.Provider(), "streaming", s.start)
	}
	s.Close()
	return false
}

// Text returns the current fragment.
func (s *Stream) Text() string {
	return s.cur
}

// Err returns the failure that ended the stream, if any. Stopping early with
// Close is not a failure.
func (s *Stream) Err() error {
	return s.err
}

// Close releases the backend connection. It may be called at any point and
// more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return s.chunks.Close()
}

// ReadAll drains the stream and closes it.
func ReadAll(s *Stream) (string, error) {
	defer s.Close()
	var sb strings.Builder
	for s.Next() {
		sb.WriteString(s.Text())
	}
	return sb.String(), s.Err()
}
