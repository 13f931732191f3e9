package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/ZennPost/internal/account"
	"github.com/TobiSchelling/ZennPost/internal/article"
	"github.com/TobiSchelling/ZennPost/internal/collect"
	"github.com/TobiSchelling/ZennPost/internal/config"
	"github.com/TobiSchelling/ZennPost/internal/fetch"
	"github.com/TobiSchelling/ZennPost/internal/llm"
	"github.com/TobiSchelling/ZennPost/internal/metrics"
	"github.com/TobiSchelling/ZennPost/internal/popular"
	"github.com/TobiSchelling/ZennPost/internal/post"
	"github.com/TobiSchelling/ZennPost/internal/prompt"
)

// ArticleSource retrieves the articles of an account.
type ArticleSource interface {
	FetchArticles(ctx context.Context, ref account.Ref) ([]article.Article, error)
}

// Enricher fills in article details after selection.
type Enricher interface {
	Enrich(ctx context.Context, articles []article.Article) ([]article.Article, *fetch.Result)
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Input is one pipeline request.
type Input struct {
	Account string
	// Tone overrides the tone implied by the account kind.
	Tone *prompt.Tone
	// Limit <= 0 uses the configured default.
	Limit int
	Seed  *int64
	// Template "" uses the configured default.
	Template string
}

// Prepared is everything computed before generation.
type Prepared struct {
	RunID     string
	Account   account.Ref
	Fetched   int
	Selection []article.Article
	Request   prompt.Request
	Steps     []StepResult
}

// Result holds the results of a blocking run.
type Result struct {
	*Prepared
	Post string
}

// Options wires the pipeline's collaborators.
type Options struct {
	Source    ArticleSource
	Enricher  Enricher // optional
	Generator *post.Generator

	DefaultLimit    int
	DefaultTemplate string
	MaxTokens       int
	Language        string
}

// Pipeline runs resolve → fetch → select → build → generate.
type Pipeline struct {
	opts Options
}

// New creates a new pipeline.
func New(opts Options) *Pipeline {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 5
	}
	return &Pipeline{opts: opts}
}

// NewFromConfig builds the fetcher, provider and generator from config.
func NewFromConfig(ctx context.Context, cfg *config.Config) *Pipeline {
	gen := cfg.Generation
	provider := llm.CreateProvider(ctx, llm.Settings{
		Provider:      gen.Provider,
		Model:         gen.Model,
		OllamaURL:     gen.OllamaURL,
		OpenAIModel:   gen.OpenAIModel,
		OpenAIBaseURL: gen.OpenAIBaseURL,
		OpenAIAPIKey:  cfg.OpenAIAPIKey(),
		GeminiModel:   gen.GeminiModel,
		GeminiAPIKey:  cfg.GeminiAPIKey(),
	})

	source := collect.NewFetcher(collect.Options{
		BaseURL:   cfg.Zenn.BaseURL,
		Timeout:   cfg.Zenn.Timeout,
		UserAgent: cfg.Zenn.UserAgent,
	})

	opts := Options{
		Source: source,
		Generator: post.New(provider,
			post.WithTimeout(gen.Timeout),
			post.WithTemperature(gen.Temperature),
		),
		DefaultLimit:    cfg.Selection.Limit,
		DefaultTemplate: gen.Template,
		MaxTokens:       gen.MaxTokens,
		Language:        gen.Language,
	}
	if cfg.Zenn.FetchExcerpts {
		ua := cfg.Zenn.UserAgent
		if ua == "" {
			ua = collect.DefaultUserAgent
		}
		opts.Enricher = fetch.NewExcerptFetcher(cfg.Zenn.Timeout, ua)
	}
	return New(opts)
}

// Provider returns the generation backend name.
func (p *Pipeline) Provider() string {
	return p.opts.Generator.Provider()
}

// Prepare resolves the account, fetches its feed, selects articles and
// builds the generation request.
func (p *Pipeline) Prepare(ctx context.Context, in Input) (*Prepared, error) {
	prep := &Prepared{RunID: uuid.NewString()}
	logger := log.With().Str("run_id", prep.RunID).Str("account", in.Account).Logger()

	// Resolve
	ref, err := account.Resolve(in.Account)
	if err != nil {
		metrics.IncPipelineRun("unknown", "invalid_account")
		return nil, err
	}
	prep.Account = ref
	prep.Steps = append(prep.Steps, StepResult{
		Name:    "Resolve",
		Summary: fmt.Sprintf("%s account %q", ref.Kind, ref.Identifier),
	})

	// Step 1: Fetch
	logger.Debug().Str("kind", ref.Kind.String()).Msg("Step 1/4: Fetching feed...")
	articles, err := p.opts.Source.FetchArticles(ctx, ref)
	if err != nil {
		metrics.IncPipelineRun(ref.Kind.String(), "fetch_error")
		return nil, fmt.Errorf("fetching articles for %s: %w", ref, err)
	}
	prep.Fetched = len(articles)
	prep.Steps = append(prep.Steps, StepResult{
		Name:    "Fetch",
		Summary: fmt.Sprintf("Found %d articles", len(articles)),
	})

	// Step 2: Select
	logger.Debug().Msg("Step 2/4: Selecting articles...")
	limit := in.Limit
	if limit <= 0 {
		limit = p.opts.DefaultLimit
	}
	prep.Selection = popular.Select(articles, limit, in.Seed)
	prep.Steps = append(prep.Steps, StepResult{
		Name:    "Select",
		Summary: fmt.Sprintf("Selected %d of %d articles", len(prep.Selection), len(articles)),
	})

	if p.opts.Enricher != nil {
		logger.Debug().Msg("Step 3/4: Fetching excerpts...")
		var res *fetch.Result
		prep.Selection, res = p.opts.Enricher.Enrich(ctx, prep.Selection)
		prep.Steps = append(prep.Steps, StepResult{
			Name:    "Excerpts",
			Summary: fmt.Sprintf("Fetched %d excerpts, %d failed", res.Fetched, res.Failed),
		})
	}

	// Step 4: Build
	logger.Debug().Msg("Step 4/4: Building prompt...")
	tone := prompt.ToneFor(ref.Kind)
	if in.Tone != nil {
		tone = *in.Tone
	}
	template := in.Template
	if template == "" {
		template = p.opts.DefaultTemplate
	}
	prep.Request = prompt.Build(prep.Selection, tone, template,
		prompt.WithMaxOutputTokens(p.opts.MaxTokens),
		prompt.WithLanguage(p.opts.Language),
	)
	prep.Steps = append(prep.Steps, StepResult{
		Name:    "Prompt",
		Summary: fmt.Sprintf("%s tone, %d articles", tone, len(prep.Selection)),
	})

	logger.Info().
		Int("fetched", prep.Fetched).
		Int("selected", len(prep.Selection)).
		Str("tone", tone.String()).
		Msg("Prepared generation request")
	return prep, nil
}

// Run prepares the request and generates the post in one call.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	prep, err := p.Prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	text, err := p.opts.Generator.Generate(ctx, prep.Request)
	if err != nil {
		metrics.IncPipelineRun(prep.Account.Kind.String(), "generation_error")
		return nil, fmt.Errorf("generating post: %w", err)
	}
	metrics.IncPipelineRun(prep.Account.Kind.String(), "success")
	prep.Steps = append(prep.Steps, StepResult{
		Name:    "Generate",
		Summary: fmt.Sprintf("%d characters via %s", len([]rune(text)), p.Provider()),
	})
	return &Result{Prepared: prep, Post: text}, nil
}

// RunStreaming prepares the request and starts a streaming generation. The
// caller owns the returned stream and must Close it.
func (p *Pipeline) RunStreaming(ctx context.Context, in Input) (*Prepared, *post.Stream, error) {
	prep, err := p.Prepare(ctx, in)
	if err != nil {
		return nil, nil, err
	}

	stream, err := p.opts.Generator.GenerateStreaming(ctx, prep.Request)
	if err != nil {
		metrics.IncPipelineRun(prep.Account.Kind.String(), "generation_error")
		return nil, nil, fmt.Errorf("generating post: %w", err)
	}
	metrics.IncPipelineRun(prep.Account.Kind.String(), "streaming")
	return prep, stream, nil
}

// UserMessage turns a pipeline error into a message fit for end users.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, account.ErrInvalidFormat) {
		return "That doesn't look like a Zenn account. Use a name, @name, or a profile URL such as https://zenn.dev/name or https://zenn.dev/p/org."
	}
	if errors.Is(err, post.ErrNoArticles) {
		return "No articles were selected, so there is nothing to write about."
	}

	var fe *collect.FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case collect.NotFound:
			return "That account does not exist on Zenn."
		case collect.EmptyFeed:
			return "That account has no published articles yet."
		case collect.Malformed:
			return "Zenn returned a feed that could not be read. Try again later."
		default:
			return "Could not reach Zenn. Check your connection and try again."
		}
	}

	var ge *llm.GenerationError
	if errors.As(err, &ge) {
		switch ge.Kind {
		case llm.AuthFailure:
			return fmt.Sprintf("The %s API key is missing or invalid. Set it in your environment or .env file.", providerLabel(ge.Provider))
		case llm.RateLimited:
			return fmt.Sprintf("The %s API rate limit or quota was reached. Wait a moment and try again.", providerLabel(ge.Provider))
		case llm.Timeout:
			return "Generating the post took too long. Try again."
		case llm.MalformedResponse:
			return "The language model returned an empty or unreadable answer. Try again."
		default:
			return fmt.Sprintf("The %s service is unavailable right now. Try again later.", providerLabel(ge.Provider))
		}
	}

	if errors.Is(err, context.Canceled) {
		return "The request was cancelled."
	}
	return "Something went wrong: " + err.Error()
}

func providerLabel(name string) string {
	switch strings.ToLower(name) {
	case "openai":
		return "OpenAI"
	case "ollama":
		return "Ollama"
	case "gemini":
		return "Gemini"
	case "":
		return "language model"
	default:
		return name
	}
}
