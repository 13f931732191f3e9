package post

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/ZennPost/internal/article"
	"github.com/TobiSchelling/ZennPost/internal/llm"
	"github.com/TobiSchelling/ZennPost/internal/prompt"
)

func request(template string) prompt.Request {
	return prompt.Build([]article.Article{{
		Title:       "Go generics in practice",
		URL:         "https://zenn.dev/alice/articles/x1",
		PublishedAt: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
	}}, prompt.Personal, template)
}

func TestGenerate(t *testing.T) {
	mock := llm.NewMockProvider("A great read on generics #golang")
	g := New(mock, WithTemperature(0.2))

	got, err := g.Generate(context.Background(), request(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "A great read on generics #golang" {
		t.Errorf("unexpected post %q", got)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one backend call, got %d", len(calls))
	}
	c := calls[0]
	if c.MaxTokens != prompt.DefaultMaxOutputTokens {
		t.Errorf("expected max tokens %d, got %d", prompt.DefaultMaxOutputTokens, c.MaxTokens)
	}
	if c.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", c.Temperature)
	}
	if !strings.Contains(c.User, "https://zenn.dev/alice/articles/x1") {
		t.Error("user block should list the article URL")
	}
	if c.System == "" {
		t.Error("expected a tone instruction")
	}
}

func TestGeneratePrependsPreamble(t *testing.T) {
	g := New(llm.NewMockProvider("body"))
	got, err := g.Generate(context.Background(), request("Check this out: {url}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Check this out: https://zenn.dev/alice/articles/x1\n\nbody"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestStreamingMatchesBlocking(t *testing.T) {
	for _, template := range []string{"", "New post {url} {title}"} {
		mock := &llm.MockProvider{
			Response: "Hello Zenn readers! #go",
			Chunks:   []string{"Hello ", "Zenn ", "readers", "! #go"},
		}
		g := New(mock)

		blocking, err := g.Generate(context.Background(), request(template))
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		s, err := g.GenerateStreaming(context.Background(), request(template))
		if err != nil {
			t.Fatalf("GenerateStreaming: %v", err)
		}
		streamed, err := ReadAll(s)
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		if streamed != blocking {
			t.Errorf("template %q: streamed %q != blocking %q", template, streamed, blocking)
		}
	}
}

func TestStreamEarlyClose(t *testing.T) {
	g := New(llm.NewMockProvider("one two three four"))
	s, err := g.GenerateStreaming(context.Background(), request(""))
	if err != nil {
		t.Fatal(err)
	}
	if !s.Next() || s.Text() != "one " {
		t.Fatalf("expected first fragment, got %q", s.Text())
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if s.Next() {
		t.Error("Next after Close should report false")
	}
	if s.Err() != nil {
		t.Errorf("early stop is not an error, got %v", s.Err())
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestStreamSurfacesLateFailure(t *testing.T) {
	late := &llm.GenerationError{Kind: llm.Timeout, Provider: "mock"}
	mock := &llm.MockProvider{Chunks: []string{"partial"}, StreamErr: late}
	s, err := New(mock).GenerateStreaming(context.Background(), request(""))
	if err != nil {
		t.Fatal(err)
	}
	text, err := ReadAll(s)
	if text != "partial" {
		t.Errorf("expected fragments before the failure, got %q", text)
	}
	if !llm.IsKind(err, llm.Timeout) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestStreamEmptyCompletion(t *testing.T) {
	mock := &llm.MockProvider{Chunks: []string{}}
	s, err := New(mock).GenerateStreaming(context.Background(), request("Read: {url}"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ReadAll(s); !llm.IsKind(err, llm.MalformedResponse) {
		t.Errorf("expected malformed response, got %v", err)
	}
}

func TestGenerateEmptyCompletion(t *testing.T) {
	for _, resp := range []string{"", "  \n\t"} {
		g := New(&llm.MockProvider{Response: resp})
		got, err := g.Generate(context.Background(), request("Read: {url}"))
		if !llm.IsKind(err, llm.MalformedResponse) {
			t.Errorf("response %q: expected malformed response, got %v", resp, err)
		}
		if got != "" {
			t.Errorf("response %q: expected no post, got %q", resp, got)
		}
	}
}

func TestInitiationFailure(t *testing.T) {
	mock := &llm.MockProvider{Err: &llm.GenerationError{Kind: llm.AuthFailure, Provider: "mock"}}
	g := New(mock)

	if _, err := g.Generate(context.Background(), request("")); !llm.IsKind(err, llm.AuthFailure) {
		t.Errorf("Generate: expected auth failure, got %v", err)
	}
	s, err := g.GenerateStreaming(context.Background(), request(""))
	if s != nil || !llm.IsKind(err, llm.AuthFailure) {
		t.Errorf("GenerateStreaming: expected auth failure and no stream, got %v", err)
	}
}

func TestEmptySelection(t *testing.T) {
	mock := llm.NewMockProvider("")
	g := New(mock)
	empty := prompt.Build(nil, prompt.Personal, "")

	if _, err := g.Generate(context.Background(), empty); !errors.Is(err, ErrNoArticles) {
		t.Errorf("expected ErrNoArticles, got %v", err)
	}
	if _, err := g.GenerateStreaming(context.Background(), empty); !errors.Is(err, ErrNoArticles) {
		t.Errorf("expected ErrNoArticles, got %v", err)
	}
	if len(mock.Calls()) != 0 {
		t.Error("backend should not be called for an empty selection")
	}
}

type slowProvider struct{ llm.MockProvider }

func (p *slowProvider) Generate(ctx context.Context, c llm.Completion) (string, error) {
	<-ctx.Done()
	return "", &llm.GenerationError{Kind: llm.Timeout, Provider: "slow", Err: ctx.Err()}
}

func TestGenerateRespectsTimeout(t *testing.T) {
	g := New(&slowProvider{}, WithTimeout(20*time.Millisecond))
	_, err := g.Generate(context.Background(), request(""))
	if !llm.IsKind(err, llm.Timeout) {
		t.Errorf("expected timeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
