package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TobiSchelling/ZennPost/internal/collect"
	"github.com/TobiSchelling/ZennPost/internal/llm"
	"github.com/TobiSchelling/ZennPost/internal/metrics"
	"github.com/TobiSchelling/ZennPost/internal/pipeline"
	"github.com/TobiSchelling/ZennPost/internal/post"
)

func newTestServer(t *testing.T, provider llm.Provider) *Server {
	t.Helper()
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/alice/feed" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		var sb strings.Builder
		sb.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>alice</title><link>https://zenn.dev/alice</link>`)
		for i := 1; i <= 3; i++ {
			fmt.Fprintf(&sb, "<item><title>Article %d</title><link>https://zenn.dev/alice/articles/a%d</link><pubDate>Mon, 0%d Feb 2026 10:00:00 GMT</pubDate></item>", i, i, i+1)
		}
		sb.WriteString(`</channel></rss>`)
		w.Write([]byte(sb.String()))
	}))
	t.Cleanup(feed.Close)

	p := pipeline.New(pipeline.Options{
		Source:    collect.NewFetcher(collect.Options{BaseURL: feed.URL, Timeout: time.Second, RetryWait: time.Millisecond}),
		Generator: post.New(provider),
	})

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)
	srv, err := New(p, reg)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func TestIndexRoute(t *testing.T) {
	srv := newTestServer(t, llm.NewMockProvider("x"))

	req := httptest.NewRequest("GET", "/?account=alice", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `action="/generate"`) {
		t.Error("expected the generate form")
	}
	if !strings.Contains(body, `value="alice"`) {
		t.Error("expected account to be prefilled from the query")
	}
}

func TestGenerateRoute(t *testing.T) {
	srv := newTestServer(t, llm.NewMockProvider("Read **this** #zenn"))

	form := url.Values{"account": {"@alice"}, "tone": {"organization"}, "limit": {"2"}, "seed": {"3"}, "template": {"New: {url}"}}
	req := httptest.NewRequest("POST", "/generate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<strong>this</strong>") {
		t.Error("expected markdown preview")
	}
	if !strings.Contains(body, "New: https://zenn.dev/alice/articles/") {
		t.Error("expected resolved template in the post")
	}
	if strings.Count(body, "<li>") != 2 {
		t.Errorf("expected 2 featured articles, got %d", strings.Count(body, "<li>"))
	}
	if !strings.Contains(body, "Picked 2 of 3 articles") {
		t.Error("expected selection summary")
	}
}

func TestGenerateRouteErrors(t *testing.T) {
	tests := []struct {
		name     string
		form     url.Values
		provider llm.Provider
		status   int
		want     string
	}{
		{"missing account", url.Values{}, llm.NewMockProvider("x"), http.StatusBadRequest, "enter a Zenn account"},
		{"invalid account", url.Values{"account": {"p/"}}, llm.NewMockProvider("x"), http.StatusBadRequest, "look like a Zenn account"},
		{"bad limit", url.Values{"account": {"alice"}, "limit": {"99"}}, llm.NewMockProvider("x"), http.StatusBadRequest, "between 1 and 20"},
		{"unknown account", url.Values{"account": {"ghost"}}, llm.NewMockProvider("x"), http.StatusNotFound, "does not exist"},
		{"auth failure", url.Values{"account": {"alice"}},
			&llm.MockProvider{Err: &llm.GenerationError{Kind: llm.AuthFailure, Provider: "openai"}},
			http.StatusBadGateway, "OpenAI API key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.provider)
			req := httptest.NewRequest("POST", "/generate", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("expected %q in body", tt.want)
			}
		})
	}
}

func TestStreamRoute(t *testing.T) {
	mock := &llm.MockProvider{Response: "Hello world", Chunks: []string{"Hello", " world"}}
	srv := newTestServer(t, mock)

	req := httptest.NewRequest("GET", "/api/stream?account=alice&template=Hi", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("expected text/plain, got %q", ct)
	}
	if rec.Body.String() != "Hi\n\nHello world" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestStreamRouteLateFailure(t *testing.T) {
	mock := &llm.MockProvider{Chunks: []string{"Hel"}, StreamErr: &llm.GenerationError{Kind: llm.Timeout, Provider: "mock"}}
	srv := newTestServer(t, mock)

	req := httptest.NewRequest("GET", "/api/stream?account=alice", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.HasPrefix(body, "Hel") || !strings.Contains(body, "[error]") {
		t.Errorf("expected partial text followed by an error note, got %q", body)
	}
}

func TestStreamRouteInitFailure(t *testing.T) {
	mock := &llm.MockProvider{Err: &llm.GenerationError{Kind: llm.RateLimited, Provider: "openai"}}
	srv := newTestServer(t, mock)

	req := httptest.NewRequest("GET", "/api/stream?account=alice", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rate limit") {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, llm.NewMockProvider("x"))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}

	// Produce at least one sample for the feed metrics.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/stream?account=alice", nil))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "zennpost_feed_fetch_total") {
		t.Error("expected feed metrics to be exposed")
	}
}
