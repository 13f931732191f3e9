package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/ZennPost/internal/article"
)

const page = `<!DOCTYPE html>
<html><head><title>Go generics in practice</title></head>
<body>
<nav>Home | About</nav>
<article>
<h1>Go generics in practice</h1>
<p>Type parameters landed in Go 1.18 and changed how we write reusable containers and algorithms.
This article walks through constraints, type inference and the places where generics pay off.</p>
<p>We also look at the cases where an interface is still the better tool, and at how generic code
interacts with the garbage collector and with inlining in the compiler.</p>
<p>Along the way we build a small set of helpers for slices and maps, discuss naming conventions for
type parameters, and show how to document constraints so that callers understand what a function expects.</p>
<p>Finally we benchmark a generic ordered map against a hand-specialised version to see the cost.</p>
</article>
<footer>Copyright</footer>
</body></html>`

func TestEnrichFillsMissingDescriptions(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer srv.Close()

	in := []article.Article{
		{Title: "a", URL: srv.URL + "/alice/articles/a"},
		{Title: "b", URL: srv.URL + "/alice/articles/b", Description: "kept"},
	}
	f := NewExcerptFetcher(time.Second, "ZennPost/test")
	out, result := f.Enrich(context.Background(), in)

	if in[0].Description != "" {
		t.Error("input slice must not be modified")
	}
	if !strings.Contains(out[0].Description, "Type parameters") {
		t.Errorf("expected excerpt from page, got %q", out[0].Description)
	}
	if len([]rune(out[0].Description)) > ExcerptLength+1 {
		t.Errorf("excerpt too long: %d runes", len([]rune(out[0].Description)))
	}
	if out[1].Description != "kept" {
		t.Errorf("existing description overwritten: %q", out[1].Description)
	}
	if result.Fetched != 1 || result.AlreadyHadExcerpt != 1 || result.Failed != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if gotUA != "ZennPost/test" {
		t.Errorf("expected user agent to be sent, got %q", gotUA)
	}
}

func TestEnrichSkipsFailedHost(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	in := []article.Article{
		{Title: "a", URL: srv.URL + "/a"},
		{Title: "b", URL: srv.URL + "/b"},
		{Title: "c", URL: srv.URL + "/c"},
	}
	out, result := NewExcerptFetcher(time.Second, "").Enrich(context.Background(), in)

	if calls.Load() != 1 {
		t.Errorf("expected one request before skipping the host, got %d", calls.Load())
	}
	if result.Failed != 3 {
		t.Errorf("expected 3 failures, got %d", result.Failed)
	}
	for _, a := range out {
		if a.Description != "" {
			t.Errorf("expected no description, got %q", a.Description)
		}
	}
}

func TestExcerpt(t *testing.T) {
	if got := excerpt("  a\n\n b\tc ", 10); got != "a b c" {
		t.Errorf("unexpected excerpt %q", got)
	}
	if got := excerpt("abcdefghij", 4); got != "abcd…" {
		t.Errorf("unexpected clipped excerpt %q", got)
	}
}
