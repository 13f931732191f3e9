package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/ZennPost/internal/article"
)

// ExcerptLength bounds the description derived from an article page.
const ExcerptLength = 200

// Result holds the results of an excerpt run.
type Result struct {
	Fetched           int
	AlreadyHadExcerpt int
	Failed            int
}

// ExcerptFetcher fills in missing article descriptions from the article
// pages via readability extraction.
type ExcerptFetcher struct {
	client    *http.Client
	userAgent string
}

// NewExcerptFetcher creates a new excerpt fetcher.
func NewExcerptFetcher(timeout time.Duration, userAgent string) *ExcerptFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ExcerptFetcher{
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Enrich returns a copy of articles where each empty description has been
// replaced by an excerpt of the page. Failures leave the article untouched.
// Once a host answers with an HTTP error its remaining articles are skipped.
func (f *ExcerptFetcher) Enrich(ctx context.Context, articles []article.Article) ([]article.Article, *Result) {
	out := make([]article.Article, len(articles))
	copy(out, articles)

	result := &Result{}
	failedHosts := make(map[string]struct{})

	for i := range out {
		a := &out[i]
		if a.Description != "" {
			result.AlreadyHadExcerpt++
			continue
		}
		if ctx.Err() != nil {
			result.Failed++
			continue
		}

		host := ""
		if u, err := url.Parse(a.URL); err == nil {
			host = strings.ToLower(u.Host)
		}
		if _, failed := failedHosts[host]; failed {
			result.Failed++
			continue
		}

		text, httpErr := f.fetchText(ctx, a.URL)
		if httpErr != nil {
			result.Failed++
			if host != "" {
				failedHosts[host] = struct{}{}
			}
			log.Warn().Err(httpErr).Str("url", a.URL).Str("host", host).Msg("HTTP error, skipping remaining articles from host")
			continue
		}

		if text == "" {
			result.Failed++
			log.Debug().Str("url", a.URL).Msg("No extractable content")
			continue
		}
		a.Description = excerpt(text, ExcerptLength)
		result.Fetched++
	}

	log.Debug().Int("fetched", result.Fetched).Int("failed", result.Failed).Msg("Excerpt fetch complete")
	return out, result
}

// fetchText returns the readable text of a page. Only HTTP status failures
// are reported as errors; connection and extraction problems yield "".
func (f *ExcerptFetcher) fetchText(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", nil
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	parsedURL, _ := url.Parse(articleURL)
	page, err := readability.FromReader(io.LimitReader(resp.Body, 5<<20), parsedURL)
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(page.TextContent), nil
}

// excerpt collapses whitespace and clips to limit runes.
func excerpt(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
