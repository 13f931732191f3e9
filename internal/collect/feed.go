package collect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"

	"github.com/TobiSchelling/ZennPost/internal/account"
	"github.com/TobiSchelling/ZennPost/internal/article"
	"github.com/TobiSchelling/ZennPost/internal/metrics"
)

const (
	maxPerFeed      = 100
	maxFeedBytes    = 10 << 20
	defaultBaseURL  = "https://zenn.dev"
	defaultTimeout  = 15 * time.Second
	defaultRetryGap = 500 * time.Millisecond

	// DefaultUserAgent identifies the tool to the feed host.
	DefaultUserAgent = "ZennPost/1.0 (+https://github.com/TobiSchelling/ZennPost)"
)

// Options configures a Fetcher. Zero values fall back to defaults.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	RetryWait time.Duration
}

// Fetcher retrieves and parses account feeds.
type Fetcher struct {
	baseURL   string
	userAgent string
	retryWait time.Duration
	client    *http.Client
}

// NewFetcher creates a new Fetcher.
func NewFetcher(opts Options) *Fetcher {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryGap
	}
	return &Fetcher{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		retryWait: opts.RetryWait,
		client:    &http.Client{Timeout: opts.Timeout},
	}
}

// BaseURL returns the host the fetcher reads from.
func (f *Fetcher) BaseURL() string {
	return f.baseURL
}

// FetchArticles retrieves the account feed and returns its entries in feed order.
func (f *Fetcher) FetchArticles(ctx context.Context, ref account.Ref) ([]article.Article, error) {
	feedURL := ref.FeedURL(f.baseURL)
	start := time.Now()

	articles, err := f.fetchFeed(ctx, feedURL)

	outcome := "success"
	var fe *FetchError
	if errors.As(err, &fe) {
		outcome = fe.Kind.String()
	}
	metrics.ObserveFeedFetch(outcome, start)

	if err != nil {
		return nil, err
	}
	log.Debug().Str("feed_url", feedURL).Int("entries", len(articles)).Msg("Parsed feed")
	return articles, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, feedURL string) ([]article.Article, error) {
	var body []byte
	op := func() error {
		b, err := f.get(ctx, feedURL)
		if err != nil {
			if ctx.Err() == nil && isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		body = b
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("feed_url", feedURL).Dur("wait", wait).Msg("Transient feed error, retrying once")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(f.retryWait), 1), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, &FetchError{Kind: Transport, URL: feedURL, Err: err}
	}

	return parseFeed(body, feedURL)
}

func (f *Fetcher) get(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: Malformed, URL: feedURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: Transport, URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &FetchError{Kind: NotFound, URL: feedURL, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &FetchError{Kind: Transport, URL: feedURL, StatusCode: resp.StatusCode}
	}

	if ct := resp.Header.Get("Content-Type"); !isFeedContentType(ct) {
		return nil, &FetchError{
			Kind:       Malformed,
			URL:        feedURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected content type %q", ct),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, &FetchError{Kind: Transport, URL: feedURL, StatusCode: resp.StatusCode, Err: err}
	}
	return data, nil
}

// isTransient reports whether a failed attempt deserves the single retry:
// connection resets, timeouts, truncated bodies and 5xx responses.
func isTransient(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != Transport {
		return false
	}
	if fe.StatusCode >= 500 {
		return true
	}
	// Body read failures carry the 2xx status; classify those by cause.
	if fe.Err == nil {
		return false
	}

	if errors.Is(fe.Err, syscall.ECONNRESET) || errors.Is(fe.Err, io.ErrUnexpectedEOF) || errors.Is(fe.Err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(fe.Err, &netErr) && netErr.Timeout()
}

func isFeedContentType(ct string) bool {
	if ct == "" {
		return true
	}
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "xml") || strings.Contains(ct, "rss") || strings.Contains(ct, "atom")
}

func parseFeed(body []byte, feedURL string) ([]article.Article, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Kind: Malformed, URL: feedURL, Err: err}
	}

	base, _ := url.Parse(feedURL)

	var articles []article.Article
	for _, item := range feed.Items {
		if len(articles) >= maxPerFeed {
			break
		}
		a, ok := parseItem(item, base)
		if !ok {
			continue
		}
		articles = append(articles, a)
	}

	if len(articles) == 0 {
		return nil, &FetchError{
			Kind: EmptyFeed,
			URL:  feedURL,
			Err:  fmt.Errorf("%d entries, none with a link and publication date", len(feed.Items)),
		}
	}
	return articles, nil
}

func parseItem(item *gofeed.Item, base *url.URL) (article.Article, bool) {
	if item == nil {
		return article.Article{}, false
	}

	link := strings.TrimSpace(item.Link)
	if link == "" && strings.HasPrefix(item.GUID, "http") {
		link = strings.TrimSpace(item.GUID)
	}
	itemURL, ok := absoluteURL(link, base)
	if !ok {
		return article.Article{}, false
	}

	var published time.Time
	switch {
	case item.PublishedParsed != nil:
		published = *item.PublishedParsed
	case item.UpdatedParsed != nil:
		published = *item.UpdatedParsed
	default:
		return article.Article{}, false
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = itemURL
	}

	var description string
	if item.Description != "" {
		description = stripHTML(item.Description)
	} else if item.Content != "" {
		description = stripHTML(item.Content)
	}

	var tags []string
	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" {
			tags = append(tags, c)
		}
	}

	return article.Article{
		Title:       title,
		URL:         itemURL,
		PublishedAt: published.UTC(),
		Description: description,
		Tags:        tags,
	}, true
}

func absoluteURL(link string, base *url.URL) (string, bool) {
	if link == "" {
		return "", false
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		if base == nil {
			return "", false
		}
		u = base.ResolveReference(u)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return u.String(), true
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(s)

	return strings.Join(strings.Fields(s), " ")
}
