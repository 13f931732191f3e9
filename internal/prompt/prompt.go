// Package prompt assembles generation requests from selected articles.
package prompt

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/ZennPost/internal/account"
	"github.com/TobiSchelling/ZennPost/internal/article"
)

// URLPlaceholder is replaced by the first selected article's URL.
const URLPlaceholder = "{url}"

// DefaultMaxOutputTokens bounds the generated post.
const DefaultMaxOutputTokens = 500

// DefaultLanguage is the language posts are written in.
const DefaultLanguage = "Japanese"

// Tone selects one of the two fixed style profiles.
type Tone int

const (
	// Personal is the casual first-person voice of an individual developer.
	Personal Tone = iota
	// Organization is the professional voice of a company publication.
	Organization
)

func (t Tone) String() string {
	if t == Organization {
		return "organization"
	}
	return "personal"
}

// ToneFor returns the tone matching an account kind.
func ToneFor(kind account.Kind) Tone {
	if kind == account.Organization {
		return Organization
	}
	return Personal
}

// ParseTone accepts "personal" and "organization" (or "corporate"/"company").
func ParseTone(s string) (Tone, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "personal", "casual", "individual":
		return Personal, nil
	case "organization", "organisation", "corporate", "company", "formal":
		return Organization, nil
	default:
		return Personal, fmt.Errorf("unknown tone %q (want personal or organization)", s)
	}
}

const personalSystemPrompt = `You write social media posts for an individual developer.
Write one post for X (Twitter) introducing popular articles from their Zenn account.

Style:
1. Casual, friendly tone
2. Speak to the reader as in a conversation
3. Use a few emoji
4. At most 280 characters
5. Include 1-2 hashtags
6. Include an article URL, preferring the most popular article
7. Write the post in %s

Output only the post text.`

const organizationSystemPrompt = `You write social media posts for a company.
Write one post for X (Twitter) introducing popular articles from the company's Zenn publication.

Style:
1. Formal, polite tone
2. Informative, focused on what the reader will learn
3. Use emoji sparingly
4. At most 280 characters
5. Include 1-2 hashtags
6. Include an article URL, preferring the most popular article
7. Write the post in %s

Output only the post text.`

const userPromptTemplate = `Write the post based on these popular articles.

%s
%s`

const personalClosing = "Center the post on the most popular article and make readers curious."
const organizationClosing = "Center the post on the most popular article and convey expertise and reliability."

// Request is everything the generator needs for one post.
type Request struct {
	Articles        []article.Article
	Tone            Tone
	Template        string // verbatim; resolved by Preamble
	MaxOutputTokens int
	System          string
	User            string
}

// Option adjusts a Request built by Build.
type Option func(*Request, *settings)

type settings struct {
	language string
}

// WithMaxOutputTokens overrides DefaultMaxOutputTokens.
func WithMaxOutputTokens(n int) Option {
	return func(r *Request, _ *settings) {
		if n > 0 {
			r.MaxOutputTokens = n
		}
	}
}

// WithLanguage sets the language the post is written in.
func WithLanguage(lang string) Option {
	return func(_ *Request, s *settings) {
		if lang != "" {
			s.language = lang
		}
	}
}

// Build assembles the tone instruction and article listing into a Request.
// The template is recorded as-is; substitution happens at generation time.
func Build(selection []article.Article, tone Tone, template string, opts ...Option) Request {
	r := Request{
		Articles:        selection,
		Tone:            tone,
		Template:        template,
		MaxOutputTokens: DefaultMaxOutputTokens,
	}
	s := settings{language: DefaultLanguage}
	for _, opt := range opts {
		opt(&r, &s)
	}

	listing := FormatArticles(selection)
	if tone == Organization {
		r.System = fmt.Sprintf(organizationSystemPrompt, s.language)
		r.User = fmt.Sprintf(userPromptTemplate, listing, organizationClosing)
	} else {
		r.System = fmt.Sprintf(personalSystemPrompt, s.language)
		r.User = fmt.Sprintf(userPromptTemplate, listing, personalClosing)
	}
	return r
}

// Preamble returns the template with the URL placeholder resolved, or "" when
// no template was given. Unknown placeholders are left untouched.
func (r Request) Preamble() string {
	if r.Template == "" {
		return ""
	}
	if len(r.Articles) == 0 {
		return r.Template
	}
	return strings.ReplaceAll(r.Template, URLPlaceholder, r.Articles[0].URL)
}

// FormatArticles renders the numbered article listing used in the user prompt.
func FormatArticles(articles []article.Article) string {
	var sb strings.Builder
	sb.WriteString("[Popular articles]\n")
	for i, a := range articles {
		fmt.Fprintf(&sb, "%d. Title: %s\n", i+1, a.Title)
		fmt.Fprintf(&sb, "   URL: %s\n", a.URL)
		fmt.Fprintf(&sb, "   Published: %s\n", a.PublishedDate())
		if a.EngagementScore != nil {
			fmt.Fprintf(&sb, "   Likes: %g\n", *a.EngagementScore)
		}
		if a.Description != "" {
			fmt.Fprintf(&sb, "   Summary: %s\n", clipRunes(a.Description, 300))
		}
		if len(a.Tags) > 0 {
			fmt.Fprintf(&sb, "   Tags: %s\n", strings.Join(a.Tags, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func clipRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
