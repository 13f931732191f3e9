// Package account turns user-supplied account strings into canonical references.
package account

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidFormat is returned when an input cannot be resolved to an account.
var ErrInvalidFormat = errors.New("invalid account format")

// OrgMarker is the first path segment of organization (publication) profiles.
const OrgMarker = "p"

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Kind distinguishes personal profiles from organization profiles.
type Kind int

const (
	// Personal is an individual's profile, e.g. zenn.dev/alice.
	Personal Kind = iota
	// Organization is a publication profile under zenn.dev/p/.
	Organization
)

func (k Kind) String() string {
	switch k {
	case Organization:
		return "organization"
	default:
		return "personal"
	}
}

// Ref is a resolved account. Identifier is always the bare name.
type Ref struct {
	Identifier string
	Kind       Kind
}

// Path returns the profile path relative to the host, without slashes.
func (r Ref) Path() string {
	if r.Kind == Organization {
		return OrgMarker + "/" + r.Identifier
	}
	return r.Identifier
}

// ProfileURL returns the profile URL on the given base (e.g. https://zenn.dev).
func (r Ref) ProfileURL(base string) string {
	return strings.TrimRight(base, "/") + "/" + r.Path()
}

// FeedURL returns the syndication feed URL on the given base.
func (r Ref) FeedURL(base string) string {
	return r.ProfileURL(base) + "/feed"
}

func (r Ref) String() string {
	return r.Path()
}

// Resolve parses a bare name, an @handle, or a profile URL into a Ref.
func Resolve(input string) (Ref, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return Ref{}, invalid(input, "empty input")
	}

	path, structured, err := stripHost(s)
	if err != nil {
		return Ref{}, invalid(input, err.Error())
	}

	if !structured {
		name := strings.TrimPrefix(path, "@")
		if !identifierPattern.MatchString(name) {
			return Ref{}, invalid(input, "name contains disallowed characters")
		}
		return Ref{Identifier: name, Kind: Personal}, nil
	}

	path = strings.Trim(path, "/")
	if path == "" {
		return Ref{}, invalid(input, "no account in path")
	}
	segments := strings.Split(path, "/")

	ref := Ref{Identifier: segments[0], Kind: Personal}
	if segments[0] == OrgMarker {
		if len(segments) < 2 || segments[1] == "" {
			return Ref{}, invalid(input, "organization marker without a name")
		}
		ref = Ref{Identifier: segments[1], Kind: Organization}
	}

	if !identifierPattern.MatchString(ref.Identifier) {
		return Ref{}, invalid(input, "name contains disallowed characters")
	}
	return ref, nil
}

// stripHost removes scheme and host. structured reports whether the remainder
// must be read as a path (URL input or input containing a separator).
func stripHost(s string) (path string, structured bool, err error) {
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", false, fmt.Errorf("unparsable URL")
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("URL without host")
		}
		return u.Path, true, nil
	}

	if !strings.Contains(s, "/") {
		return s, false, nil
	}

	// Scheme-less host form, e.g. zenn.dev/alice.
	first, rest, _ := strings.Cut(s, "/")
	if strings.Contains(first, ".") {
		if u, err := url.Parse("https://" + s); err == nil {
			return u.Path, true, nil
		}
		return rest, true, nil
	}
	return s, true, nil
}

func invalid(input, reason string) error {
	return fmt.Errorf("%w: %q: %s", ErrInvalidFormat, input, reason)
}
