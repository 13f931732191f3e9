package collect

import (
	"errors"
	"fmt"
)

// ErrorKind classifies feed retrieval failures.
type ErrorKind int

const (
	Transport ErrorKind = iota
	NotFound
	EmptyFeed
	Malformed
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case EmptyFeed:
		return "empty_feed"
	case Malformed:
		return "malformed"
	default:
		return "transport"
	}
}

// FetchError is returned by Fetcher.FetchArticles.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetching %s: %s (HTTP %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetching %s: %s (HTTP %d)", e.URL, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetching %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetching %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a FetchError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}
