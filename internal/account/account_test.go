package account

import (
	"errors"
	"testing"
)

func TestResolveEquivalentForms(t *testing.T) {
	want := Ref{Identifier: "alice", Kind: Personal}
	inputs := []string{
		"alice",
		"@alice",
		"  alice  ",
		"https://zenn.dev/alice",
		"https://zenn.dev/alice/",
		"http://zenn.dev/alice",
		"https://zenn.dev/alice/articles/x1",
		"https://zenn.dev/alice?tab=articles",
		"zenn.dev/alice",
	}
	for _, in := range inputs {
		got, err := Resolve(in)
		if err != nil {
			t.Errorf("Resolve(%q): unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Resolve(%q) = %+v, want %+v", in, got, want)
		}
	}
}

func TestResolveOrganization(t *testing.T) {
	want := Ref{Identifier: "myorg", Kind: Organization}
	for _, in := range []string{
		"https://zenn.dev/p/myorg",
		"https://zenn.dev/p/myorg/articles",
		"p/myorg",
		"zenn.dev/p/myorg",
	} {
		got, err := Resolve(in)
		if err != nil {
			t.Errorf("Resolve(%q): unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Resolve(%q) = %+v, want %+v", in, got, want)
		}
	}
}

func TestResolveInvalid(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"p/",
		"https://zenn.dev/p",
		"https://zenn.dev/p/",
		"https://zenn.dev/",
		"ali ce",
		"@alice/articles",
		"https://zenn.dev/@alice",
		"alice!",
		"https:///alice",
	}
	for _, in := range inputs {
		_, err := Resolve(in)
		if err == nil {
			t.Errorf("Resolve(%q): expected error", in)
			continue
		}
		if !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Resolve(%q): expected ErrInvalidFormat, got %v", in, err)
		}
	}
}

func TestBareMarkerIsPersonalName(t *testing.T) {
	got, err := Resolve("p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != Personal || got.Identifier != "p" {
		t.Errorf("got %+v", got)
	}
}

func TestFeedURL(t *testing.T) {
	personal := Ref{Identifier: "alice", Kind: Personal}
	if got := personal.FeedURL("https://zenn.dev/"); got != "https://zenn.dev/alice/feed" {
		t.Errorf("personal feed URL = %q", got)
	}

	org := Ref{Identifier: "myorg", Kind: Organization}
	if got := org.FeedURL("https://zenn.dev"); got != "https://zenn.dev/p/myorg/feed" {
		t.Errorf("organization feed URL = %q", got)
	}
	if org.String() != "p/myorg" {
		t.Errorf("String() = %q", org.String())
	}
}
