package services_test

import (
	"errors"
	"strings"
	"testing"

	"yaad/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrUpstream, "tmdb", "search", "request failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"tmdb", "search", "request failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "books", "merge", "no sources", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker for nil input, got %v", err)
	}
}

func TestFatal(t *testing.T) {
	cfgErr := services.Wrap(services.ErrConfiguration, "tmdb", "init", "api key missing", nil)
	if !services.Fatal(cfgErr) {
		t.Fatal("expected configuration error to be fatal")
	}
	if services.Fatal(services.Wrap(services.ErrNotFound, "tmdb", "search", "no match", nil)) {
		t.Fatal("not-found must not abort a batch")
	}
	if services.Fatal(nil) {
		t.Fatal("nil error must not be fatal")
	}
}

func TestFailureReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrNotFound, "tmdb", "search", "no match", nil), "not found"},
		{services.Wrap(services.ErrDetailFetch, "tmdb", "details", "bad payload", nil), "detail fetch failed"},
		{services.Wrap(services.ErrUpstream, "tmdb", "search", "503", nil), "upstream unavailable"},
		{services.Wrap(services.ErrDuplicate, "library", "upsert", "exists", nil), "duplicate"},
		{services.Wrap(services.ErrValidation, "csv", "parse", "bad row", nil), "invalid input"},
		{errors.New("surprise"), "failed"},
	}
	for _, tc := range cases {
		if got := services.FailureReason(tc.err); got != tc.want {
			t.Errorf("FailureReason(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
