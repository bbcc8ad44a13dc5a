package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	verr := NewValidation("empty_text", "effect_text must not be empty")
	if got := KindOf(verr); got != KindValidation {
		t.Errorf("KindOf(validation) = %v, want %v", got, KindValidation)
	}

	// Kind survives wrapping.
	wrapped := fmt.Errorf("add_event: %w", NewStorage("insert failed", errors.New("disk full")))
	if got := KindOf(wrapped); got != KindStorage {
		t.Errorf("KindOf(wrapped storage) = %v, want %v", got, KindStorage)
	}

	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("KindOf(plain) = %v, want %v", got, KindInternal)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(NewValidation("text_too_long", "too long")); got != "text_too_long" {
		t.Errorf("CodeOf = %q, want text_too_long", got)
	}
	if got := CodeOf(errors.New("plain")); got != "internal_error" {
		t.Errorf("CodeOf(plain) = %q, want internal_error", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindServiceUnavailable, http.StatusServiceUnavailable},
		{KindStorage, http.StatusServiceUnavailable},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindNotFound, http.StatusNotFound},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.kind); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewUnavailable("embedder unreachable", cause)
	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
}
