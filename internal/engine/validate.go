package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/causalmem/causalmem/internal/types"
)

const (
	// MaxEffectTextLen bounds event text at the entry boundary.
	MaxEffectTextLen = 10000
	// MaxQueryTextLen bounds query text at the entry boundary.
	MaxQueryTextLen = 1000
)

// ValidateEffectText rejects empty, whitespace-only, or over-length event
// text. The store never contains text that fails these checks.
func ValidateEffectText(text string) error {
	if text == "" {
		return types.NewValidation("empty_text", "effect_text must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return types.NewValidation("whitespace_text", "effect_text must not be whitespace only")
	}
	if utf8.RuneCountInString(text) > MaxEffectTextLen {
		return types.NewValidation("text_too_long", "effect_text must be at most 10000 characters")
	}
	return nil
}

// ValidateQueryText rejects empty, whitespace-only, or over-length queries.
func ValidateQueryText(text string) error {
	if text == "" {
		return types.NewValidation("empty_query", "query must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return types.NewValidation("whitespace_query", "query must not be whitespace only")
	}
	if utf8.RuneCountInString(text) > MaxQueryTextLen {
		return types.NewValidation("query_too_long", "query must be at most 1000 characters")
	}
	return nil
}
