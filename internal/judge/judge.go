// Package judge provides the causality-judgement capability: given a
// candidate cause and a new effect, decide whether they form a causal link
// and, if so, describe it in one short phrase.
package judge

import (
	"context"
	"fmt"
	"strings"
)

// Verdict is the judge's answer for one candidate pair.
type Verdict struct {
	Linked       bool
	Relationship string
}

// Judge decides whether a preceding event directly led to a subsequent one.
// Implementations must be safe for concurrent use. Any error is treated by
// the caller as "no link" — judge failures never fail an ingest.
type Judge interface {
	Judge(ctx context.Context, causeText, effectText string) (Verdict, error)
}

// prompt is the fixed judgement prompt. Both texts are lower-cased so the
// model keys on content rather than capitalization.
func prompt(causeText, effectText string) string {
	return fmt.Sprintf(
		"Based on the preceding event: %q, did it directly lead to the following event: %q?\n\n"+
			"If yes, briefly explain the causal relationship in one sentence. If no, respond with \"No.\"",
		strings.ToLower(causeText), strings.ToLower(effectText),
	)
}

// parseVerdict interprets a raw model response. Empty responses and anything
// starting with a negation token count as no link; everything else is taken
// as the relationship phrase.
func parseVerdict(raw string) Verdict {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Verdict{}
	}
	if strings.HasPrefix(strings.ToLower(text), "no") {
		return Verdict{}
	}
	return Verdict{Linked: true, Relationship: text}
}

// Disabled is a Judge that always errors. Used when no LLM credentials are
// configured; the linker absorbs the error, so events still insert as roots
// or soft links.
type Disabled struct{}

func (Disabled) Judge(context.Context, string, string) (Verdict, error) {
	return Verdict{}, fmt.Errorf("judge: not configured")
}
