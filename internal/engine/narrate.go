package engine

import (
	"fmt"
	"strings"

	"github.com/causalmem/causalmem/internal/types"
)

// Narrative renders a chronological chain as connected prose:
//
//	Initially, {root}. This led to {e1} ({rel}), which in turn caused {e2} ({rel}).
//
// The two connectives alternate so long chains don't read as a drone. The
// parenthetical is omitted for events with no stored relationship. The chain
// must already be ordered root first.
func Narrative(chain []*types.Event) string {
	if len(chain) == 0 {
		return "No causal chain found."
	}

	opening := fmt.Sprintf("Initially, %s.", chain[0].EffectText)
	if len(chain) == 1 {
		return opening
	}

	clauses := make([]string, 0, len(chain)-1)
	for i, ev := range chain[1:] {
		rel := ""
		if ev.Relationship != "" {
			rel = fmt.Sprintf(" (%s)", ev.Relationship)
		}
		connective := "which in turn caused"
		if i%2 == 0 {
			connective = "This led to"
		}
		clauses = append(clauses, fmt.Sprintf("%s %s%s", connective, ev.EffectText, rel))
	}
	return opening + " " + strings.Join(clauses, ", ") + "."
}
