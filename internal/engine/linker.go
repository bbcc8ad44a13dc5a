package engine

import (
	"context"

	"go.uber.org/zap"
)

// softLinkRelationship is stored when the soft-link fallback fires. The
// narrator adds the surrounding parentheses when rendering.
const softLinkRelationship = "These events represent sequential steps in the same workflow."

// linkCause consults the judge for each candidate in order; the first
// affirmative verdict wins. Judge errors are absorbed as "no link" — an
// unreachable judge must never fail an ingest. When no candidate wins but
// the top candidate is extremely similar, a soft link is attached so that
// dry sequential logs still chain.
func (e *Engine) linkCause(ctx context.Context, candidates []candidate, effectText string) (*int64, string) {
	for _, c := range candidates {
		verdict, err := e.judge.Judge(ctx, c.event.EffectText, effectText)
		if err != nil {
			e.log.Debug("judge unavailable, treating as no link",
				zap.Int64("candidate_id", c.event.EventID),
				zap.Error(err))
			continue
		}
		if verdict.Linked {
			id := c.event.EventID
			return &id, verdict.Relationship
		}
	}

	if len(candidates) > 0 && candidates[0].similarity >= e.opts.SoftLinkThreshold {
		id := candidates[0].event.EventID
		e.log.Debug("soft link attached",
			zap.Int64("cause_id", id),
			zap.Float64("similarity", candidates[0].similarity))
		return &id, softLinkRelationship
	}

	return nil, ""
}
