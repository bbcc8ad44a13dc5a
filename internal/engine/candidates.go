package engine

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/causalmem/causalmem/internal/types"
)

// candidate is a prior event considered as a potential cause.
type candidate struct {
	event      *types.Event
	similarity float64
}

// findPotentialCauses returns up to MaxPotentialCauses prior events that
// might be the new event's direct cause, ordered by similarity descending.
// Only events inside the time-decay window are considered, and only those
// clearing the similarity threshold survive. Ties break by most-recent
// timestamp, then lowest event_id.
func (e *Engine) findPotentialCauses(ctx context.Context, emb []float32, effectText string) ([]candidate, error) {
	window := time.Duration(e.opts.TimeDecayHours) * time.Hour
	recent, err := e.store.RecentWithin(ctx, window, candidatePoolLimit)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(recent))
	for _, ev := range recent {
		// Re-ingesting identical text must not self-link.
		if ev.EffectText == effectText {
			continue
		}
		sim := Cosine(emb, ev.Embedding)
		e.log.Debug("candidate similarity",
			zap.Int64("event_id", ev.EventID),
			zap.Float64("similarity", sim),
			zap.Float64("threshold", e.opts.SimilarityThreshold))
		if sim >= e.opts.SimilarityThreshold {
			candidates = append(candidates, candidate{event: ev, similarity: sim})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.similarity != b.similarity {
			return a.similarity > b.similarity
		}
		if !a.event.Timestamp.Equal(b.event.Timestamp) {
			return a.event.Timestamp.After(b.event.Timestamp)
		}
		return a.event.EventID < b.event.EventID
	})

	if len(candidates) > e.opts.MaxPotentialCauses {
		candidates = candidates[:e.opts.MaxPotentialCauses]
	}
	return candidates, nil
}
