package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/causalmem/causalmem/internal/storage"
	"github.com/causalmem/causalmem/internal/types"
)

// findAnchor scans the whole store for the event most similar to the query
// embedding. Ties prefer the newer event. Returns nil when nothing clears
// the anchor threshold (which equals the similarity threshold).
func (e *Engine) findAnchor(ctx context.Context, queryEmb []float32) (*types.Event, error) {
	var (
		best    *types.Event
		bestSim = -1.0
	)
	err := e.store.ScanAll(ctx, func(ev *types.Event) error {
		sim := Cosine(queryEmb, ev.Embedding)
		if sim > bestSim || (sim == bestSim && best != nil && ev.Timestamp.After(best.Timestamp)) {
			bestSim = sim
			best = ev
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if best == nil || bestSim < e.opts.SimilarityThreshold {
		return nil, nil
	}
	return best, nil
}

// traverseBackward follows cause_id from the anchor to the root, returning
// the chain in chronological order (root first) plus the visited set. A
// missing cause row truncates the ancestry with a warning; a cycle (only
// possible through store corruption) halts with an error log. Both degrade
// to partial chains rather than failing the query.
func (e *Engine) traverseBackward(ctx context.Context, anchor *types.Event) ([]*types.Event, map[int64]bool, error) {
	ancestry := []*types.Event{anchor}
	visited := map[int64]bool{anchor.EventID: true}

	curr := anchor
	for curr.CauseID != nil {
		cause, err := e.store.GetByID(ctx, *curr.CauseID)
		if errors.Is(err, storage.ErrNotFound) {
			e.log.Warn("broken causal chain, truncating ancestry",
				zap.Int64("event_id", curr.EventID),
				zap.Int64("missing_cause_id", *curr.CauseID))
			break
		}
		if err != nil {
			return nil, nil, types.NewStorage("failed to resolve cause event", err)
		}
		if visited[cause.EventID] {
			e.log.Error("circular reference in causal chain, aborting ascent",
				zap.Int64("event_id", cause.EventID))
			break
		}
		ancestry = append(ancestry, cause)
		visited[cause.EventID] = true
		curr = cause
	}

	// Oldest first.
	for i, j := 0, len(ancestry)-1; i < j; i, j = i+1, j-1 {
		ancestry[i], ancestry[j] = ancestry[j], ancestry[i]
	}
	return ancestry, visited, nil
}

// traverseForward extends the chain past the anchor by up to
// MaxConsequenceDepth hops, picking the oldest child at each step so the
// result stays chronological. The shared visited set guards against
// corruption-induced cycles.
func (e *Engine) traverseForward(ctx context.Context, anchor *types.Event, visited map[int64]bool) ([]*types.Event, error) {
	var consequences []*types.Event
	curr := anchor
	for hop := 0; hop < e.opts.MaxConsequenceDepth; hop++ {
		children, err := e.store.ChildrenOf(ctx, curr.EventID)
		if err != nil {
			return nil, types.NewStorage("failed to load consequence events", err)
		}
		if len(children) == 0 {
			break
		}
		child := children[0]
		if visited[child.EventID] {
			e.log.Error("circular reference in consequence chain, stopping descent",
				zap.Int64("event_id", child.EventID))
			break
		}
		consequences = append(consequences, child)
		visited[child.EventID] = true
		curr = child
	}
	return consequences, nil
}
