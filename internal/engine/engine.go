// Package engine implements the causal memory core: ingest with automatic
// causal linking, and query with chain traversal and narrative assembly.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/causalmem/causalmem/internal/embed"
	"github.com/causalmem/causalmem/internal/judge"
	"github.com/causalmem/causalmem/internal/storage"
	"github.com/causalmem/causalmem/internal/telemetry"
	"github.com/causalmem/causalmem/internal/types"
)

// NoContextFound is returned by Query when no stored event clears the anchor
// threshold (including the empty-store case).
const NoContextFound = "No relevant context found in memory."

// candidatePoolLimit caps how many recent rows the candidate scan reads.
const candidatePoolLimit = 50

// batchProgressEvery controls how often batch ingest logs progress.
const batchProgressEvery = 100

// Options tunes retrieval and linking. Zero values are invalid; build from
// config.Load or use sensible literals in tests.
type Options struct {
	SimilarityThreshold float64
	SoftLinkThreshold   float64
	MaxPotentialCauses  int
	TimeDecayHours      int
	MaxConsequenceDepth int
}

// Engine is the memory core facade. It owns the store handle and is safe for
// concurrent use: the store serializes writes internally and the embedding
// cache carries its own lock, so no engine-wide mutex is needed.
type Engine struct {
	store    storage.Store
	embedder embed.Embedder
	judge    judge.Judge
	opts     Options
	log      *zap.Logger

	// embedDim pins the engine-wide embedding dimension after the first
	// successful embed. 0 = not yet observed.
	embedDim atomic.Int32

	closeOnce sync.Once
	closeErr  error

	metrics engineMetrics
}

type engineMetrics struct {
	eventsAdded metric.Int64Counter
	queries     metric.Int64Counter
}

// New wires the facade. The caller retains no direct access to the store;
// Close releases it.
func New(store storage.Store, embedder embed.Embedder, j judge.Judge, opts Options, log *zap.Logger) *Engine {
	e := &Engine{
		store:    store,
		embedder: embedder,
		judge:    j,
		opts:     opts,
		log:      log,
	}
	m := telemetry.Meter("github.com/causalmem/causalmem/engine")
	e.metrics.eventsAdded, _ = m.Int64Counter("causalmem.events.added",
		metric.WithDescription("Events ingested"))
	e.metrics.queries, _ = m.Int64Counter("causalmem.queries",
		metric.WithDescription("Narrative queries served"))
	return e
}

// AddEvent validates, embeds, causally links, and persists a new event,
// returning its assigned id. Judge failures are absorbed (the event still
// inserts as a root or soft link); embedder failures surface as
// ServiceUnavailable and store failures as StorageError.
func (e *Engine) AddEvent(ctx context.Context, effectText string) (int64, error) {
	if err := ValidateEffectText(effectText); err != nil {
		return 0, err
	}

	emb, err := e.embedder.Embed(ctx, effectText)
	if err != nil {
		return 0, err
	}
	if err := e.checkDimension(emb); err != nil {
		return 0, err
	}

	candidates, err := e.findPotentialCauses(ctx, emb, effectText)
	if err != nil {
		return 0, types.NewStorage("failed to load candidate events", err)
	}

	causeID, relationship := e.linkCause(ctx, candidates, effectText)

	ev, err := e.store.Insert(ctx, effectText, emb, causeID, relationship)
	if err != nil {
		return 0, types.NewStorage("failed to insert event", err)
	}

	if e.metrics.eventsAdded != nil {
		e.metrics.eventsAdded.Add(ctx, 1)
	}
	e.log.Info("event added",
		zap.Int64("event_id", ev.EventID),
		zap.Bool("linked", causeID != nil))
	return ev.EventID, nil
}

// AddEventsBatch ingests texts one at a time, collecting per-item outcomes.
// Individual failures never abort the batch.
func (e *Engine) AddEventsBatch(ctx context.Context, texts []string) *types.BatchResult {
	result := &types.BatchResult{Total: len(texts)}
	for i, text := range texts {
		if _, err := e.AddEvent(ctx, text); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, types.BatchError{Index: i, Message: err.Error()})
		} else {
			result.Successful++
		}
		if done := i + 1; done%batchProgressEvery == 0 {
			e.log.Info("batch ingest progress",
				zap.Int("processed", done),
				zap.Int("total", result.Total),
				zap.Int("failed", result.Failed))
		}
	}
	return result
}

// Query finds the event most similar to the query text, walks its causal
// chain backward to the root and forward through consequences, and returns
// the assembled narrative. Traversal anomalies (broken links, cycles)
// degrade to partial narratives and never fail the query.
func (e *Engine) Query(ctx context.Context, queryText string) (string, error) {
	if err := ValidateQueryText(queryText); err != nil {
		return "", err
	}

	emb, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return "", err
	}

	anchor, err := e.findAnchor(ctx, emb)
	if err != nil {
		return "", types.NewStorage("failed to scan for anchor event", err)
	}
	if anchor == nil {
		return NoContextFound, nil
	}

	chain, visited, err := e.traverseBackward(ctx, anchor)
	if err != nil {
		return "", err
	}
	forward, err := e.traverseForward(ctx, anchor, visited)
	if err != nil {
		return "", err
	}
	chain = append(chain, forward...)

	if e.metrics.queries != nil {
		e.metrics.queries.Add(ctx, 1)
	}
	e.log.Info("query served",
		zap.Int64("anchor_id", anchor.EventID),
		zap.Int("chain_length", len(chain)))
	return Narrative(chain), nil
}

// GetContext is an exact delegate of Query, kept for compatibility.
func (e *Engine) GetContext(ctx context.Context, queryText string) (string, error) {
	return e.Query(ctx, queryText)
}

// Stats reports aggregate counts over the stored graph.
func (e *Engine) Stats(ctx context.Context) (*types.Stats, error) {
	st, err := e.store.Stats(ctx)
	if err != nil {
		return nil, types.NewStorage("failed to compute stats", err)
	}
	return st, nil
}

// Ping verifies the underlying store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// Close flushes and closes the store. Idempotent.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.store.Close()
	})
	return e.closeErr
}

// checkDimension pins the embedding dimension on first use and rejects
// mismatches afterwards; mixing dimensions would silently break every
// similarity comparison.
func (e *Engine) checkDimension(emb []float32) error {
	dim := int32(len(emb))
	if e.embedDim.CompareAndSwap(0, dim) {
		return nil
	}
	if want := e.embedDim.Load(); want != dim {
		return types.NewInternal(fmt.Errorf("embedding dimension changed: got %d, want %d", dim, want))
	}
	return nil
}
