// Package types defines the core data structures for the causal memory service.
package types

import "time"

// Event is a single recorded observation. Events are append-only: once
// inserted they are never mutated or deleted. The optional CauseID links an
// event back to its single direct cause, forming chains that grow as events
// are appended.
type Event struct {
	EventID      int64     `json:"event_id"`
	Timestamp    time.Time `json:"timestamp"`
	EffectText   string    `json:"effect_text"`
	Embedding    []float32 `json:"embedding,omitempty"`
	CauseID      *int64    `json:"cause_id,omitempty"`
	Relationship string    `json:"causal_relationship,omitempty"` // empty = no relationship recorded
}

// IsRoot reports whether the event has no recorded cause.
func (e *Event) IsRoot() bool {
	return e.CauseID == nil
}

// Stats summarizes the stored event graph.
type Stats struct {
	TotalEvents   int     `json:"total_events"`
	LinkedEvents  int     `json:"linked_events"`
	OrphanEvents  int     `json:"orphan_events"`
	ChainCoverage float64 `json:"chain_coverage"` // linked/total, 0 for an empty store
}

// BatchResult reports the per-item outcomes of a batch ingest. The batch
// itself never fails for individual items; errors are collected here.
type BatchResult struct {
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Errors     []BatchError `json:"errors,omitempty"`
}

// BatchError records a single failed item within a batch.
type BatchError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}
