package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/causalmem/causalmem/internal/storage"
	"github.com/causalmem/causalmem/internal/types"
)

const eventColumns = "event_id, timestamp, effect_text, embedding, cause_id, relationship"

// Insert appends a new event. The next event_id is derived from
// MAX(event_id)+1 inside the same IMMEDIATE transaction as the row insert,
// so ids stay dense and collision-free across restarts and concurrent
// writers.
func (s *Store) Insert(ctx context.Context, effectText string, embedding []float32, causeID *int64, relationship string) (*types.Event, error) {
	// A dedicated connection keeps BEGIN/COMMIT and the statements between
	// them on the same underlying SQLite handle.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn, 5, 10*time.Millisecond); err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			// Use background context to ensure rollback completes even if ctx
			// is cancelled; otherwise the connection returns to the pool with
			// the transaction still open.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	var nextID int64
	if err := conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(event_id), 0) + 1 FROM events").Scan(&nextID); err != nil {
		return nil, fmt.Errorf("failed to allocate event_id: %w", err)
	}

	now := time.Now().UTC()
	var cause sql.NullInt64
	if causeID != nil {
		cause = sql.NullInt64{Int64: *causeID, Valid: true}
	}
	var rel sql.NullString
	if relationship != "" {
		rel = sql.NullString{String: relationship, Valid: true}
	}

	_, err = conn.ExecContext(ctx,
		"INSERT INTO events (event_id, timestamp, effect_text, embedding, cause_id, relationship) VALUES (?, ?, ?, ?, ?, ?)",
		nextID, now.UnixNano(), effectText, encodeEmbedding(embedding), cause, rel,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert event %d: %w", nextID, err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, fmt.Errorf("failed to commit event %d: %w", nextID, err)
	}
	committed = true

	ev := &types.Event{
		EventID:      nextID,
		Timestamp:    now,
		EffectText:   effectText,
		Embedding:    embedding,
		CauseID:      causeID,
		Relationship: relationship,
	}
	return ev, nil
}

// GetByID returns the event with the given id, or storage.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id int64) (*types.Event, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE event_id = ?", id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %d: %w", id, err)
	}
	return ev, nil
}

// RecentWithin returns events inside the trailing window, newest first.
func (s *Store) RecentWithin(ctx context.Context, window time.Duration, limit int) ([]*types.Event, error) {
	cutoff := time.Now().UTC().Add(-window).UnixNano()
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE timestamp > ? ORDER BY timestamp DESC, event_id DESC LIMIT ?",
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectEvents(rows)
}

// ScanAll streams every event to fn in event_id order.
func (s *Store) ScanAll(ctx context.Context, fn func(*types.Event) error) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events ORDER BY event_id ASC")
	if err != nil {
		return fmt.Errorf("failed to scan events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return fmt.Errorf("failed to scan event row: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ChildrenOf returns events whose cause_id equals id, oldest first.
func (s *Store) ChildrenOf(ctx context.Context, id int64) ([]*types.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE cause_id = ? ORDER BY timestamp ASC, event_id ASC", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query children of %d: %w", id, err)
	}
	defer func() { _ = rows.Close() }()
	return collectEvents(rows)
}

// Stats reports aggregate counts over the stored graph.
func (s *Store) Stats(ctx context.Context) (*types.Stats, error) {
	var total, linked int
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(cause_id) FROM events")
	if err := row.Scan(&total, &linked); err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	st := &types.Stats{
		TotalEvents:  total,
		LinkedEvents: linked,
		OrphanEvents: total - linked,
	}
	if total > 0 {
		st.ChainCoverage = float64(linked) / float64(total)
	}
	return st, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(r rowScanner) (*types.Event, error) {
	var (
		ev     types.Event
		tsNano int64
		blob   []byte
		cause  sql.NullInt64
		rel    sql.NullString
	)
	if err := r.Scan(&ev.EventID, &tsNano, &ev.EffectText, &blob, &cause, &rel); err != nil {
		return nil, err
	}
	ev.Timestamp = time.Unix(0, tsNano).UTC()
	emb, err := decodeEmbedding(blob)
	if err != nil {
		return nil, err
	}
	ev.Embedding = emb
	if cause.Valid {
		id := cause.Int64
		ev.CauseID = &id
	}
	if rel.Valid {
		ev.Relationship = rel.String
	}
	return &ev, nil
}

func collectEvents(rows *sql.Rows) ([]*types.Event, error) {
	var out []*types.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
