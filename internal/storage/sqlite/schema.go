package sqlite

const schema = `
-- Events table: append-only rows with a self-referential causal edge.
-- Timestamps are stored as UTC unix nanoseconds so SQL comparisons and
-- ordering need no string parsing. Embeddings are little-endian float32
-- blobs; similarity is computed outside the store.
CREATE TABLE IF NOT EXISTS events (
    event_id INTEGER PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    effect_text TEXT NOT NULL CHECK(length(effect_text) > 0),
    embedding BLOB NOT NULL,
    cause_id INTEGER REFERENCES events(event_id),
    relationship TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_cause_id ON events(cause_id);
`
