package journal

// Schema is the DDL for the cycle journal. Timestamps are unix milliseconds;
// percent is NULL when the cycle failed before diffing any target.
const Schema = `
CREATE TABLE IF NOT EXISTS cycles (
    cycle_id    TEXT PRIMARY KEY,
    started_at  INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    outcome     TEXT NOT NULL,
    target_ref  TEXT NOT NULL DEFAULT '',
    x           INTEGER,
    y           INTEGER,
    color       INTEGER,
    percent     REAL,
    wait_ms     INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_cycles_outcome ON cycles(outcome);
`
