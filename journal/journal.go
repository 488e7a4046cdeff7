// CLAUDE:SUMMARY SQLite cycle journal: one row per traversal cycle, recent-history and per-outcome counts for the status surface.
// Package journal persists traversal cycle outcomes in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/placebot/dbopen"
	"github.com/hazyhaar/placebot/idgen"
	"github.com/hazyhaar/placebot/traversal"
)

const (
	defaultLimit = 20
	maxLimit     = 500
)

// Entry is one journaled cycle.
type Entry struct {
	CycleID    string    `json:"cycle_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
	TargetRef  string    `json:"target_ref,omitempty"`

	// X, Y and Color are nil when no pixel was attempted.
	X     *int `json:"x,omitempty"`
	Y     *int `json:"y,omitempty"`
	Color *int `json:"color,omitempty"`

	// Percent is nil when the cycle failed before any diff.
	Percent *float64 `json:"percent,omitempty"`
	WaitMs  int64    `json:"wait_ms"`
	Error   string   `json:"error,omitempty"`
}

// Journal records cycles. It implements traversal.Recorder.
type Journal struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithIDGenerator overrides the "cyc_" UUIDv7 generator.
func WithIDGenerator(gen idgen.Generator) Option { return func(j *Journal) { j.newID = gen } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(j *Journal) { j.logger = l } }

// New wraps db, which must already carry Schema.
func New(db *sql.DB, opts ...Option) *Journal {
	j := &Journal{
		db:     db,
		newID:  idgen.Prefixed("cyc_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Open opens (or creates) the journal database at path. An empty path keeps
// the journal in memory for the lifetime of the process.
func Open(path string, opts ...Option) (*Journal, error) {
	dbOpts := []dbopen.Option{dbopen.WithSchema(Schema)}
	if path != "" {
		dbOpts = append(dbOpts, dbopen.WithMkdirAll())
	}
	db, err := dbopen.Open(path, dbOpts...)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return New(db, opts...), nil
}

// Close closes the underlying database.
func (j *Journal) Close() error { return j.db.Close() }

// RecordCycle implements traversal.Recorder.
func (j *Journal) RecordCycle(ctx context.Context, o *traversal.Outcome) error {
	_, err := j.Record(ctx, o)
	return err
}

// Record inserts o and returns its cycle ID.
func (j *Journal) Record(ctx context.Context, o *traversal.Outcome) (string, error) {
	id := j.newID()
	var x, y, c any
	if o.Picked {
		x, y, c = o.Pick.X, o.Pick.Y, int(o.Pick.Color)
	}
	var percent any
	if p, ok := o.Percent(); ok {
		percent = p
	}
	var errMsg string
	if o.Err != nil {
		errMsg = o.Err.Error()
	}
	_, err := dbopen.Exec(ctx, j.db,
		`INSERT INTO cycles (cycle_id, started_at, finished_at, outcome, target_ref,
			x, y, color, percent, wait_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, o.Started.UnixMilli(), o.Finished.UnixMilli(), o.Kind.String(), o.Ref,
		x, y, c, percent, o.Wait.Milliseconds(), errMsg)
	if err != nil {
		return "", fmt.Errorf("journal: insert cycle: %w", err)
	}
	j.logger.Debug("journal: cycle recorded", "cycle_id", id, "outcome", o.Kind)
	return id, nil
}

// Recent returns up to limit cycles, newest first. limit <= 0 means 20;
// it is capped at 500.
func (j *Journal) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT cycle_id, started_at, finished_at, outcome, target_ref,
			x, y, color, percent, wait_ms, error
		FROM cycles ORDER BY started_at DESC, cycle_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query cycles: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished int64
			x, y, color       sql.NullInt64
			percent           sql.NullFloat64
		)
		if err := rows.Scan(&e.CycleID, &started, &finished, &e.Outcome, &e.TargetRef,
			&x, &y, &color, &percent, &e.WaitMs, &e.Error); err != nil {
			return nil, fmt.Errorf("journal: scan cycle: %w", err)
		}
		e.StartedAt = time.UnixMilli(started).UTC()
		e.FinishedAt = time.UnixMilli(finished).UTC()
		e.X, e.Y, e.Color = nullInt(x), nullInt(y), nullInt(color)
		if percent.Valid {
			e.Percent = &percent.Float64
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Counts returns the number of journaled cycles per outcome kind.
func (j *Journal) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM cycles GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("journal: count cycles: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("journal: scan count: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
