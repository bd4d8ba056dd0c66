package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/treecep/internal/ir"
)

// Run describes one evaluation recorded in the store.
type Run struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time // zero while the run is open
	Mode          string
	Strategy      string
	Patterns      []string
	EngineVersion string
	IRVersion     string
}

// Finished reports whether FinishRun was recorded for the run.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// NewRunID returns a time-sortable UUIDv7 run identifier.
// Panics if UUID generation fails (should never happen in practice).
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// BeginRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency; an empty ID is replaced
// with a fresh UUIDv7 and empty versions with the current ones.
func (s *Store) BeginRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.EngineVersion == "" {
		run.EngineVersion = ir.EngineVersion
	}
	if run.IRVersion == "" {
		run.IRVersion = ir.IRVersion
	}

	patterns, err := marshalPatterns(run.Patterns)
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, mode, strategy, patterns, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		formatTime(run.StartedAt),
		run.Mode,
		run.Strategy,
		patterns,
		run.EngineVersion,
		run.IRVersion,
	)
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}
	return run, nil
}

// FinishRun records the end time of a run. Finishing twice keeps the
// first end time.
func (s *Store) FinishRun(ctx context.Context, runID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = COALESCE(finished_at, ?) WHERE id = ?
	`, formatTime(at), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// WriteMatch inserts a match and its bound events in one transaction.
// Returns inserted=false when the run already holds a match with the same
// ID; the existing rows are left untouched.
//
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteMatch(ctx context.Context, runID string, m ir.Match) (inserted bool, err error) {
	if m.ID == "" {
		return false, errors.New("write match: match has no id")
	}
	if len(m.Events) == 0 {
		return false, fmt.Errorf("write match %s: match has no events", m.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write match: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO matches
		(run_id, id, pattern, seq, earliest, latest)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, id) DO NOTHING
	`,
		runID,
		m.ID,
		m.Pattern,
		m.Seq,
		formatTime(m.Earliest()),
		formatTime(m.Latest()),
	)
	if err != nil {
		return false, fmt.Errorf("write match: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write match: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	for i, be := range m.Events {
		attrs, err := marshalAttrs(be.Event.Attrs)
		if err != nil {
			return false, fmt.Errorf("write match %s: event %q: %w", m.ID, be.Name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO match_events
			(run_id, match_id, position, name, type, seq, timestamp, attrs)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runID,
			m.ID,
			i,
			be.Name,
			be.Event.Type,
			be.Event.Seq,
			formatTime(be.Event.Timestamp),
			attrs,
		)
		if err != nil {
			return false, fmt.Errorf("write match %s: insert event %q: %w", m.ID, be.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write match: commit: %w", err)
	}
	return true, nil
}
