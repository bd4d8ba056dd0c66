package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/treecep/internal/ir"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

// MatchFilter narrows ReadMatches. Zero fields match everything.
type MatchFilter struct {
	Pattern string
	Limit   int
}

// ReadRun returns a single run by ID.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, mode, strategy, patterns, engine_version, ir_version
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// LatestRun returns the most recently started run.
// UUIDv7 IDs break ties between runs started in the same instant.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, mode, strategy, patterns, engine_version, ir_version
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run: %w", ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// ReadRuns returns every run, oldest first.
// Returns an empty slice (not nil) if the store holds no runs.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, mode, strategy, patterns, engine_version, ir_version
		FROM runs
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// CountMatches returns the number of matches recorded for a run.
func (s *Store) CountMatches(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count matches: %w", err)
	}
	return n, nil
}

// ReadMatches returns the matches of a run with their bound events.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if no matches exist.
func (s *Store) ReadMatches(ctx context.Context, runID string, filter MatchFilter) ([]ir.Match, error) {
	query := `
		SELECT id, pattern, seq
		FROM matches
		WHERE run_id = ?`
	args := []any{runID}
	if filter.Pattern != "" {
		query += ` AND pattern = ?`
		args = append(args, filter.Pattern)
	}
	query += `
		ORDER BY seq ASC, id COLLATE BINARY ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}

	matches := []ir.Match{}
	for rows.Next() {
		var m ir.Match
		if err := rows.Scan(&m.ID, &m.Pattern, &m.Seq); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	rows.Close()

	// Events are loaded after the match cursor is closed; the pool holds a
	// single connection.
	for i := range matches {
		events, err := s.readMatchEvents(ctx, runID, matches[i].ID)
		if err != nil {
			return nil, err
		}
		matches[i].Events = events
	}
	return matches, nil
}

// readMatchEvents returns the bound events of one match in binding order.
func (s *Store) readMatchEvents(ctx context.Context, runID, matchID string) ([]ir.BoundEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type, seq, timestamp, attrs
		FROM match_events
		WHERE run_id = ? AND match_id = ?
		ORDER BY position ASC
	`, runID, matchID)
	if err != nil {
		return nil, fmt.Errorf("query match events: %w", err)
	}
	defer rows.Close()

	var events []ir.BoundEvent
	for rows.Next() {
		var (
			be        ir.BoundEvent
			e         ir.Event
			ts, attrs string
		)
		if err := rows.Scan(&be.Name, &e.Type, &e.Seq, &ts, &attrs); err != nil {
			return nil, fmt.Errorf("scan match event: %w", err)
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("match %s event %q: %w", matchID, be.Name, err)
		}
		if e.Attrs, err = unmarshalAttrs(attrs); err != nil {
			return nil, fmt.Errorf("match %s event %q: %w", matchID, be.Name, err)
		}
		be.Event = &e
		events = append(events, be)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match events: %w", err)
	}
	return events, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run               Run
		started, patterns string
		finished          sql.NullString
	)
	err := row.Scan(&run.ID, &started, &finished, &run.Mode, &run.Strategy, &patterns, &run.EngineVersion, &run.IRVersion)
	if err != nil {
		return Run{}, err
	}
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if finished.Valid {
		if run.FinishedAt, err = parseTime(finished.String); err != nil {
			return Run{}, err
		}
	}
	if run.Patterns, err = unmarshalPatterns(patterns); err != nil {
		return Run{}, err
	}
	return run, nil
}
