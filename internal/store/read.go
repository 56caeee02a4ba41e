package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/runcache/internal/registry"
	"github.com/roach88/runcache/internal/workspace"
)

// Event is one row of the registry event log.
type Event struct {
	Seq     int64  `json:"seq"`
	Session string `json:"session"`
	Op      string `json:"op"`
	Name    string `json:"name"`
	Target  string `json:"target,omitempty"`
}

// Exists reports whether a workspace row exists under name.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workspaces WHERE name = ?`, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("exists %q: %w", name, err)
	}
	return count > 0, nil
}

// Get decodes the workspace stored under name.
// Returns registry.ErrNotFound if no row exists.
//
// Each call returns a fresh copy; callers persist changes with Add.
func (s *Store) Get(ctx context.Context, name string) (*workspace.Workspace, error) {
	var logsJSON, spectraJSON, calibration string
	err := s.db.QueryRowContext(ctx, `
		SELECT logs, spectra, calibration
		FROM workspaces
		WHERE name = ?
	`, name).Scan(&logsJSON, &spectraJSON, &calibration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %q: %w", name, registry.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", name, err)
	}

	logs, err := unmarshalLogs(logsJSON)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", name, err)
	}
	spectra, err := unmarshalSpectra(spectraJSON)
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", name, err)
	}

	return &workspace.Workspace{
		Name:        name,
		Logs:        logs,
		Spectra:     spectra,
		Calibration: calibration,
	}, nil
}

// Names returns all workspace names in binary order.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM workspaces
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate names: %w", err)
	}
	return names, nil
}

// NamesForRun returns the names of workspaces recording the given run number.
func (s *Store) NamesForRun(ctx context.Context, run int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM workspaces
		WHERE run_number = ?
		ORDER BY name COLLATE BINARY ASC
	`, run)
	if err != nil {
		return nil, fmt.Errorf("query names for run %d: %w", run, err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate names: %w", err)
	}
	return names, nil
}

// ReadEvents returns the registry event log ordered by seq.
// Returns an empty slice (not nil) when no events exist.
func (s *Store) ReadEvents(ctx context.Context) ([]Event, error) {
	return s.queryEvents(ctx, `
		SELECT seq, session, op, name, target
		FROM registry_events
		ORDER BY seq ASC
	`)
}

// ReadSessionEvents returns the events written under one session token,
// ordered by seq.
func (s *Store) ReadSessionEvents(ctx context.Context, session string) ([]Event, error) {
	return s.queryEvents(ctx, `
		SELECT seq, session, op, name, target
		FROM registry_events
		WHERE session = ?
		ORDER BY seq ASC
	`, session)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Seq, &ev.Session, &ev.Op, &ev.Name, &ev.Target); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
