package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/runcache/internal/registry"
	"github.com/roach88/runcache/internal/workspace"
)

// Event operations recorded in registry_events.
const (
	OpAdd    = "add"
	OpRename = "rename"
	OpDelete = "delete"
)

// Add registers ws under ws.Name, replacing any existing row.
// The row and its "add" event are written in one transaction.
func (s *Store) Add(ctx context.Context, ws *workspace.Workspace) error {
	if ws == nil || ws.Name == "" {
		return fmt.Errorf("add workspace: workspace must have a name")
	}

	logsJSON, err := marshalLogs(ws.Logs)
	if err != nil {
		return fmt.Errorf("add workspace %q: %w", ws.Name, err)
	}
	spectraJSON, err := marshalSpectra(ws.Spectra)
	if err != nil {
		return fmt.Errorf("add workspace %q: %w", ws.Name, err)
	}

	var run sql.NullInt64
	if n, ok := ws.RunNumber(); ok {
		run = sql.NullInt64{Int64: int64(n), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add workspace %q: begin tx: %w", ws.Name, err)
	}
	defer tx.Rollback() // No-op if committed

	seq := s.clock.Next()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspaces (name, run_number, logs, spectra, calibration, seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			run_number = excluded.run_number,
			logs = excluded.logs,
			spectra = excluded.spectra,
			calibration = excluded.calibration,
			seq = excluded.seq
	`, ws.Name, run, logsJSON, spectraJSON, ws.Calibration, seq)
	if err != nil {
		return fmt.Errorf("add workspace %q: %w", ws.Name, err)
	}

	if err := s.writeEvent(ctx, tx, seq, OpAdd, ws.Name, ""); err != nil {
		return fmt.Errorf("add workspace %q: %w", ws.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add workspace %q: commit: %w", ws.Name, err)
	}
	return nil
}

// Rename moves the row under oldName to newName, dropping any row already
// stored under newName. Returns registry.ErrNotFound when oldName is absent.
func (s *Store) Rename(ctx context.Context, oldName, newName string) error {
	if newName == "" {
		return fmt.Errorf("rename %q: empty target name", oldName)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rename %q: begin tx: %w", oldName, err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workspaces WHERE name = ?`, oldName,
	).Scan(&count); err != nil {
		return fmt.Errorf("rename %q: %w", oldName, err)
	}
	if count == 0 {
		return fmt.Errorf("rename %q: %w", oldName, registry.ErrNotFound)
	}
	if oldName == newName {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM workspaces WHERE name = ?`, newName); err != nil {
		return fmt.Errorf("rename %q: drop target: %w", oldName, err)
	}

	seq := s.clock.Next()
	if _, err := tx.ExecContext(ctx,
		`UPDATE workspaces SET name = ?, seq = ? WHERE name = ?`, newName, seq, oldName,
	); err != nil {
		return fmt.Errorf("rename %q: %w", oldName, err)
	}

	if err := s.writeEvent(ctx, tx, seq, OpRename, oldName, newName); err != nil {
		return fmt.Errorf("rename %q: %w", oldName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rename %q: commit: %w", oldName, err)
	}
	return nil
}

// Delete removes the row under name. Deleting a missing name writes no event.
func (s *Store) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete %q: begin tx: %w", name, err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM workspaces WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %q: rows affected: %w", name, err)
	}
	if rows == 0 {
		return nil
	}

	if err := s.writeEvent(ctx, tx, s.clock.Next(), OpDelete, name, ""); err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete %q: commit: %w", name, err)
	}
	return nil
}

func (s *Store) writeEvent(ctx context.Context, tx *sql.Tx, seq int64, op, name, target string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO registry_events (seq, session, op, name, target)
		VALUES (?, ?, ?, ?, ?)
	`, seq, s.session, op, name, target)
	if err != nil {
		return fmt.Errorf("write %s event: %w", op, err)
	}
	return nil
}
