package database

import (
	"context"
	"fmt"
)

// AppEnv returns the saved configuration of an app for a client. The map is
// empty, never nil, when nothing was saved.
func (s *Store) AppEnv(ctx context.Context, app, client string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM app_env WHERE app_name = ? AND client = ?`, app, client)
	if err != nil {
		return nil, fmt.Errorf("failed to query env for %s: %w", app, err)
	}
	defer rows.Close()

	env := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan env row: %w", err)
		}
		env[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating env rows: %w", err)
	}
	return env, nil
}

// SaveAppEnv replaces the whole configuration of an app for a client.
func (s *Store) SaveAppEnv(ctx context.Context, app, client string, env map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM app_env WHERE app_name = ? AND client = ?`, app, client); err != nil {
		return fmt.Errorf("failed to clear env for %s: %w", app, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO app_env (app_name, client, key, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare env insert: %w", err)
	}
	defer stmt.Close()

	for key, value := range env {
		if _, err := stmt.ExecContext(ctx, app, client, key, value); err != nil {
			return fmt.Errorf("failed to save env %s for %s: %w", key, app, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit env for %s: %w", app, err)
	}
	return nil
}
