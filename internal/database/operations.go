package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operation statuses.
const (
	OperationPending   = "pending"
	OperationCompleted = "completed"
	OperationFailed    = "failed"
)

// Operation is one recorded backend mutation.
type Operation struct {
	ID            string
	OperationType string
	AppName       string
	Client        string
	Status        string
	ErrorMessage  sql.NullString
	CreatedAt     time.Time
	CompletedAt   sql.NullTime
}

// RecordOperation stores a pending operation and returns its id.
func (s *Store) RecordOperation(ctx context.Context, opType, app, client string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_operations (id, operation_type, app_name, client, status)
		VALUES (?, ?, ?, ?, ?)`,
		id, opType, app, client, OperationPending)
	if err != nil {
		return "", fmt.Errorf("failed to record operation: %w", err)
	}
	return id, nil
}

// CompleteOperation marks an operation as completed, or failed when opErr is set.
func (s *Store) CompleteOperation(ctx context.Context, id string, opErr error) error {
	status := OperationCompleted
	var message sql.NullString
	if opErr != nil {
		status = OperationFailed
		message = sql.NullString{String: opErr.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE app_operations
		SET status = ?, error_message = ?, completed_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		status, message, id)
	if err != nil {
		return fmt.Errorf("failed to complete operation %s: %w", id, err)
	}
	return nil
}

// RecentOperations lists the latest operations for an app, newest first.
func (s *Store) RecentOperations(ctx context.Context, app string, limit int) ([]Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, operation_type, app_name, client, status, error_message, created_at, completed_at
		FROM app_operations
		WHERE app_name = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		app, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var ops []Operation
	for rows.Next() {
		var op Operation
		if err := rows.Scan(&op.ID, &op.OperationType, &op.AppName, &op.Client, &op.Status,
			&op.ErrorMessage, &op.CreatedAt, &op.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}
	return ops, nil
}
