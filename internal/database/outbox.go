package database

import (
	"context"
	"fmt"
	"time"

	"termin/internal/models"
)

const outboxColumns = `id, kind, booking_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error {
	query := `INSERT INTO outbox (kind, booking_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		task.Kind,
		task.BookingID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		task.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now

	return nil
}

func (db *DB) GetOutboxTask(ctx context.Context, id int64) (*models.OutboxTask, error) {
	tasks, err := db.queryOutbox(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrNotFound
	}
	return tasks[0], nil
}

// dueCondition matches pending and retry tasks that are due, plus processing
// tasks whose lease expired (the worker died mid-task).
const dueCondition = `status IN (?, ?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)`

func dueArgs(now time.Time) []interface{} {
	return []interface{}{models.TaskStatusPending, models.TaskStatusRetry, models.TaskStatusProcessing, now}
}

// GetPendingOutboxTasks returns due tasks, oldest first.
func (db *DB) GetPendingOutboxTasks(ctx context.Context, limit int) ([]*models.OutboxTask, error) {
	query := `SELECT ` + outboxColumns + `
              FROM outbox
              WHERE ` + dueCondition + `
              ORDER BY created_at ASC LIMIT ?`
	return db.queryOutbox(ctx, query, append(dueArgs(time.Now()), limit)...)
}

// ClaimOutboxTask marks a due task as processing until the lease runs out and
// returns its fresh row. It returns nil when the task is not due: already
// claimed, finished, or waiting for its next retry.
func (db *DB) ClaimOutboxTask(ctx context.Context, id int64, lease time.Duration) (*models.OutboxTask, error) {
	now := time.Now()
	args := append([]interface{}{models.TaskStatusProcessing, now.Add(lease), id}, dueArgs(now)...)
	res, err := db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, next_retry_at = ? WHERE id = ? AND `+dueCondition, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox task: %w", err)
	}
	if n != 1 {
		return nil, nil
	}
	return db.GetOutboxTask(ctx, id)
}

func (db *DB) GetFailedOutboxTasks(ctx context.Context) ([]*models.OutboxTask, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox WHERE status = ? ORDER BY created_at DESC`
	return db.queryOutbox(ctx, query, models.TaskStatusFailed)
}

func (db *DB) UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now()

	switch status {
	case models.TaskStatusRetry:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, &now, id}
	default:
		query = `UPDATE outbox SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, errMsg, nextRetryAt, id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update outbox task status: %w", err)
	}
	return nil
}

func (db *DB) queryOutbox(ctx context.Context, query string, args ...interface{}) ([]*models.OutboxTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var tasks []*models.OutboxTask
	for rows.Next() {
		t := &models.OutboxTask{}
		err := rows.Scan(
			&t.ID, &t.Kind, &t.BookingID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
