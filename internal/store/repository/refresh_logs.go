package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fortuna/pomona/internal/store"
)

// RefreshLogRepository persists job audit rows
type RefreshLogRepository struct {
	db *store.Database
}

// NewRefreshLogRepository constructs a RefreshLogRepository.
func NewRefreshLogRepository(db *store.Database) *RefreshLogRepository {
	return &RefreshLogRepository{db: db}
}

// Start inserts a running row and fills in its ID.
func (r *RefreshLogRepository) Start(ctx context.Context, entry *store.RefreshLog) error {
	query := `
		INSERT INTO refresh_logs (run_id, refresh_type, sport, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		entry.RunID, entry.JobKind, entry.Sport, store.RefreshRunning, entry.StartedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("insert refresh log: %w", err)
	}

	entry.Status = store.RefreshRunning
	return nil
}

// Complete moves a running row to its terminal status. Rows already completed are left alone.
func (r *RefreshLogRepository) Complete(ctx context.Context, id int64, result store.RefreshResult) error {
	query := `
		UPDATE refresh_logs
		SET status = $2,
			records_processed = $3,
			error_message = $4,
			completed_at = $5,
			duration_ms = $6
		WHERE id = $1 AND status = 'running'
	`

	var errText sql.NullString
	if result.Err != nil {
		errText = sql.NullString{String: result.Err.Error(), Valid: true}
	}

	_, err := r.db.DB().ExecContext(ctx, query,
		id, result.Status, result.RecordsProcessed, errText, result.CompletedAt, result.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("complete refresh log: %w", err)
	}
	return nil
}

// Recent returns the newest rows first.
func (r *RefreshLogRepository) Recent(ctx context.Context, limit int) ([]*store.RefreshLog, error) {
	query := `
		SELECT id, run_id, refresh_type, sport, status, records_processed, error_message,
			started_at, completed_at, duration_ms
		FROM refresh_logs
		ORDER BY started_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.db.DB().QueryContext(ctx, query, limitParam(limit))
	if err != nil {
		return nil, fmt.Errorf("query refresh logs: %w", err)
	}
	defer rows.Close()

	var logs []*store.RefreshLog
	for rows.Next() {
		entry := &store.RefreshLog{}
		err := rows.Scan(
			&entry.ID, &entry.RunID, &entry.JobKind, &entry.Sport, &entry.Status, &entry.RecordsProcessed,
			&entry.ErrorMessage, &entry.StartedAt, &entry.CompletedAt, &entry.DurationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("scan refresh log: %w", err)
		}
		logs = append(logs, entry)
	}

	return logs, rows.Err()
}

// DeleteBefore removes rows started strictly before cutoff.
func (r *RefreshLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.DB().ExecContext(ctx, `DELETE FROM refresh_logs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete refresh logs: %w", err)
	}
	return result.RowsAffected()
}
