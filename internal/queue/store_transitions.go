package queue

import (
	"context"
	"fmt"
	"time"
)

// Claim atomically transitions a queued job to downloading. It returns false
// when another runner already claimed the job or the job is no longer queued.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, progress_stage = 'downloading', progress_percent = 0,
             last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusDownloading,
		now,
		now,
		id,
		StatusQueued,
	)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RequestCancel flags a job for cooperative cancellation. Queued jobs become
// cancelled immediately; active jobs keep running until their runner observes
// the flag and tears down. Returns the job after the update, or nil when the
// job does not exist.
func (s *Store) RequestCancel(ctx context.Context, id string) (*Job, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	// Terminal transition for jobs that never started.
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, cancel_requested = 1, completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCancelled,
		now,
		now,
		id,
		StatusQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("cancel queued job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		_, err = s.db.ExecContext(
			ctx,
			`UPDATE jobs SET cancel_requested = 1, updated_at = ?
             WHERE id = ? AND status IN (?, ?)`,
			now,
			id,
			StatusDownloading,
			StatusProcessing,
		)
		if err != nil {
			return nil, fmt.Errorf("flag cancel: %w", err)
		}
	}

	return s.GetByID(ctx, id)
}

// CancelRequested reports whether cancellation has been requested for a job.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flag)
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flag != 0, nil
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// RetryFailed moves failed jobs back to queued for reprocessing. With no ids,
// every failed job is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs
            SET status = ?, progress_stage = NULL, progress_percent = 0,
                progress_message = NULL, error_code = NULL, error_message = NULL,
                cancel_requested = 0, completed_at = NULL, updated_at = ?
            WHERE status = ?`,
			StatusQueued,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusQueued, now)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE jobs
        SET status = ?, progress_stage = NULL, progress_percent = 0,
            progress_message = NULL, error_code = NULL, error_message = NULL,
            cancel_requested = 0, completed_at = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}
