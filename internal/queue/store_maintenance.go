package queue

import (
	"context"
	"fmt"
	"time"
)

// ResetStuckActive fails jobs left in an active state by a previous daemon
// run. Subprocess state does not survive a restart, so the jobs cannot be
// resumed; callers pass the code and message recorded on each job.
func (s *Store) ResetStuckActive(ctx context.Context, code, message string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, error_code = ?, error_message = ?,
             progress_message = ?, last_heartbeat = NULL, completed_at = ?, updated_at = ?
         WHERE status IN (?, ?)`,
		StatusFailed,
		code,
		message,
		message,
		now,
		now,
		StatusDownloading,
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// ReclaimStaleActive fails active jobs whose heartbeats expired before the
// cutoff. The runner goroutine is assumed dead; the job cannot complete.
func (s *Store) ReclaimStaleActive(ctx context.Context, cutoff time.Time, code, message string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
        SET status = ?, error_code = ?, error_message = ?,
            progress_message = ?, last_heartbeat = NULL, completed_at = ?, updated_at = ?
        WHERE status IN (?, ?) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusFailed,
		code,
		message,
		message,
		now,
		now,
		StatusDownloading,
		StatusProcessing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// ExpiredTerminal returns terminal jobs whose completion time predates the
// cutoff. The janitor uses this to remove aged-out jobs and their artifacts.
func (s *Store) ExpiredTerminal(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?
         ORDER BY completed_at`,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query expired jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
