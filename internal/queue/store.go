package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"spool/internal/config"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database and verifies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.WorkDir, "jobs.db"))
}

// OpenPath opens a job database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewJob inserts a queued job for the given request and returns it with a
// freshly assigned identifier.
func (s *Store) NewJob(ctx context.Context, req Request) (*Job, error) {
	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            id, url, kind, quality, audio_format, start_sec, end_sec,
            subscriber_id, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		req.URL,
		string(req.Kind),
		nullableString(req.Quality),
		nullableString(req.AudioFormat),
		req.StartSec,
		req.EndSec,
		nullableString(req.SubscriberID),
		StatusQueued,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. Returns nil when no job exists.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET url = ?, kind = ?, quality = ?, audio_format = ?, start_sec = ?, end_sec = ?,
             subscriber_id = ?, status = ?, title = ?, duration_sec = ?,
             work_path = ?, output_path = ?, filename = ?, error_code = ?, error_message = ?,
             progress_stage = ?, progress_percent = ?, progress_message = ?,
             downloaded_bytes = ?, total_bytes = ?, speed_bps = ?, eta_seconds = ?,
             cancel_requested = ?, updated_at = ?, completed_at = ?, last_heartbeat = ?
         WHERE id = ?`,
		job.URL,
		string(job.Kind),
		nullableString(job.Quality),
		nullableString(job.AudioFormat),
		job.StartSec,
		job.EndSec,
		nullableString(job.SubscriberID),
		job.Status,
		nullableString(job.Title),
		job.DurationSec,
		nullableString(job.WorkPath),
		nullableString(job.OutputPath),
		nullableString(job.Filename),
		nullableString(job.ErrorCode),
		nullableString(job.ErrorMessage),
		nullableString(job.ProgressStage),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		job.DownloadedBytes,
		job.TotalBytes,
		job.SpeedBPS,
		job.ETASeconds,
		boolToInt(job.CancelRequested),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.CompletedAt),
		nullableTime(job.LastHeartbeat),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// List returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
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

// NextQueued returns the oldest queued job, or nil when none remain.
func (s *Store) NextQueued(ctx context.Context) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at LIMIT 1`,
		StatusQueued,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates job state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		case StatusCancelled:
			health.Cancelled += count
		default:
			if _, ok := activeStatuses[status]; ok {
				health.Active += count
			}
		}
	}
	return health, nil
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Clear removes all jobs.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearTerminal removes completed, failed, and cancelled jobs.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM jobs WHERE status IN (?, ?, ?)`,
		StatusCompleted, StatusFailed, StatusCancelled,
	)
	if err != nil {
		return 0, fmt.Errorf("clear terminal jobs: %w", err)
	}
	return res.RowsAffected()
}

const jobColumns = "id, url, kind, quality, audio_format, start_sec, end_sec, subscriber_id, status, title, duration_sec, work_path, output_path, filename, error_code, error_message, progress_stage, progress_percent, progress_message, downloaded_bytes, total_bytes, speed_bps, eta_seconds, cancel_requested, created_at, updated_at, completed_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              string
		url             string
		kind            string
		quality         sql.NullString
		audioFormat     sql.NullString
		startSec        float64
		endSec          float64
		subscriberID    sql.NullString
		statusStr       string
		title           sql.NullString
		durationSec     float64
		workPath        sql.NullString
		outputPath      sql.NullString
		filename        sql.NullString
		errorCode       sql.NullString
		errorMessage    sql.NullString
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		downloadedBytes int64
		totalBytes      int64
		speedBPS        float64
		etaSeconds      int64
		cancelRequested sql.NullInt64
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		completedRaw    sql.NullString
		heartbeatRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&url,
		&kind,
		&quality,
		&audioFormat,
		&startSec,
		&endSec,
		&subscriberID,
		&statusStr,
		&title,
		&durationSec,
		&workPath,
		&outputPath,
		&filename,
		&errorCode,
		&errorMessage,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&downloadedBytes,
		&totalBytes,
		&speedBPS,
		&etaSeconds,
		&cancelRequested,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		URL:             url,
		Kind:            MediaKind(kind),
		Quality:         quality.String,
		AudioFormat:     audioFormat.String,
		StartSec:        startSec,
		EndSec:          endSec,
		SubscriberID:    subscriberID.String,
		Status:          Status(statusStr),
		Title:           title.String,
		DurationSec:     durationSec,
		WorkPath:        workPath.String,
		OutputPath:      outputPath.String,
		Filename:        filename.String,
		ErrorCode:       errorCode.String,
		ErrorMessage:    errorMessage.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		DownloadedBytes: downloadedBytes,
		TotalBytes:      totalBytes,
		SpeedBPS:        speedBPS,
		ETASeconds:      etaSeconds,
	}
	if cancelRequested.Valid {
		job.CancelRequested = cancelRequested.Int64 != 0
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
