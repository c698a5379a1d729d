package ipc

import (
	"spool/internal/api"
	"spool/internal/deps"
)

// Job mirrors the HTTP API job DTO for internal IPC callers.
type Job = api.Job

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon runtime information.
type StatusResponse struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	QueueStats   map[string]int `json:"queue_stats"`
	Dependencies []deps.Status  `json:"dependencies,omitempty"`
	LastError    string         `json:"last_error"`
	LockPath     string         `json:"lock_path"`
	QueueDBPath  string         `json:"queue_db_path"`
}

// QueueListRequest filters job listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains the matching jobs.
type QueueListResponse struct {
	Jobs []Job `json:"jobs"`
}

// QueueDescribeRequest fetches a single job by id.
type QueueDescribeRequest struct {
	ID string `json:"id"`
}

// QueueDescribeResponse returns job details.
type QueueDescribeResponse struct {
	Job Job `json:"job"`
}

// QueueCancelRequest requests cooperative cancellation of a job.
type QueueCancelRequest struct {
	ID string `json:"id"`
}

// QueueCancelResponse returns the job after the cancel request.
type QueueCancelResponse struct {
	Job Job `json:"job"`
}

// QueueRetryRequest retries failed jobs. With no ids, every failed job is
// retried.
type QueueRetryRequest struct {
	IDs []string `json:"ids"`
}

// QueueRetryResponse reports how many jobs were requeued.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueClearRequest removes terminal jobs, or every job when All is set.
type QueueClearRequest struct {
	All bool `json:"all"`
}

// QueueClearResponse reports how many jobs were removed.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the notification outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
