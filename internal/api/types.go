package api

import "spool/internal/progress"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a download job in a transport-friendly format. Failed jobs
// surface as status "error" on the wire; the internal vocabulary stays
// "failed".
type Job struct {
	ID           string      `json:"id"`
	URL          string      `json:"url"`
	Kind         string      `json:"format_type"`
	Quality      string      `json:"quality,omitempty"`
	AudioFormat  string      `json:"format,omitempty"`
	StartSec     float64     `json:"start_sec,omitempty"`
	EndSec       float64     `json:"end_sec,omitempty"`
	SubscriberID string      `json:"subscriber_id,omitempty"`
	Status       string      `json:"status"`
	Title        string      `json:"title,omitempty"`
	DurationSec  float64     `json:"duration_seconds,omitempty"`
	Progress     JobProgress `json:"progress"`
	Filename     string      `json:"filename,omitempty"`
	ErrorCode    string      `json:"error_code,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	CreatedAt    string      `json:"created_at,omitempty"`
	UpdatedAt    string      `json:"updated_at,omitempty"`
	CompletedAt  string      `json:"completed_at,omitempty"`
}

// JobProgress captures live progress for a job.
type JobProgress struct {
	Stage           string  `json:"stage"`
	Percent         float64 `json:"percent"`
	Message         string  `json:"message,omitempty"`
	DownloadedBytes int64   `json:"downloaded_bytes,omitempty"`
	TotalBytes      int64   `json:"total_bytes,omitempty"`
	SpeedBPS        float64 `json:"speed_bps,omitempty"`
	ETASeconds      int64   `json:"eta_seconds,omitempty"`
}

// DownloadRequest is the POST /api/download body.
type DownloadRequest struct {
	URL          string `json:"url"`
	Quality      string `json:"quality"`
	Format       string `json:"format"`
	FormatType   string `json:"format_type"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	SubscriberID string `json:"subscriber_id"`
}

// DownloadAccepted is the POST /api/download response.
type DownloadAccepted struct {
	DownloadID string `json:"download_id"`
}

// VideoInfoRequest is the POST /api/video-info body.
type VideoInfoRequest struct {
	URL string `json:"url"`
}

// VideoInfoResponse mirrors the probe result plus derived display fields.
type VideoInfoResponse struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Uploader        string         `json:"uploader"`
	Duration        string         `json:"duration"`
	DurationSeconds float64        `json:"duration_seconds"`
	Thumbnail       string         `json:"thumbnail"`
	VideoFormats    []FormatOption `json:"video_formats"`
	AudioFormats    []FormatOption `json:"audio_formats"`
}

// FormatOption is one selectable format in a video-info response.
type FormatOption struct {
	ID         string `json:"id"`
	Ext        string `json:"ext"`
	Resolution string `json:"resolution,omitempty"`
	Note       string `json:"note,omitempty"`
	Size       string `json:"size"`
}

// EventsResponse wraps a batch of push-channel events with the resume cursor.
type EventsResponse struct {
	Events []progress.Event `json:"events"`
	Next   uint64           `json:"next"`
}

// HealthResponse reports daemon liveness.
type HealthResponse struct {
	Status     string `json:"status"`
	ActiveJobs int    `json:"active_jobs"`
	QueuedJobs int    `json:"queued_jobs"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// DaemonStatus aggregates daemon runtime information for CLI consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	QueueDBPath  string         `json:"queueDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	QueueStats   map[string]int `json:"queueStats"`
	LastError    string         `json:"lastError,omitempty"`
}

// ErrorResponse is the error envelope for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
