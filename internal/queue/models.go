package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a download job.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// DaemonStopReason is the error message set when jobs are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusQueued,
	StatusDownloading,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var activeStatuses = map[Status]struct{}{
	StatusDownloading: {},
	StatusProcessing:  {},
}

// MediaKind selects the deliverable produced by a job.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// Request captures the caller-supplied parameters of a download job.
type Request struct {
	URL          string
	Kind         MediaKind
	Quality      string
	AudioFormat  string
	StartSec     float64
	EndSec       float64
	SubscriberID string
}

// Job represents a download job persisted in SQLite.
type Job struct {
	ID              string
	URL             string
	Kind            MediaKind
	Quality         string
	AudioFormat     string
	StartSec        float64
	EndSec          float64
	SubscriberID    string
	Status          Status
	Title           string
	DurationSec     float64
	WorkPath        string
	OutputPath      string
	Filename        string
	ErrorCode       string
	ErrorMessage    string
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	DownloadedBytes int64
	TotalBytes      int64
	SpeedBPS        float64
	ETASeconds      int64
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	LastHeartbeat   *time.Time
}

// HealthSummary describes aggregated job counts per key lifecycle states.
type HealthSummary struct {
	Total     int
	Queued    int
	Active    int
	Completed int
	Failed    int
	Cancelled int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status represents a finished job.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive returns true when the job is being worked on by a runner.
func (j Job) IsActive() bool {
	_, ok := activeStatuses[j.Status]
	return ok
}

// IsActiveStatus reports whether a status reflects an in-flight operation.
func IsActiveStatus(status Status) bool {
	_, ok := activeStatuses[status]
	return ok
}

// SetProgress updates the three progress fields together. Use this instead of
// setting ProgressStage, ProgressPercent, and ProgressMessage individually.
func (j *Job) SetProgress(stage, message string, percent float64) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// SetFailed marks the job as failed with the given code and message and clears
// the heartbeat.
func (j *Job) SetFailed(code, message string) {
	j.Status = StatusFailed
	j.ErrorCode = code
	j.ErrorMessage = message
	j.ProgressMessage = message
	j.LastHeartbeat = nil
}

// ParseMediaKind normalizes a caller-supplied media kind. Empty input defaults
// to video.
func ParseMediaKind(value string) (MediaKind, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "video":
		return MediaVideo, true
	case "audio":
		return MediaAudio, true
	default:
		return "", false
	}
}
