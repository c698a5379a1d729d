package api

import (
	"spool/internal/queue"
	"spool/internal/services/ytdlp"
	"spool/internal/textutil"
)

// ExternalStatus maps an internal job status to its wire form. The store
// records "failed"; API clients see "error", matching the status vocabulary
// the endpoints have always exposed.
func ExternalStatus(status queue.Status) string {
	if status == queue.StatusFailed {
		return "error"
	}
	return string(status)
}

// FromJob converts a job record to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}

	dto := Job{
		ID:           job.ID,
		URL:          job.URL,
		Kind:         string(job.Kind),
		Quality:      job.Quality,
		AudioFormat:  job.AudioFormat,
		StartSec:     job.StartSec,
		EndSec:       job.EndSec,
		SubscriberID: job.SubscriberID,
		Status:       ExternalStatus(job.Status),
		Title:        job.Title,
		DurationSec:  job.DurationSec,
		Progress: JobProgress{
			Stage:           job.ProgressStage,
			Percent:         job.ProgressPercent,
			Message:         job.ProgressMessage,
			DownloadedBytes: job.DownloadedBytes,
			TotalBytes:      job.TotalBytes,
			SpeedBPS:        job.SpeedBPS,
			ETASeconds:      job.ETASeconds,
		},
		Filename:     job.Filename,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	if job.CompletedAt != nil {
		dto.CompletedAt = job.CompletedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromJobs converts a slice of job records into API DTOs.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromVideoInfo converts probe metadata into the video-info payload. Video
// formats are deduplicated by resolution; audio-only formats are listed
// separately, mirroring the selection surface the probe offers.
func FromVideoInfo(info *ytdlp.VideoInfo) VideoInfoResponse {
	if info == nil {
		return VideoInfoResponse{}
	}

	resp := VideoInfoResponse{
		ID:              info.ID,
		Title:           info.Title,
		Uploader:        info.Uploader,
		Duration:        textutil.FormatDuration(int64(info.DurationSec)),
		DurationSeconds: info.DurationSec,
		Thumbnail:       info.Thumbnail,
	}

	const (
		maxVideoFormats = 10
		maxAudioFormats = 5
	)
	seenResolutions := make(map[string]struct{})
	for _, fmt := range info.Formats {
		switch {
		case fmt.VCodec != "" && fmt.VCodec != "none":
			if fmt.Resolution == "" || fmt.Resolution == "audio only" {
				continue
			}
			if _, seen := seenResolutions[fmt.Resolution]; seen {
				continue
			}
			if len(resp.VideoFormats) >= maxVideoFormats {
				continue
			}
			seenResolutions[fmt.Resolution] = struct{}{}
			resp.VideoFormats = append(resp.VideoFormats, FormatOption{
				ID:         fmt.FormatID,
				Ext:        fmt.Ext,
				Resolution: fmt.Resolution,
				Note:       fmt.FormatNote,
				Size:       formatSize(fmt.Filesize),
			})
		case fmt.ACodec != "" && fmt.ACodec != "none":
			if len(resp.AudioFormats) >= maxAudioFormats {
				continue
			}
			resp.AudioFormats = append(resp.AudioFormats, FormatOption{
				ID:   fmt.FormatID,
				Ext:  fmt.Ext,
				Note: fmt.FormatNote,
				Size: formatSize(fmt.Filesize),
			})
		}
	}
	return resp
}

func formatSize(bytes int64) string {
	if bytes <= 0 {
		return "Unknown"
	}
	return textutil.FormatByteSize(bytes)
}
