package api

import (
	"net/url"
	"strings"

	"spool/internal/queue"
	"spool/internal/services"
	"spool/internal/textutil"
)

// ParseDownloadRequest validates a download request and converts it into a
// queue request. Validation failures are synchronous: the caller rejects the
// request and no job record is created.
func ParseDownloadRequest(req DownloadRequest) (queue.Request, error) {
	out := queue.Request{
		Quality:      strings.TrimSpace(req.Quality),
		AudioFormat:  strings.TrimSpace(req.Format),
		SubscriberID: strings.TrimSpace(req.SubscriberID),
	}

	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return queue.Request{}, services.Wrap(services.ErrValidation, "request", "parse", "URL is required", nil)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return queue.Request{}, services.Wrap(services.ErrValidation, "request", "parse", "URL must be a valid http(s) address", nil)
	}
	out.URL = rawURL

	kind, ok := queue.ParseMediaKind(req.FormatType)
	if !ok {
		return queue.Request{}, services.Wrap(services.ErrValidation, "request", "parse", "format_type must be video or audio", nil)
	}
	out.Kind = kind

	if raw := strings.TrimSpace(req.StartTime); raw != "" {
		seconds, ok := textutil.ParseClock(raw)
		if !ok {
			return queue.Request{}, services.Wrap(services.ErrValidation, "request", "parse", "start_time must be seconds or HH:MM:SS", nil)
		}
		out.StartSec = float64(seconds)
	}
	if raw := strings.TrimSpace(req.EndTime); raw != "" {
		seconds, ok := textutil.ParseClock(raw)
		if !ok {
			return queue.Request{}, services.Wrap(services.ErrValidation, "request", "parse", "end_time must be seconds or HH:MM:SS", nil)
		}
		out.EndSec = float64(seconds)
	}
	if out.EndSec > 0 && out.EndSec <= out.StartSec {
		return queue.Request{}, services.Wrap(services.ErrValidation, "request", "parse", "end_time must be after start_time", nil)
	}

	return out, nil
}
