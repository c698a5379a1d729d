// Package ffmpeg wraps the ffmpeg CLI for the processing stage: trimming a
// downloaded file to the requested clip window with a re-encode, so cut
// points land on exact timestamps, and parsed progress.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"spool/internal/config"
	"spool/internal/services"
	"spool/internal/services/subprocess"
	"spool/internal/textutil"
)

// ProgressUpdate reports trim progress as a share of the clip duration.
type ProgressUpdate struct {
	Percent        float64
	OutTimeSeconds float64
	Message        string
}

// TrimRequest describes a clip extraction from a finished download.
type TrimRequest struct {
	Input       string
	StartSec    float64
	EndSec      float64
	DurationSec float64 // full source duration, used when EndSec is 0
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec subprocess.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps ffmpeg CLI interactions.
type Client struct {
	binary      string
	trimTimeout time.Duration
	exec        subprocess.Executor
}

// New constructs an ffmpeg client from configuration.
func New(cfg config.FFmpeg, opts ...Option) (*Client, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	client := &Client{
		binary:      binary,
		trimTimeout: time.Duration(cfg.TrimTimeout) * time.Second,
		exec:        subprocess.New(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Trim extracts the requested window into a sibling file and returns its
// path. The partial output is removed when the run fails, so an error never
// leaves an artifact behind.
func (c *Client) Trim(ctx context.Context, req TrimRequest, progress func(ProgressUpdate)) (string, error) {
	if req.Input == "" {
		return "", services.Wrap(services.ErrValidation, "processing", "trim", "input file required", nil)
	}
	if req.StartSec < 0 || (req.EndSec > 0 && req.EndSec <= req.StartSec) {
		return "", services.Wrap(services.ErrValidation, "processing", "trim", "invalid clip window", nil)
	}

	output := trimOutputPath(req.Input)
	clipDuration := clipSeconds(req)

	if c.trimTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.trimTimeout)
		defer cancel()
	}

	args := []string{"-y", "-hide_banner", "-nostats", "-progress", "pipe:1", "-i", req.Input}
	if req.StartSec > 0 {
		args = append(args, "-ss", textutil.FormatSeekPoint(req.StartSec))
	}
	if req.EndSec > 0 {
		args = append(args, "-to", textutil.FormatSeekPoint(req.EndSec))
	}
	// Seeking after -i decodes up to the clip window, so cuts land on the
	// requested frame instead of the previous keyframe.
	args = append(args, output)

	var (
		mu   sync.Mutex
		tail []string
	)
	err := c.exec.Run(ctx, c.binary, args,
		func(line string) {
			if progress == nil {
				return
			}
			if update, ok := parseProgressLine(line, clipDuration); ok {
				progress(update)
			}
		},
		func(line string) {
			line = strings.TrimSpace(line)
			if line == "" {
				return
			}
			mu.Lock()
			tail = append(tail, line)
			if len(tail) > 10 {
				tail = tail[1:]
			}
			mu.Unlock()
		},
	)
	if err != nil {
		_ = os.Remove(output)
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", services.Wrap(services.ErrTimeout, "processing", "trim", "ffmpeg exceeded its timeout", err)
		}
		message := "ffmpeg failed"
		mu.Lock()
		if len(tail) > 0 {
			message = tail[len(tail)-1]
		}
		mu.Unlock()
		return "", services.Wrap(services.ErrTranscode, "processing", "trim", message, err)
	}

	if _, statErr := os.Stat(output); statErr != nil {
		return "", services.Wrap(services.ErrTranscode, "processing", "trim", "ffmpeg produced no output file", statErr)
	}
	return output, nil
}

// trimOutputPath derives "name.trimmed.ext" next to the input.
func trimOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".trimmed" + ext
}

func clipSeconds(req TrimRequest) float64 {
	end := req.EndSec
	if end <= 0 {
		end = req.DurationSec
	}
	if end <= req.StartSec {
		return 0
	}
	return end - req.StartSec
}

// parseProgressLine interprets ffmpeg -progress key=value output.
func parseProgressLine(line string, clipDuration float64) (ProgressUpdate, bool) {
	line = strings.TrimSpace(line)
	key, value, found := strings.Cut(line, "=")
	if !found {
		return ProgressUpdate{}, false
	}
	switch key {
	case "out_time_ms":
		micros, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || micros < 0 {
			return ProgressUpdate{}, false
		}
		seconds := float64(micros) / 1e6
		update := ProgressUpdate{OutTimeSeconds: seconds, Percent: -1}
		if clipDuration > 0 {
			percent := seconds / clipDuration * 100
			if percent > 100 {
				percent = 100
			}
			update.Percent = percent
		}
		update.Message = fmt.Sprintf("trimmed %s", textutil.FormatClock(int64(seconds)))
		return update, true
	case "progress":
		if strings.TrimSpace(value) == "end" {
			return ProgressUpdate{Percent: 100, Message: "trim complete"}, true
		}
		return ProgressUpdate{}, false
	default:
		return ProgressUpdate{}, false
	}
}
