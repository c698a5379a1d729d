// Package ytdlp wraps the yt-dlp CLI: metadata probing, media downloads with
// parsed progress, and stderr classification into the service error taxonomy.
package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"spool/internal/config"
	"spool/internal/queue"
	"spool/internal/services"
	"spool/internal/services/subprocess"
)

// VideoInfo captures the probe output for a media URL.
type VideoInfo struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Uploader    string       `json:"uploader"`
	Thumbnail   string       `json:"thumbnail"`
	WebpageURL  string       `json:"webpage_url"`
	DurationSec float64      `json:"duration"`
	UploadDate  string       `json:"upload_date"`
	ViewCount   int64        `json:"view_count"`
	Formats     []FormatInfo `json:"formats"`
}

// FormatInfo describes one downloadable format from the probe output.
type FormatInfo struct {
	FormatID   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution"`
	FormatNote string  `json:"format_note"`
	Filesize   int64   `json:"filesize"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
	FPS        float64 `json:"fps"`
}

// ProgressUpdate captures normalized engine progress output.
type ProgressUpdate struct {
	Stage           string
	Percent         float64
	Message         string
	DownloadedBytes int64
	TotalBytes      int64
	SpeedBPS        float64
	ETASeconds      int64
}

// DownloadRequest describes one download invocation. Trimming is not the
// engine's job; the processing stage runs ffmpeg over the downloaded file.
type DownloadRequest struct {
	URL         string
	Kind        queue.MediaKind
	Quality     string
	AudioFormat string
	DestDir     string
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

// Client wraps yt-dlp CLI interactions.
type Client struct {
	binary          string
	cookiesFile     string
	userAgent       string
	infoTimeout     time.Duration
	downloadTimeout time.Duration
	exec            subprocess.Executor
}

// New constructs a yt-dlp client from engine configuration.
func New(cfg config.Engine, opts ...Option) (*Client, error) {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = "yt-dlp"
	}
	client := &Client{
		binary:          binary,
		cookiesFile:     strings.TrimSpace(cfg.CookiesFile),
		userAgent:       strings.TrimSpace(cfg.UserAgent),
		infoTimeout:     time.Duration(cfg.InfoTimeout) * time.Second,
		downloadTimeout: time.Duration(cfg.DownloadTimeout) * time.Second,
		exec:            subprocess.New(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// FetchInfo probes a URL without downloading and returns parsed metadata.
func (c *Client) FetchInfo(ctx context.Context, url string) (*VideoInfo, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, services.Wrap(services.ErrValidation, "probe", "fetch info", "url required", nil)
	}

	if c.infoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.infoTimeout)
		defer cancel()
	}

	args := c.baseArgs()
	args = append(args, "--dump-json", "--skip-download", url)

	var (
		mu     sync.Mutex
		stdout strings.Builder
		tail   stderrTail
	)
	err := c.exec.Run(ctx, c.binary, args,
		func(line string) {
			mu.Lock()
			stdout.WriteString(line)
			stdout.WriteByte('\n')
			mu.Unlock()
		},
		func(line string) {
			mu.Lock()
			tail.add(line)
			mu.Unlock()
		},
	)
	if err != nil {
		return nil, c.classifyRunError("probe", err, tail.String())
	}

	var info VideoInfo
	decoder := json.NewDecoder(strings.NewReader(stdout.String()))
	if err := decoder.Decode(&info); err != nil {
		return nil, services.Wrap(services.ErrExtraction, "probe", "parse info", "engine emitted invalid metadata", err)
	}
	if info.Thumbnail == "" && info.ID != "" {
		info.Thumbnail = fmt.Sprintf("https://img.youtube.com/vi/%s/maxresdefault.jpg", info.ID)
	}
	return &info, nil
}

// Download runs the engine and returns the path of the produced file. The
// progress callback receives every parsed progress line.
func (c *Client) Download(ctx context.Context, req DownloadRequest, progress func(ProgressUpdate)) (string, error) {
	if strings.TrimSpace(req.URL) == "" {
		return "", services.Wrap(services.ErrValidation, "downloading", "download", "url required", nil)
	}
	if req.DestDir == "" {
		return "", services.Wrap(services.ErrValidation, "downloading", "download", "destination directory required", nil)
	}
	if err := os.MkdirAll(req.DestDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "downloading", "prepare destination", "", err)
	}

	if c.downloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.downloadTimeout)
		defer cancel()
	}

	args := c.downloadArgs(req)

	var (
		mu          sync.Mutex
		destination string
		tail        stderrTail
	)
	err := c.exec.Run(ctx, c.binary, args,
		func(line string) {
			event, ok := parseLine(line)
			if !ok {
				return
			}
			if event.destination != "" {
				mu.Lock()
				destination = event.destination
				mu.Unlock()
			}
			if event.hasProgress && progress != nil {
				progress(event.update)
			}
		},
		func(line string) {
			mu.Lock()
			tail.add(line)
			mu.Unlock()
		},
	)
	if err != nil {
		return "", c.classifyRunError("downloading", err, tail.String())
	}

	mu.Lock()
	final := destination
	mu.Unlock()

	final = c.resolveOutput(req, final)
	if final == "" {
		return "", services.Wrap(services.ErrExtraction, "downloading", "locate output", "engine produced no output file", nil)
	}
	return final, nil
}

// resolveOutput maps the last reported destination to the file on disk,
// accounting for postprocessors that swap the extension after the download
// line was printed.
func (c *Client) resolveOutput(req DownloadRequest, destination string) string {
	if destination != "" {
		if req.Kind == queue.MediaAudio {
			ext := "." + audioCodec(req.AudioFormat)
			swapped := strings.TrimSuffix(destination, filepath.Ext(destination)) + ext
			if _, err := os.Stat(swapped); err == nil {
				return swapped
			}
		}
		if _, err := os.Stat(destination); err == nil {
			return destination
		}
		// Recode postprocessor may have replaced the container.
		base := strings.TrimSuffix(destination, filepath.Ext(destination))
		if _, err := os.Stat(base + ".mp4"); err == nil {
			return base + ".mp4"
		}
	}
	return newestFile(req.DestDir)
}

func newestFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var (
		newest    string
		newestMod time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".part") || strings.HasSuffix(entry.Name(), ".ytdl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, entry.Name())
			newestMod = info.ModTime()
		}
	}
	return newest
}

func (c *Client) classifyRunError(stage string, runErr error, stderr string) error {
	if errors.Is(runErr, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stage, "run engine", "engine exceeded its timeout", runErr)
	}
	if errors.Is(runErr, context.Canceled) {
		return runErr
	}
	marker, message := classifyStderr(stderr)
	return services.Wrap(marker, stage, "run engine", message, runErr)
}

func (c *Client) baseArgs() []string {
	args := []string{"--no-playlist", "--no-warnings"}
	if c.cookiesFile != "" {
		args = append(args, "--cookies", c.cookiesFile)
	}
	if c.userAgent != "" {
		args = append(args, "--user-agent", c.userAgent)
	}
	return args
}

// stderrTail keeps the last few stderr lines for error classification.
type stderrTail struct {
	lines []string
}

const stderrTailLimit = 20

func (t *stderrTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > stderrTailLimit {
		t.lines = t.lines[1:]
	}
}

func (t *stderrTail) String() string {
	return strings.Join(t.lines, "\n")
}
