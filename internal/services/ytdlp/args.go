package ytdlp

import (
	"fmt"
	"path/filepath"
	"strings"

	"spool/internal/queue"
)

// downloadArgs assembles the full CLI invocation for one download.
func (c *Client) downloadArgs(req DownloadRequest) []string {
	args := c.baseArgs()
	args = append(args, "--newline")
	args = append(args, "--format", formatExpression(req.Kind, req.Quality))
	args = append(args, "--output", filepath.Join(req.DestDir, "%(title)s.%(ext)s"))

	if req.Kind == queue.MediaAudio {
		codec := audioCodec(req.AudioFormat)
		args = append(args,
			"--extract-audio",
			"--audio-format", codec,
			"--audio-quality", audioQuality(codec, req.Quality),
		)
	} else {
		args = append(args, "--recode-video", "mp4")
	}

	args = append(args, req.URL)
	return args
}

// formatExpression builds the engine format selector. Video selections prefer
// an mp4/m4a pair and fall through progressively looser matches so uncommon
// sources still resolve to something playable.
func formatExpression(kind queue.MediaKind, quality string) string {
	if kind == queue.MediaAudio {
		return "bestaudio/best"
	}

	quality = strings.ToLower(strings.TrimSpace(quality))
	switch quality {
	case "", "best":
		return "bestvideo[ext=mp4]+bestaudio[ext=m4a]/bestvideo+bestaudio/best"
	case "worst":
		return "worstvideo+worstaudio/worst"
	}

	height := strings.TrimSuffix(quality, "p")
	return fmt.Sprintf(
		"bestvideo[height<=%s][ext=mp4]+bestaudio[ext=m4a]/bestvideo[height<=%s]+bestaudio/best[height<=%s]/best",
		height, height, height,
	)
}

// audioCodec normalizes the requested audio container to a codec the engine's
// extract-audio postprocessor accepts.
func audioCodec(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "mp3":
		return "mp3"
	case "m4a":
		return "m4a"
	case "opus":
		return "opus"
	case "flac":
		return "flac"
	default:
		return "mp3"
	}
}

// audioQuality maps the quality request to a bitrate argument. FLAC is
// lossless and always uses "0"; "best" means 320 kbps; anything non-numeric
// falls back to 192 kbps.
func audioQuality(codec, quality string) string {
	if codec == "flac" {
		return "0"
	}
	quality = strings.TrimSpace(quality)
	if quality == "" || strings.EqualFold(quality, "best") {
		return "320"
	}
	for _, r := range quality {
		if r < '0' || r > '9' {
			return "192"
		}
	}
	return quality
}
