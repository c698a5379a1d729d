package ytdlp

import (
	"regexp"
	"strconv"
	"strings"

	"spool/internal/textutil"
)

// Engine stage names as surfaced to jobs. Everything after the raw download
// finishes (merging, recoding, audio extraction) is "processing".
const (
	StageDownloading = "downloading"
	StageProcessing  = "processing"
)

type lineEvent struct {
	update      ProgressUpdate
	destination string
	hasProgress bool
}

// downloadPattern matches "[download]  45.3% of 10.57MiB at 1.26MiB/s ETA 00:05"
// and its variants ("of ~", "at Unknown speed", "ETA Unknown", "in 00:05").
var downloadPattern = regexp.MustCompile(
	`^\[download\]\s+([\d.]+)%\s+of\s+~?\s*(\S+)(?:\s+at\s+(\S+(?:\s+speed)?))?(?:\s+(?:ETA|in)\s+(\S+))?`,
)

var destinationPattern = regexp.MustCompile(`^\[(download|ExtractAudio)\]\s+Destination:\s+(.+)$`)

var mergerPattern = regexp.MustCompile(`^\[Merger\]\s+Merging formats into\s+"(.+)"$`)

var postprocessPrefixes = []string{
	"[Merger]",
	"[ExtractAudio]",
	"[VideoConvertor]",
	"[FixupM3u8]",
	"[ffmpeg]",
}

// parseLine interprets one stdout line from the engine.
func parseLine(line string) (lineEvent, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return lineEvent{}, false
	}

	if m := destinationPattern.FindStringSubmatch(line); m != nil {
		event := lineEvent{destination: strings.TrimSpace(m[2])}
		if m[1] == "ExtractAudio" {
			event.update = ProgressUpdate{Stage: StageProcessing, Percent: -1, Message: "extracting audio"}
			event.hasProgress = true
		}
		return event, true
	}

	if m := mergerPattern.FindStringSubmatch(line); m != nil {
		return lineEvent{
			destination: strings.TrimSpace(m[1]),
			update:      ProgressUpdate{Stage: StageProcessing, Percent: -1, Message: "merging formats"},
			hasProgress: true,
		}, true
	}

	if m := downloadPattern.FindStringSubmatch(line); m != nil {
		percent, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return lineEvent{}, false
		}
		update := ProgressUpdate{
			Stage:   StageDownloading,
			Percent: percent,
			Message: strings.TrimPrefix(line, "[download] "),
		}
		if total, ok := textutil.ParseByteSize(m[2]); ok {
			update.TotalBytes = total
			update.DownloadedBytes = int64(percent / 100 * float64(total))
		}
		if speed := strings.TrimSuffix(m[3], "/s"); speed != "" {
			if bps, ok := textutil.ParseByteSize(speed); ok {
				update.SpeedBPS = float64(bps)
			}
		}
		if eta, ok := textutil.ParseClock(m[4]); ok {
			update.ETASeconds = eta
		}
		return lineEvent{update: update, hasProgress: true}, true
	}

	for _, prefix := range postprocessPrefixes {
		if strings.HasPrefix(line, prefix) {
			return lineEvent{
				update:      ProgressUpdate{Stage: StageProcessing, Percent: -1, Message: strings.TrimSpace(strings.TrimPrefix(line, prefix))},
				hasProgress: true,
			}, true
		}
	}

	return lineEvent{}, false
}
