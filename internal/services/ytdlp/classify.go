package ytdlp

import (
	"strings"

	"spool/internal/services"
)

// classifyStderr maps engine stderr output to a sentinel error marker and a
// human-readable summary. The engine reports site auth walls, missing videos,
// and malformed URLs only through stderr text, so string matching is the only
// signal available.
func classifyStderr(stderr string) (error, string) {
	lowered := strings.ToLower(stderr)

	switch {
	case strings.Contains(lowered, "sign in to confirm"),
		strings.Contains(lowered, "confirm you're not a bot"),
		strings.Contains(lowered, "use --cookies"),
		strings.Contains(lowered, "login required"):
		return services.ErrAuthRequired, "source requires authentication; configure engine.cookies_file"
	case strings.Contains(lowered, "private video"),
		strings.Contains(lowered, "video unavailable"),
		strings.Contains(lowered, "this video is not available"),
		strings.Contains(lowered, "http error 404"):
		return services.ErrNotFound, "media not available at this url"
	case strings.Contains(lowered, "unsupported url"),
		strings.Contains(lowered, "is not a valid url"):
		return services.ErrValidation, "url is not supported by the engine"
	default:
		message := lastLine(stderr)
		if message == "" {
			message = "engine failed"
		}
		return services.ErrExtraction, message
	}
}

func lastLine(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
