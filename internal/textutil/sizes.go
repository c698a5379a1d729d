package textutil

import (
	"fmt"
	"strconv"
	"strings"
)

var sizeUnits = map[string]float64{
	"b":   1,
	"kb":  1000,
	"mb":  1000 * 1000,
	"gb":  1000 * 1000 * 1000,
	"tb":  1000 * 1000 * 1000 * 1000,
	"kib": 1024,
	"mib": 1024 * 1024,
	"gib": 1024 * 1024 * 1024,
	"tib": 1024 * 1024 * 1024 * 1024,
}

// ParseByteSize converts a size token such as "10.57MiB" or "512KiB" into
// bytes. Returns 0 and false when the token cannot be parsed.
func ParseByteSize(token string) (int64, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false
	}
	split := len(token)
	for i, r := range token {
		if (r < '0' || r > '9') && r != '.' {
			split = i
			break
		}
	}
	if split == 0 {
		return 0, false
	}
	value, err := strconv.ParseFloat(token[:split], 64)
	if err != nil {
		return 0, false
	}
	unit := strings.ToLower(strings.TrimSpace(token[split:]))
	if unit == "" {
		unit = "b"
	}
	multiplier, ok := sizeUnits[unit]
	if !ok {
		return 0, false
	}
	return int64(value * multiplier), true
}

// FormatByteSize renders a byte count using binary units, matching the style
// the extraction engine uses in its own output.
func FormatByteSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%dB", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f%ciB", float64(bytes)/float64(div), "KMGT"[exp])
}

// ParseClock converts "SS", "MM:SS", or "HH:MM:SS" into seconds.
func ParseClock(token string) (int64, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, false
	}
	parts := strings.Split(token, ":")
	if len(parts) > 3 {
		return 0, false
	}
	var total int64
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}

// FormatClock renders a second count as "M:SS" or "H:MM:SS".
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatDuration renders a second count as a human-readable span like
// "1h 4m 12s", dropping leading zero units.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatSeekPoint renders fractional seconds in the HH:MM:SS.mmm form that
// ffmpeg accepts for -ss and -to.
func FormatSeekPoint(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	whole := int64(seconds)
	millis := int64((seconds - float64(whole)) * 1000)
	h := whole / 3600
	m := (whole % 3600) / 60
	s := whole % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, millis)
}
