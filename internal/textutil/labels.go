package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// StatusLabel converts a machine status such as "downloading" into a
// human-facing label for CLI tables and notifications.
func StatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return "Unknown"
	}
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}
