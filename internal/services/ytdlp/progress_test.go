package ytdlp

import (
	"testing"

	"spool/internal/queue"
)

func TestParseLineDownloadProgress(t *testing.T) {
	event, ok := parseLine("[download]  45.3% of 10.57MiB at 1.26MiB/s ETA 00:05")
	if !ok || !event.hasProgress {
		t.Fatal("expected progress event")
	}
	u := event.update
	if u.Stage != StageDownloading || u.Percent != 45.3 {
		t.Fatalf("update = %+v", u)
	}
	if u.TotalBytes != 11083448 {
		t.Fatalf("total bytes = %d", u.TotalBytes)
	}
	if u.ETASeconds != 5 {
		t.Fatalf("eta = %d", u.ETASeconds)
	}
}

func TestParseLineEstimatedTotal(t *testing.T) {
	event, ok := parseLine("[download]   1.2% of ~ 120.00MiB at 500.00KiB/s ETA 04:00")
	if !ok || !event.hasProgress {
		t.Fatal("expected progress event")
	}
	if event.update.TotalBytes == 0 {
		t.Fatal("estimated total not parsed")
	}
}

func TestParseLineUnknownSpeed(t *testing.T) {
	event, ok := parseLine("[download]  10.0% of 5.00MiB at Unknown speed ETA Unknown")
	if !ok || !event.hasProgress {
		t.Fatal("expected progress event")
	}
	if event.update.SpeedBPS != 0 || event.update.ETASeconds != 0 {
		t.Fatalf("unknown fields should stay zero: %+v", event.update)
	}
}

func TestParseLineCompletion(t *testing.T) {
	event, ok := parseLine("[download] 100% of 10.57MiB in 00:11")
	if !ok || event.update.Percent != 100 {
		t.Fatalf("completion not parsed: %+v", event)
	}
}

func TestParseLineDestination(t *testing.T) {
	event, ok := parseLine("[download] Destination: /tmp/work/A Video.mp4")
	if !ok || event.destination != "/tmp/work/A Video.mp4" {
		t.Fatalf("destination = %+v", event)
	}
	if event.hasProgress {
		t.Fatal("plain destination should not carry progress")
	}
}

func TestParseLineMerger(t *testing.T) {
	event, ok := parseLine(`[Merger] Merging formats into "/tmp/work/A Video.mp4"`)
	if !ok {
		t.Fatal("merger line not parsed")
	}
	if event.destination != "/tmp/work/A Video.mp4" {
		t.Fatalf("destination = %q", event.destination)
	}
	if event.update.Stage != StageProcessing {
		t.Fatalf("stage = %q", event.update.Stage)
	}
}

func TestParseLineIgnoresChatter(t *testing.T) {
	for _, line := range []string{
		"[youtube] abc123: Downloading webpage",
		"some random output",
		"",
	} {
		if _, ok := parseLine(line); ok {
			t.Fatalf("line should be ignored: %q", line)
		}
	}
}

func TestFormatExpression(t *testing.T) {
	cases := []struct {
		kind    queue.MediaKind
		quality string
		want    string
	}{
		{queue.MediaAudio, "best", "bestaudio/best"},
		{queue.MediaVideo, "best", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/bestvideo+bestaudio/best"},
		{queue.MediaVideo, "", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/bestvideo+bestaudio/best"},
		{queue.MediaVideo, "worst", "worstvideo+worstaudio/worst"},
		{queue.MediaVideo, "720p", "bestvideo[height<=720][ext=mp4]+bestaudio[ext=m4a]/bestvideo[height<=720]+bestaudio/best[height<=720]/best"},
		{queue.MediaVideo, "1080", "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/bestvideo[height<=1080]+bestaudio/best[height<=1080]/best"},
	}
	for _, tc := range cases {
		if got := formatExpression(tc.kind, tc.quality); got != tc.want {
			t.Errorf("formatExpression(%s, %q) = %q, want %q", tc.kind, tc.quality, got, tc.want)
		}
	}
}

func TestAudioQuality(t *testing.T) {
	cases := []struct {
		codec   string
		quality string
		want    string
	}{
		{"mp3", "best", "320"},
		{"mp3", "", "320"},
		{"mp3", "128", "128"},
		{"mp3", "high", "192"},
		{"flac", "best", "0"},
		{"flac", "320", "0"},
	}
	for _, tc := range cases {
		if got := audioQuality(tc.codec, tc.quality); got != tc.want {
			t.Errorf("audioQuality(%q, %q) = %q, want %q", tc.codec, tc.quality, got, tc.want)
		}
	}
}
