package capture

import (
	"strings"

	"github.com/zanzhit/station_recorder/internal/lib/rtsp"
)

// Key is the supervisor key of a station: its trimmed, lower-cased name.
func Key(stationName string) string {
	return strings.ToLower(strings.TrimSpace(stationName))
}

// SafeName makes a string usable as a single path element.
func SafeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "NA"
	}

	s = strings.ReplaceAll(s, "..", "_")

	s = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return '_'
		}

		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}

		return r
	}, s)

	return s
}

// FFmpegArgs is the default capture command: copy the video stream from the
// source into a faststart mp4 without re-encoding.
func FFmpegArgs(source, output string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-fflags", "+nobuffer", "-flags", "low_delay",
		"-analyzeduration", "2000000", "-probesize", "2000000",
	}

	if rtsp.IsRTSP(source) {
		args = append(args, "-rtsp_transport", "tcp")
	}

	return append(args,
		"-i", source,
		"-an", "-c:v", "copy", "-movflags", "+faststart",
		"-y", output,
	)
}
