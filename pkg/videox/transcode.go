package videox

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/cyclopcam/visiondemo/pkg/shell"
)

// NeedsBrowserTranscode returns true if browsers are unlikely to play the file in a <video> element
func NeedsBrowserTranscode(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".webm":
		return false
	}
	return true
}

// Transcode a video into H.264 mp4, so that a browser can play it, and seek to random positions
func TranscodeSeekable(ctx context.Context, srcFilename, dstFilename string) error {
	args := []string{
		"-i",
		srcFilename,
		"-y",       // overwrite output file
		"-c:v",     // video codec
		"libx264",  //
		"-pix_fmt", // most browsers only decode 4:2:0
		"yuv420p",
		"-g",   // keyframe interval
		"10",   // keyframe every 10 frames
		"-crf", // constant rate factor
		"25",   // 0-51, 0 is lossless, 51 is worst quality
		"-movflags",
		"+faststart", // moov atom at the front, so playback can start before the download completes
		"-an",        // the annotated video has no audio
		dstFilename,
	}
	_, err := shell.RunCombined(ctx, "ffmpeg", args...)
	return err
}
