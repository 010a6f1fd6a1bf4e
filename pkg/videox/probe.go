package videox

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cyclopcam/visiondemo/pkg/shell"
)

// ExtractVideoDuration asks ffprobe for the container duration of a video file
func ExtractVideoDuration(ctx context.Context, srcFilename string) (time.Duration, error) {
	out, err := shell.RunCombined(ctx, "ffprobe", "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", srcFilename)
	if err != nil {
		return 0, err
	}
	// ffprobe sometimes emits warnings before the duration, so we
	// take the first line that parses as a number.
	for _, line := range strings.Split(string(out), "\n") {
		if seconds, err := strconv.ParseFloat(strings.TrimSpace(line), 64); err == nil && seconds >= 0 {
			return time.Duration(seconds * float64(time.Second)), nil
		}
	}
	return 0, fmt.Errorf("Unable to parse ffprobe duration of %v: %v", srcFilename, strings.TrimSpace(string(out)))
}
