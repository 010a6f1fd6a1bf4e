package videox

import (
	"context"
	"fmt"

	"github.com/cyclopcam/visiondemo/pkg/shell"
)

type GIFOptions struct {
	FPS   int // Frames per second of the animation
	Width int // Output width in pixels. Height follows the aspect ratio. Zero keeps the source width.
}

func DefaultGIFOptions() GIFOptions {
	return GIFOptions{
		FPS:   10,
		Width: 480,
	}
}

// MakeGIF converts a video into an animated GIF.
// A palette is generated from the video itself, which looks far better than ffmpeg's default palette.
func MakeGIF(ctx context.Context, srcFilename, dstFilename string, opt GIFOptions) error {
	if opt.FPS <= 0 {
		return fmt.Errorf("Invalid GIF frame rate %v", opt.FPS)
	}
	scale := ""
	if opt.Width > 0 {
		scale = fmt.Sprintf(",scale=%v:-1:flags=lanczos", opt.Width)
	}
	filter := fmt.Sprintf("fps=%v%v,split[s0][s1];[s0]palettegen[p];[s1][p]paletteuse", opt.FPS, scale)
	args := []string{
		"-i",
		srcFilename,
		"-y",
		"-vf",
		filter,
		"-loop",
		"0", // loop forever
		dstFilename,
	}
	_, err := shell.RunCombined(ctx, "ffmpeg", args...)
	return err
}
