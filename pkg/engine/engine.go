// Package engine runs pretrained classification and detection models.
// The models themselves live in an external inference program, which we talk
// to over its command line and stdout.
package engine

import (
	"context"
	"math"

	"github.com/cyclopcam/visiondemo/pkg/detections"
)

// Classifier predicts the top N labels of each image
type Classifier interface {
	Classify(ctx context.Context, model *Model, images []string, resultCount int) ([]ImagePrediction, error)
}

// VideoDetector detects objects in every frame of a video.
// It returns only once the entire video has been processed.
type VideoDetector interface {
	DetectVideo(ctx context.Context, model *Model, req VideoRequest) (*VideoResult, error)
}

// Prediction is a single label, with a probability in percent (0..100)
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// ImagePrediction holds the top predictions for one image, most likely first
type ImagePrediction struct {
	Image       string       `json:"image"` // Base name of the image file
	Predictions []Prediction `json:"predictions"`
}

// VideoRequest describes a detection job
type VideoRequest struct {
	Input          string  // Video file to analyze
	Output         string  // Annotated output video, without extension. The engine picks the extension.
	FrameRate      float64 // Frames per second of the output video, and of the detection clock
	MinProbability float64 // Minimum percentage probability (0..100) of a reported object
}

// VideoResult is the full per-frame output of a detection job
type VideoResult struct {
	OutputFile   string                // Annotated video, as written by the engine
	Frames       [][]detections.Object // Objects detected in each frame
	Counts       []map[string]int      // Unique objects per label, in each frame
	AverageCount map[string]float64    // Average unique objects per label, over all frames
}

// Table converts the per-frame results into a time-indexed detection table
func (r *VideoResult) Table(frameRate float64) (*detections.Table, error) {
	return detections.NewTable(r.Frames, r.Counts, frameRate)
}

func roundProbability(p float64) float64 {
	return math.Round(p*100) / 100
}
