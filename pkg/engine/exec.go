package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/visiondemo/pkg/detections"
	"github.com/cyclopcam/visiondemo/pkg/errs"
	"github.com/cyclopcam/visiondemo/pkg/shell"
)

// ExecEngine runs inference by launching an external program for every job.
//
//	<command> classify --model-type T --model-path P --result-count N <image>...
//	<command> detect-video --model-type T --model-path P --input IN --output OUT --frames-per-second F --minimum-percentage-probability M
//
// The program writes a single JSON document to stdout.
type ExecEngine struct {
	Command  []string      // Program and leading arguments, eg ["python3", "scripts/imageai_bridge.py"]
	ModelDir string        // Root of the model weights
	Timeout  time.Duration // Maximum duration of a single job. Zero means no limit.

	log  logs.Log
	jobs chan struct{} // semaphore
}

// Make sure ExecEngine implements both interfaces
var _ Classifier = (*ExecEngine)(nil)
var _ VideoDetector = (*ExecEngine)(nil)

func NewExecEngine(log logs.Log, command []string, modelDir string, maxJobs int, timeout time.Duration) (*ExecEngine, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, fmt.Errorf("%w: engine command is empty", errs.ErrInvalidConfiguration)
	}
	if maxJobs < 1 {
		maxJobs = 1
	}
	return &ExecEngine{
		Command:  command,
		ModelDir: modelDir,
		Timeout:  timeout,
		log:      log,
		jobs:     make(chan struct{}, maxJobs),
	}, nil
}

// Raw output of 'classify'. Predictions and probabilities are parallel arrays.
type rawImagePrediction struct {
	Image         string    `json:"image"`
	Predictions   []string  `json:"predictions"`
	Probabilities []float64 `json:"probabilities"`
}

// Raw output of 'detect-video'
type rawVideoResult struct {
	OutputFile         string                `json:"outputFile"`
	OutputArrays       [][]detections.Object `json:"outputArrays"`
	CountArrays        []map[string]int      `json:"countArrays"`
	AverageOutputCount map[string]float64    `json:"averageOutputCount"`
}

func (e *ExecEngine) Classify(ctx context.Context, model *Model, images []string, resultCount int) ([]ImagePrediction, error) {
	if model.Task != TaskClassification {
		return nil, fmt.Errorf("%w: %v is not a classification model", errs.ErrInvalidConfiguration, model.Name)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no images to classify", errs.ErrMissingUpload)
	}
	args := []string{
		"classify",
		"--model-type", model.Name,
		"--model-path", model.WeightsPath(e.ModelDir),
		"--result-count", strconv.Itoa(resultCount),
	}
	args = append(args, images...)

	out, err := e.run(ctx, model, args)
	if err != nil {
		return nil, err
	}

	raw := []rawImagePrediction{}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to decode classification output: %v", errs.ErrInferenceFailure, err)
	}
	if len(raw) != len(images) {
		return nil, fmt.Errorf("%w: engine returned %v results for %v images", errs.ErrInferenceFailure, len(raw), len(images))
	}

	result := make([]ImagePrediction, 0, len(raw))
	for _, r := range raw {
		if len(r.Predictions) != len(r.Probabilities) {
			return nil, fmt.Errorf("%w: %v has %v labels but %v probabilities", errs.ErrInferenceFailure, r.Image, len(r.Predictions), len(r.Probabilities))
		}
		p := ImagePrediction{
			Image:       filepath.Base(r.Image),
			Predictions: make([]Prediction, len(r.Predictions)),
		}
		for i := range r.Predictions {
			p.Predictions[i] = Prediction{
				Label:       r.Predictions[i],
				Probability: roundProbability(r.Probabilities[i]),
			}
		}
		result = append(result, p)
	}
	return result, nil
}

func (e *ExecEngine) DetectVideo(ctx context.Context, model *Model, req VideoRequest) (*VideoResult, error) {
	if model.Task != TaskVideoDetection {
		return nil, fmt.Errorf("%w: %v is not a detection model", errs.ErrInvalidConfiguration, model.Name)
	}
	if _, err := detections.FrameStep(req.FrameRate); err != nil {
		return nil, err
	}
	args := []string{
		"detect-video",
		"--model-type", model.Name,
		"--model-path", model.WeightsPath(e.ModelDir),
		"--input", req.Input,
		"--output", req.Output,
		"--frames-per-second", strconv.FormatFloat(req.FrameRate, 'f', -1, 64),
		"--minimum-percentage-probability", strconv.FormatFloat(req.MinProbability, 'f', -1, 64),
	}

	out, err := e.run(ctx, model, args)
	if err != nil {
		return nil, err
	}

	result, err := DecodeVideoResult(out)
	if err != nil {
		return nil, err
	}
	framesProcessed.WithLabelValues(model.Name).Add(float64(len(result.Frames)))
	return result, nil
}

// DecodeVideoResult parses the JSON that 'detect-video' writes to stdout
func DecodeVideoResult(data []byte) (*VideoResult, error) {
	raw := rawVideoResult{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to decode detection output: %v", errs.ErrInferenceFailure, err)
	}
	if raw.CountArrays != nil && len(raw.CountArrays) != len(raw.OutputArrays) {
		return nil, fmt.Errorf("%w: engine returned %v frames but %v frame counts", errs.ErrInferenceFailure, len(raw.OutputArrays), len(raw.CountArrays))
	}
	if raw.OutputFile == "" {
		return nil, fmt.Errorf("%w: engine did not report an output video", errs.ErrInferenceFailure)
	}
	return &VideoResult{
		OutputFile:   raw.OutputFile,
		Frames:       raw.OutputArrays,
		Counts:       raw.CountArrays,
		AverageCount: raw.AverageOutputCount,
	}, nil
}

// run waits for a job slot, and then runs the engine program
func (e *ExecEngine) run(ctx context.Context, model *Model, args []string) ([]byte, error) {
	select {
	case e.jobs <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: gave up waiting for the engine: %v", errs.ErrInferenceFailure, ctx.Err())
	}
	defer func() { <-e.jobs }()

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	task := model.Task.String()
	e.log.Infof("Running %v with %v", task, model.Name)
	start := time.Now()
	allArgs := append(append([]string{}, e.Command[1:]...), args...)
	out, err := shell.Run(ctx, e.Command[0], allArgs...)
	elapsed := time.Since(start)
	if err != nil {
		engineRuns.WithLabelValues(task, model.Name, "error").Observe(elapsed.Seconds())
		e.log.Errorf("%v with %v failed after %.1f seconds: %v", task, model.Name, elapsed.Seconds(), err)
		return nil, fmt.Errorf("%w: %v", errs.ErrInferenceFailure, err)
	}
	engineRuns.WithLabelValues(task, model.Name, "ok").Observe(elapsed.Seconds())
	e.log.Infof("%v with %v finished in %.1f seconds", task, model.Name, elapsed.Seconds())
	return out, nil
}
