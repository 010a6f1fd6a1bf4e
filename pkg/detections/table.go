// Package detections turns the raw per-frame output of a video object detector
// into a flat, time-indexed table, and aggregates that table into per-interval
// summaries for charting.
package detections

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cyclopcam/visiondemo/pkg/errs"
)

// Object is a single object that the detector found in a frame
type Object struct {
	Name                  string  `json:"name"`
	PercentageProbability float64 `json:"percentage_probability"` // 0..100
	BoxPoints             []int   `json:"box_points,omitempty"`    // x1,y1,x2,y2
}

// Event is one row of a Table.
// A frame with no detections is represented by a single Event with HasObject = false.
type Event struct {
	Time        time.Duration // Offset from 00:00:00.000000
	Frame       int           // Zero-based frame index
	HasObject   bool          // False if the frame had no detections
	Label       string        // Object label. Empty if !HasObject
	Probability float64       // 0..1. Zero if !HasObject
}

// Table is the time series of everything that was detected in a video.
// There is one row per (frame, object) pair, and one row for every empty frame.
type Table struct {
	FrameRate float64 // Frames per second that the detector was run at (zero if unknown)
	NumFrames int
	Events    []Event
}

// FrameStep returns the time between two consecutive frames, rounded to a whole microsecond.
// The clock is advanced by the same rounded step on every frame, so timestamps never drift
// apart from each other.
func FrameStep(frameRate float64) (time.Duration, error) {
	if frameRate <= 0 || math.IsNaN(frameRate) || math.IsInf(frameRate, 0) {
		return 0, fmt.Errorf("%w: frame rate must be positive, but is %v", errs.ErrInvalidConfiguration, frameRate)
	}
	micros := math.Round(1e6 / frameRate)
	if micros < 1 {
		return 0, fmt.Errorf("%w: frame rate %v is too high", errs.ErrInvalidConfiguration, frameRate)
	}
	return time.Duration(micros) * time.Microsecond, nil
}

// NewTable builds a Table from the two parallel per-frame arrays that a video detector
// produces: the objects in each frame, and the number of unique objects in each frame.
// counts may be nil, but if it is not nil, it must be the same length as objects.
func NewTable(objects [][]Object, counts []map[string]int, frameRate float64) (*Table, error) {
	step, err := FrameStep(frameRate)
	if err != nil {
		return nil, err
	}
	if counts != nil && len(counts) != len(objects) {
		return nil, fmt.Errorf("%w: detector returned %v object frames, but %v count frames", errs.ErrInferenceFailure, len(objects), len(counts))
	}

	t := &Table{
		FrameRate: frameRate,
		NumFrames: len(objects),
		Events:    make([]Event, 0, len(objects)),
	}
	clock := time.Duration(0)
	for i, frame := range objects {
		if len(frame) == 0 {
			t.Events = append(t.Events, Event{
				Time:  clock,
				Frame: i,
			})
		}
		for _, obj := range frame {
			t.Events = append(t.Events, Event{
				Time:        clock,
				Frame:       i,
				HasObject:   true,
				Label:       obj.Name,
				Probability: obj.PercentageProbability / 100,
			})
		}
		clock += step
	}
	return t, nil
}

// Duration returns the timestamp of the final row (zero for an empty table)
func (t *Table) Duration() time.Duration {
	if len(t.Events) == 0 {
		return 0
	}
	return t.Events[len(t.Events)-1].Time
}

// HasObjects returns true if at least one object was detected anywhere in the video
func (t *Table) HasObjects() bool {
	for _, e := range t.Events {
		if e.HasObject {
			return true
		}
	}
	return false
}

// FormatTimestamp formats a time-of-day offset as HH:MM:SS.ffffff.
// Hours wrap at 24, the same as a wall clock.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	us := int64(d / time.Microsecond)
	h := (us / 3600e6) % 24
	m := (us / 60e6) % 60
	s := (us / 1e6) % 60
	frac := us % 1e6
	return fmt.Sprintf("%02d:%02d:%02d.%06d", h, m, s, frac)
}

// ParseTimestamp is the inverse of FormatTimestamp
func ParseTimestamp(s string) (time.Duration, error) {
	bad := fmt.Errorf("Invalid timestamp '%v'", s)
	hms, frac, ok := strings.Cut(s, ".")
	parts := strings.Split(hms, ":")
	if !ok || len(parts) != 3 || len(frac) != 6 {
		return 0, bad
	}
	limits := []int64{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	total := time.Duration(0)
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil || len(p) != 2 || v < 0 || v > limits[i] {
			return 0, bad
		}
		total += time.Duration(v) * units[i]
	}
	us, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || us < 0 {
		return 0, bad
	}
	return total + time.Duration(us)*time.Microsecond, nil
}
