package detections

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cyclopcam/visiondemo/pkg/errs"
)

// Granularity is the size of the time bucket that detections are aggregated over
type Granularity int

const (
	GranularityFrame Granularity = iota
	GranularitySecond
	GranularityMinute
	GranularityHour
	GranularityFull // The whole video is one bucket, and we report totals instead of averages
)

// AllGranularities is the order in which summaries are produced
var AllGranularities = []Granularity{
	GranularityFrame,
	GranularitySecond,
	GranularityMinute,
	GranularityHour,
	GranularityFull,
}

func (g Granularity) String() string {
	switch g {
	case GranularityFrame:
		return "frame"
	case GranularitySecond:
		return "second"
	case GranularityMinute:
		return "minute"
	case GranularityHour:
		return "hour"
	case GranularityFull:
		return "full"
	}
	return fmt.Sprintf("Granularity(%d)", int(g))
}

// ParseGranularity parses the output of Granularity.String()
func ParseGranularity(s string) (Granularity, error) {
	for _, g := range AllGranularities {
		if strings.EqualFold(s, g.String()) {
			return g, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown interval '%v'", errs.ErrInvalidConfiguration, s)
}

// Unit returns the bucket size, or zero for GranularityFrame and GranularityFull
func (g Granularity) Unit() time.Duration {
	switch g {
	case GranularitySecond:
		return time.Second
	case GranularityMinute:
		return time.Minute
	case GranularityHour:
		return time.Hour
	}
	return 0
}

// Title is the chart title for a summary of this granularity
func (g Granularity) Title() string {
	if g == GranularityFull {
		return "Total Number of Unique Objects In This Video"
	}
	name := g.String()
	return "Average Number of Unique Objects Per " + strings.ToUpper(name[:1]) + name[1:]
}

// SummaryEntry is one bar of a summary chart
type SummaryEntry struct {
	Label string
	Value float64
}

// Summary is the per-label metric of a Table, aggregated at a single granularity.
// Entries are sorted by descending Value, and then by Label.
type Summary struct {
	Granularity Granularity
	Title       string
	Entries     []SummaryEntry
}

// Lookup returns the value for the given label, or (0, false) if the label is not present
func (s *Summary) Lookup(label string) (float64, bool) {
	for _, e := range s.Entries {
		if e.Label == label {
			return e.Value, true
		}
	}
	return 0, false
}

// MaxValue returns the largest value in the summary (zero if empty)
func (s *Summary) MaxValue() float64 {
	if len(s.Entries) == 0 {
		return 0
	}
	return s.Entries[0].Value
}

// intervalKey returns the bucket that t falls into.
// For GranularityFrame, each distinct timestamp is its own bucket.
func intervalKey(t time.Duration, g Granularity) int64 {
	unit := g.Unit()
	if unit == 0 {
		return int64(t)
	}
	return int64(t / unit)
}

// Summarize aggregates the table at the given granularity.
//
// For frame/second/minute/hour, we count the rows of each label inside every bucket,
// and then average those counts over the buckets in which the label occurs.
// For GranularityFull, we return the plain count of rows per label.
// Rows without an object never contribute.
func (t *Table) Summarize(g Granularity) *Summary {
	values := map[string]float64{}

	if g == GranularityFull {
		for _, e := range t.Events {
			if e.HasObject {
				values[e.Label]++
			}
		}
	} else {
		type bucket struct {
			interval int64
			label    string
		}
		perBucket := map[bucket]int{}
		for _, e := range t.Events {
			if e.HasObject {
				perBucket[bucket{intervalKey(e.Time, g), e.Label}]++
			}
		}
		total := map[string]int{}
		nBuckets := map[string]int{}
		for b, count := range perBucket {
			total[b.label] += count
			nBuckets[b.label]++
		}
		for label, sum := range total {
			values[label] = float64(sum) / float64(nBuckets[label])
		}
	}

	s := &Summary{
		Granularity: g,
		Title:       g.Title(),
		Entries:     make([]SummaryEntry, 0, len(values)),
	}
	for label, v := range values {
		s.Entries = append(s.Entries, SummaryEntry{Label: label, Value: v})
	}
	sort.Slice(s.Entries, func(i, j int) bool {
		a, b := s.Entries[i], s.Entries[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return a.Label < b.Label
	})
	return s
}

// ShouldRender returns false if a chart of this granularity would be degenerate.
// Charts are never produced for a video without any detections, and the second/minute/hour
// charts are skipped when the video is not at least one unit long (eg no "hour" chart
// for a 10 second video).
func (t *Table) ShouldRender(g Granularity) bool {
	if !t.HasObjects() {
		return false
	}
	unit := g.Unit()
	if unit == 0 {
		return true
	}
	return t.Duration() >= unit
}
