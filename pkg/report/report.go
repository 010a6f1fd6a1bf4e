// Package report turns a detection table into the files that we show to the user:
// a CSV export, and one summary chart per applicable granularity.
package report

import (
	"fmt"
	"path/filepath"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/visiondemo/pkg/chart"
	"github.com/cyclopcam/visiondemo/pkg/detections"
)

type Chart struct {
	Granularity detections.Granularity
	Title       string
	File        string // Base name, inside the report directory
	Summary     *detections.Summary
}

type Report struct {
	CSVFile string              // Base name, inside the report directory
	Totals  *detections.Summary // Objects per label over the whole video
	Charts  []Chart             // In order of increasing granularity (frame, second, minute, hour, full)
}

// Write exports the table into dir, and renders a chart for every granularity
// that the table is long enough for. basename is the input video's name without
// extension, and names the CSV file.
func Write(log logs.Log, table *detections.Table, dir, basename string, style chart.Style) (*Report, error) {
	r := &Report{
		CSVFile: detections.CSVFilename(basename),
		Totals:  table.Summarize(detections.GranularityFull),
	}
	if err := table.SaveCSV(filepath.Join(dir, r.CSVFile)); err != nil {
		return nil, fmt.Errorf("Failed to write CSV: %w", err)
	}

	for _, g := range detections.AllGranularities {
		if !table.ShouldRender(g) {
			continue
		}
		summary := table.Summarize(g)
		fn := chart.Filename(g)
		if err := style.SavePNG(filepath.Join(dir, fn), summary); err != nil {
			return nil, fmt.Errorf("Failed to render %v chart: %w", g, err)
		}
		r.Charts = append(r.Charts, Chart{
			Granularity: g,
			Title:       summary.Title,
			File:        fn,
			Summary:     summary,
		})
	}
	if log != nil {
		log.Infof("Report for %v: %v rows, %v charts, %v", basename, len(table.Events), len(r.Charts), table.Duration())
	}
	return r, nil
}
