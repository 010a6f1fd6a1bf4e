package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/visiondemo/pkg/chart"
	"github.com/cyclopcam/visiondemo/pkg/detections"
	"github.com/cyclopcam/visiondemo/pkg/engine"
	"github.com/cyclopcam/visiondemo/pkg/report"
	"github.com/cyclopcam/visiondemo/server/staging"
)

func check(err error) {
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
}

// Regenerate the CSV and summary charts from a saved detection result.
// The input is either the JSON printed by the engine's 'detect-video' command,
// or a CSV file that was previously exported by the server.
func main() {
	parser := argparse.NewParser("summarize", "Render detection summary charts from a saved detection result")
	input := parser.String("i", "input", &argparse.Options{Help: "Engine JSON output, or detections CSV", Required: true})
	outDir := parser.String("o", "output", &argparse.Options{Help: "Output directory", Default: "."})
	fps := parser.Float("", "fps", &argparse.Options{Help: "Frame rate that detection was run at (JSON input only)", Default: 20.0})
	name := parser.String("n", "name", &argparse.Options{Help: "Video name, for the CSV filename (defaults to the input name)", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	log, err := logs.NewLog()
	check(err)

	if *name == "" {
		*name, _ = staging.SplitBasename(filepath.Base(*input))
		*name = strings.TrimPrefix(*name, "objects_detected_")
	}
	table, err := loadTable(*input, *fps)
	check(err)
	check(os.MkdirAll(*outDir, 0755))
	rep, err := report.Write(log, table, *outDir, *name, chart.DefaultStyle())
	check(err)

	fmt.Printf("%v\n", filepath.Join(*outDir, rep.CSVFile))
	for _, c := range rep.Charts {
		fmt.Printf("%v\n", filepath.Join(*outDir, c.File))
	}
	for _, e := range rep.Totals.Entries {
		fmt.Printf("  %-20v %v\n", e.Label, e.Value)
	}
}

func loadTable(filename string, fps float64) (*detections.Table, error) {
	if strings.EqualFold(filepath.Ext(filename), ".csv") {
		f, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return detections.ReadCSV(f)
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	result, err := engine.DecodeVideoResult(raw)
	if err != nil {
		return nil, err
	}
	return result.Table(fps)
}
