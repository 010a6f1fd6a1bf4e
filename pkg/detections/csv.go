package detections

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// CSV column names
var csvHeader = []string{"frames", "objects", "probability"}

// CSVFilename returns the name of the CSV export for the given input video basename (eg "cars")
func CSVFilename(videoBasename string) string {
	return "objects_detected_" + videoBasename + ".csv"
}

// WriteCSV writes one row per Event. Empty frames produce empty 'objects' and 'probability' cells.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	row := make([]string, 3)
	for _, e := range t.Events {
		row[0] = FormatTimestamp(e.Time)
		if e.HasObject {
			row[1] = e.Label
			row[2] = strconv.FormatFloat(e.Probability, 'f', -1, 64)
		} else {
			row[1] = ""
			row[2] = ""
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the table to filename
func (t *Table) SaveCSV(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		os.Remove(filename)
		return err
	}
	return f.Close()
}

// ReadCSV reads a table that was written by WriteCSV.
// The frame rate is not stored in the CSV file, so the returned table has FrameRate = 0,
// and frame indices are reconstructed from distinct consecutive timestamps.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("Failed to read CSV header: %w", err)
	}
	for i, col := range csvHeader {
		if header[i] != col {
			return nil, fmt.Errorf("Unexpected CSV column %v: '%v' (expected '%v')", i, header[i], col)
		}
	}

	t := &Table{}
	frame := -1
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		ts, err := ParseTimestamp(rec[0])
		if err != nil {
			return nil, fmt.Errorf("Line %v: %w", line, err)
		}
		if len(t.Events) == 0 || t.Events[len(t.Events)-1].Time != ts {
			frame++
		}
		e := Event{
			Time:  ts,
			Frame: frame,
		}
		if rec[1] != "" {
			e.HasObject = true
			e.Label = rec[1]
			if rec[2] != "" {
				if e.Probability, err = strconv.ParseFloat(rec[2], 64); err != nil {
					return nil, fmt.Errorf("Line %v: invalid probability '%v'", line, rec[2])
				}
			}
		}
		t.Events = append(t.Events, e)
	}
	t.NumFrames = frame + 1
	return t, nil
}
