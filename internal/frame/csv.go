package frame

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ReadCSV loads a long-format frame from a CSV file. The header must carry
// the unique_id and ds columns; every other column becomes a value column.
// Empty cells become NaN.
func ReadCSV(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "frame: open csv")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "frame: read csv")
	}
	return FromRecords(records)
}

// WriteCSV writes the frame as CSV with a unique_id,ds,<columns...> header.
// NaN values become empty cells.
func (f *Frame) WriteCSV(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "frame: create csv")
	}
	defer out.Close()
	return f.WriteCSVTo(out)
}

// WriteCSVTo streams the frame as CSV to a writer.
func (f *Frame) WriteCSVTo(out io.Writer) error {
	w := csv.NewWriter(out)
	header := append([]string{IDColumn, TimeColumn}, f.order...)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "frame: write csv header")
	}

	row := make([]string, len(header))
	for i := range f.ids {
		row[0] = f.ids[i]
		row[1] = f.times[i].Format("2006-01-02 15:04:05")
		for c, name := range f.order {
			v := f.cols[name][i]
			if math.IsNaN(v) {
				row[c+2] = ""
			} else {
				row[c+2] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "frame: write csv row")
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "frame: flush csv")
}

// FromRecords builds a frame from header-plus-rows string records, the shape
// both the CSV and XLSX readers produce.
func FromRecords(records [][]string) (*Frame, error) {
	if len(records) < 2 {
		return nil, eris.New("frame: no data rows")
	}

	header := records[0]
	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[strings.TrimSpace(col)] = i
	}
	for _, col := range []string{IDColumn, TimeColumn} {
		if _, ok := colIdx[col]; !ok {
			return nil, eris.Errorf("frame: missing required column %q", col)
		}
	}

	var valueCols []string
	for _, col := range header {
		name := strings.TrimSpace(col)
		if name == IDColumn || name == TimeColumn || name == "" {
			continue
		}
		valueCols = append(valueCols, name)
	}

	ids := make([]string, 0, len(records)-1)
	times := make([]time.Time, 0, len(records)-1)
	vals := make(map[string][]float64, len(valueCols))
	for _, name := range valueCols {
		vals[name] = make([]float64, 0, len(records)-1)
	}

	need := colIdx[IDColumn]
	if colIdx[TimeColumn] > need {
		need = colIdx[TimeColumn]
	}
	for n, rec := range records[1:] {
		// XLSX rows can be ragged; CSV rows cannot.
		if len(rec) <= need {
			return nil, eris.Errorf("frame: row %d is missing id or timestamp cells", n+2)
		}
		id := strings.TrimSpace(rec[colIdx[IDColumn]])
		if id == "" {
			return nil, eris.Errorf("frame: row %d has an empty series id", n+2)
		}
		ts, err := ParseTime(rec[colIdx[TimeColumn]])
		if err != nil {
			return nil, eris.Wrapf(err, "frame: row %d", n+2)
		}
		ids = append(ids, id)
		times = append(times, ts)

		for _, name := range valueCols {
			idx := colIdx[name]
			var cell string
			if idx < len(rec) {
				cell = strings.TrimSpace(rec[idx])
			}
			v, err := parseValue(cell)
			if err != nil {
				return nil, eris.Wrapf(err, "frame: row %d column %q", n+2, name)
			}
			vals[name] = append(vals[name], v)
		}
	}

	fr, err := New(ids, times)
	if err != nil {
		return nil, err
	}
	for _, name := range valueCols {
		if err := fr.AddColumn(name, vals[name]); err != nil {
			return nil, err
		}
	}
	return fr, nil
}

// ParseTime parses a timestamp cell, accepting RFC3339 and the common
// date / date-time layouts.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, eris.Errorf("frame: cannot parse timestamp %q", s)
}

func parseValue(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("frame: non-numeric value %q", s)
	}
	return v, nil
}
