// Package frame holds long-format time series data: one row per
// (series id, timestamp) pair with any number of named float64 columns.
// Missing values are NaN.
package frame

import (
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// Column names used by the CSV and XLSX codecs.
const (
	IDColumn   = "unique_id"
	TimeColumn = "ds"
	// TargetColumn holds observed values in a historical frame.
	TargetColumn = "y"
)

// Frame is a long-format table indexed by series id and timestamp.
type Frame struct {
	ids   []string
	times []time.Time
	order []string
	cols  map[string][]float64
}

// New creates a frame from parallel id and timestamp slices.
func New(ids []string, times []time.Time) (*Frame, error) {
	if len(ids) != len(times) {
		return nil, eris.Errorf("frame: %d ids but %d timestamps", len(ids), len(times))
	}
	return &Frame{
		ids:   append([]string(nil), ids...),
		times: append([]time.Time(nil), times...),
		cols:  make(map[string][]float64),
	}, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.ids) }

// IDs returns the series id of every row. Callers must not modify it.
func (f *Frame) IDs() []string { return f.ids }

// Times returns the timestamp of every row. Callers must not modify it.
func (f *Frame) Times() []time.Time { return f.times }

// Columns returns the value column names in insertion order.
func (f *Frame) Columns() []string { return append([]string(nil), f.order...) }

// HasColumn reports whether a value column exists.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.cols[name]
	return ok
}

// Column returns the values of a column. Callers must not modify the slice.
func (f *Frame) Column(name string) ([]float64, error) {
	vals, ok := f.cols[name]
	if !ok {
		return nil, eris.Errorf("frame: no column %q", name)
	}
	return vals, nil
}

// AddColumn appends a value column.
func (f *Frame) AddColumn(name string, vals []float64) error {
	if name == IDColumn || name == TimeColumn {
		return eris.Errorf("frame: column name %q is reserved", name)
	}
	if _, dup := f.cols[name]; dup {
		return eris.Errorf("frame: column %q already exists", name)
	}
	if len(vals) != len(f.ids) {
		return eris.Errorf("frame: column %q has %d values, frame has %d rows", name, len(vals), len(f.ids))
	}
	f.order = append(f.order, name)
	f.cols[name] = append([]float64(nil), vals...)
	return nil
}

// UniqueIDs returns the distinct series ids in first-appearance order.
func (f *Frame) UniqueIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, id := range f.ids {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// Copy returns a deep copy.
func (f *Frame) Copy() *Frame {
	g := &Frame{
		ids:   append([]string(nil), f.ids...),
		times: append([]time.Time(nil), f.times...),
		order: append([]string(nil), f.order...),
		cols:  make(map[string][]float64, len(f.cols)),
	}
	for name, vals := range f.cols {
		g.cols[name] = append([]float64(nil), vals...)
	}
	return g
}

// SortByOrder returns a copy sorted by series rank in the given order, then
// by timestamp. The sort is stable; ids missing from the order sort after
// all ranked ids in their original relative position.
func (f *Frame) SortByOrder(order []string) *Frame {
	rank := make(map[string]int, len(order))
	for i, id := range order {
		rank[id] = i
	}
	unknown := len(order)

	perm := make([]int, len(f.ids))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		ra, ok := rank[f.ids[perm[a]]]
		if !ok {
			ra = unknown
		}
		rb, ok := rank[f.ids[perm[b]]]
		if !ok {
			rb = unknown
		}
		if ra != rb {
			return ra < rb
		}
		return f.times[perm[a]].Before(f.times[perm[b]])
	})

	g := &Frame{
		ids:   make([]string, len(f.ids)),
		times: make([]time.Time, len(f.times)),
		order: append([]string(nil), f.order...),
		cols:  make(map[string][]float64, len(f.cols)),
	}
	for name := range f.cols {
		g.cols[name] = make([]float64, len(f.ids))
	}
	for dst, src := range perm {
		g.ids[dst] = f.ids[src]
		g.times[dst] = f.times[src]
		for name, vals := range f.cols {
			g.cols[name][dst] = vals[src]
		}
	}
	return g
}

// Append adds the rows of g to f. Both frames must have identical column
// sets in identical order.
func (f *Frame) Append(g *Frame) error {
	if len(f.order) != len(g.order) {
		return eris.Errorf("frame: append column mismatch: %d vs %d columns", len(f.order), len(g.order))
	}
	for i, name := range f.order {
		if g.order[i] != name {
			return eris.Errorf("frame: append column mismatch at %d: %q vs %q", i, name, g.order[i])
		}
	}
	f.ids = append(f.ids, g.ids...)
	f.times = append(f.times, g.times...)
	for name := range f.cols {
		f.cols[name] = append(f.cols[name], g.cols[name]...)
	}
	return nil
}

// Reshape extracts a column as a dense (series x horizon) matrix. The frame
// must be sorted so each series' rows are contiguous in the given order,
// every series covering the same number of timestamps.
func (f *Frame) Reshape(col string, order []string) (*mat.Dense, error) {
	vals, err := f.Column(col)
	if err != nil {
		return nil, err
	}
	n := len(order)
	if n == 0 {
		return nil, eris.New("frame: reshape needs a series order")
	}
	if len(vals)%n != 0 {
		return nil, eris.Errorf("frame: %d rows do not divide into %d series", len(vals), n)
	}
	h := len(vals) / n
	for i, id := range order {
		for t := 0; t < h; t++ {
			if f.ids[i*h+t] != id {
				return nil, eris.Errorf("frame: series %q is not contiguous over a fixed horizon", id)
			}
		}
	}
	return mat.NewDense(n, h, append([]float64(nil), vals...)), nil
}

// Pivot extracts a column as a dense (series x timestamp) matrix over the
// union of all timestamps in ascending order. Combinations absent from the
// frame become NaN.
func (f *Frame) Pivot(col string, order []string) (*mat.Dense, []time.Time, error) {
	vals, err := f.Column(col)
	if err != nil {
		return nil, nil, err
	}
	if len(order) == 0 {
		return nil, nil, eris.New("frame: pivot needs a series order")
	}

	uniq := make(map[int64]time.Time)
	for _, ts := range f.times {
		uniq[ts.UnixNano()] = ts
	}
	axis := make([]time.Time, 0, len(uniq))
	for _, ts := range uniq {
		axis = append(axis, ts)
	}
	sort.Slice(axis, func(a, b int) bool { return axis[a].Before(axis[b]) })

	tIdx := make(map[int64]int, len(axis))
	for i, ts := range axis {
		tIdx[ts.UnixNano()] = i
	}
	rIdx := make(map[string]int, len(order))
	for i, id := range order {
		rIdx[id] = i
	}

	out := mat.NewDense(len(order), len(axis), nil)
	for i := 0; i < len(order); i++ {
		for t := 0; t < len(axis); t++ {
			out.Set(i, t, math.NaN())
		}
	}
	for row, id := range f.ids {
		i, ok := rIdx[id]
		if !ok {
			return nil, nil, eris.Errorf("frame: series %q is not part of the pivot order", id)
		}
		out.Set(i, tIdx[f.times[row].UnixNano()], vals[row])
	}
	return out, axis, nil
}
