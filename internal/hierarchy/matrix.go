// Package hierarchy models the summing structure of a collection of time
// series: a matrix mapping bottom-level series onto every aggregated series,
// plus the tag groups that name each aggregation level.
package hierarchy

import (
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// Matrix is a summing matrix. Rows cover every series in the hierarchy,
// columns cover the bottom-level series only, and the column order defines
// the canonical bottom-series ordering. Entry (i, j) is the weight of bottom
// series j in series i, 1 for a plain sum hierarchy.
type Matrix struct {
	rows   []string
	cols   []string
	rowIdx map[string]int
	data   *mat.Dense
}

// New builds a summing matrix from row ids, bottom-column ids and row-major
// data. Every bottom id must also appear as a row: a series that exists as a
// column but not as a row cannot receive its own reconciled values.
func New(rows, cols []string, data []float64) (*Matrix, error) {
	if len(rows) == 0 || len(cols) == 0 {
		return nil, eris.New("hierarchy: summing matrix needs at least one row and one column")
	}
	if len(data) != len(rows)*len(cols) {
		return nil, eris.Errorf("hierarchy: got %d values for a %dx%d matrix", len(data), len(rows), len(cols))
	}

	rowIdx := make(map[string]int, len(rows))
	for i, id := range rows {
		if _, dup := rowIdx[id]; dup {
			return nil, eris.Errorf("hierarchy: duplicate series id %q", id)
		}
		rowIdx[id] = i
	}
	for _, id := range cols {
		if _, ok := rowIdx[id]; !ok {
			return nil, eris.Errorf("hierarchy: bottom series %q has no matching row", id)
		}
	}

	m := &Matrix{
		rows:   append([]string(nil), rows...),
		cols:   append([]string(nil), cols...),
		rowIdx: rowIdx,
		data:   mat.NewDense(len(rows), len(cols), append([]float64(nil), data...)),
	}
	return m, nil
}

// NumSeries returns the total number of series (rows).
func (m *Matrix) NumSeries() int { return len(m.rows) }

// NumBottom returns the number of bottom-level series (columns).
func (m *Matrix) NumBottom() int { return len(m.cols) }

// Rows returns the series ids in row order.
func (m *Matrix) Rows() []string { return append([]string(nil), m.rows...) }

// Bottom returns the bottom-level series ids in canonical column order.
func (m *Matrix) Bottom() []string { return append([]string(nil), m.cols...) }

// Dense returns the backing matrix. Callers must treat it as read-only.
func (m *Matrix) Dense() *mat.Dense { return m.data }

// RowIndex reports the row position of a series id.
func (m *Matrix) RowIndex(id string) (int, bool) {
	i, ok := m.rowIdx[id]
	return i, ok
}

// BottomIndex returns, for each bottom column in canonical order, the row
// position of that series.
func (m *Matrix) BottomIndex() []int {
	idx := make([]int, len(m.cols))
	for j, id := range m.cols {
		idx[j] = m.rowIdx[id]
	}
	return idx
}

// Reorder returns a new Matrix with rows permuted to the given order. The
// order must contain exactly the same ids as the current rows; column order
// is untouched.
func (m *Matrix) Reorder(order []string) (*Matrix, error) {
	if len(order) != len(m.rows) {
		return nil, eris.Errorf("hierarchy: reorder got %d ids, matrix has %d rows", len(order), len(m.rows))
	}

	n, nb := m.data.Dims()
	data := mat.NewDense(n, nb, nil)
	rowIdx := make(map[string]int, len(order))
	for i, id := range order {
		src, ok := m.rowIdx[id]
		if !ok {
			return nil, eris.Errorf("hierarchy: reorder id %q is not a row of the matrix", id)
		}
		if _, dup := rowIdx[id]; dup {
			return nil, eris.Errorf("hierarchy: reorder id %q appears twice", id)
		}
		rowIdx[id] = i
		data.SetRow(i, m.data.RawRowView(src))
	}

	return &Matrix{
		rows:   append([]string(nil), order...),
		cols:   append([]string(nil), m.cols...),
		rowIdx: rowIdx,
		data:   data,
	}, nil
}
