package frame

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

// threeSeries builds a balanced frame: series a, b, c over two days, rows
// deliberately shuffled.
func threeSeries(t *testing.T) *Frame {
	t.Helper()
	f, err := New(
		[]string{"b", "a", "c", "a", "c", "b"},
		[]time.Time{day(2), day(1), day(1), day(2), day(2), day(1)})
	require.NoError(t, err)
	require.NoError(t, f.AddColumn("model", []float64{22, 11, 31, 12, 32, 21}))
	return f
}

func TestNew_LengthMismatch(t *testing.T) {
	_, err := New([]string{"a"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 ids but 0 timestamps")
}

func TestFrame_AddColumn(t *testing.T) {
	f, err := New([]string{"a"}, []time.Time{day(1)})
	require.NoError(t, err)

	require.NoError(t, f.AddColumn("m1", []float64{1}))
	assert.Equal(t, []string{"m1"}, f.Columns())
	assert.True(t, f.HasColumn("m1"))

	err = f.AddColumn("m1", []float64{2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	err = f.AddColumn(IDColumn, []float64{2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")

	err = f.AddColumn("m2", []float64{1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame has 1 rows")
}

func TestFrame_UniqueIDs(t *testing.T) {
	f := threeSeries(t)
	assert.Equal(t, []string{"b", "a", "c"}, f.UniqueIDs())
}

func TestFrame_SortByOrder(t *testing.T) {
	f := threeSeries(t)
	g := f.SortByOrder([]string{"a", "b", "c"})

	assert.Equal(t, []string{"a", "a", "b", "b", "c", "c"}, g.IDs())
	vals, err := g.Column("model")
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 12, 21, 22, 31, 32}, vals)

	// Source frame unchanged.
	orig, err := f.Column("model")
	require.NoError(t, err)
	assert.Equal(t, []float64{22, 11, 31, 12, 32, 21}, orig)
}

func TestFrame_SortByOrder_UnknownIDsSortLast(t *testing.T) {
	f, err := New([]string{"zz", "a", "zz"}, []time.Time{day(2), day(1), day(1)})
	require.NoError(t, err)
	require.NoError(t, f.AddColumn("m", []float64{9, 1, 8}))

	g := f.SortByOrder([]string{"a"})
	assert.Equal(t, []string{"a", "zz", "zz"}, g.IDs())
	vals, _ := g.Column("m")
	assert.Equal(t, []float64{1, 8, 9}, vals)
}

func TestFrame_Copy_Isolated(t *testing.T) {
	f := threeSeries(t)
	g := f.Copy()
	require.NoError(t, g.AddColumn("extra", make([]float64, 6)))

	assert.False(t, f.HasColumn("extra"))
	assert.Equal(t, []string{"model"}, f.Columns())
	assert.Equal(t, []string{"model", "extra"}, g.Columns())
}

func TestFrame_Append(t *testing.T) {
	f := threeSeries(t)
	g := threeSeries(t)
	require.NoError(t, f.Append(g))
	assert.Equal(t, 12, f.Len())

	h, err := New([]string{"a"}, []time.Time{day(1)})
	require.NoError(t, err)
	require.NoError(t, h.AddColumn("other", []float64{1}))
	err = f.Append(h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column mismatch")
}

func TestFrame_Reshape(t *testing.T) {
	f := threeSeries(t).SortByOrder([]string{"a", "b", "c"})

	m, err := f.Reshape("model", []string{"a", "b", "c"})
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, []float64{11, 12}, m.RawRowView(0))
	assert.Equal(t, []float64{21, 22}, m.RawRowView(1))
	assert.Equal(t, []float64{31, 32}, m.RawRowView(2))
}

func TestFrame_Reshape_Errors(t *testing.T) {
	f := threeSeries(t) // unsorted: series not contiguous

	_, err := f.Reshape("model", []string{"a", "b", "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not contiguous")

	_, err = f.Reshape("model", []string{"a", "b", "c", "d"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not divide")

	_, err = f.Reshape("missing", []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no column "missing"`)
}

func TestFrame_Pivot_FillsGapsWithNaN(t *testing.T) {
	// Series b misses day 1, series a misses day 3.
	f, err := New(
		[]string{"a", "a", "b", "b"},
		[]time.Time{day(1), day(2), day(2), day(3)})
	require.NoError(t, err)
	require.NoError(t, f.AddColumn("y", []float64{1, 2, 20, 30}))

	m, axis, err := f.Pivot("y", []string{"a", "b"})
	require.NoError(t, err)

	require.Len(t, axis, 3)
	assert.Equal(t, day(1), axis[0])
	assert.Equal(t, day(3), axis[2])

	assert.Equal(t, 1.0, m.At(0, 0))
	assert.Equal(t, 2.0, m.At(0, 1))
	assert.True(t, math.IsNaN(m.At(0, 2)))
	assert.True(t, math.IsNaN(m.At(1, 0)))
	assert.Equal(t, 20.0, m.At(1, 1))
	assert.Equal(t, 30.0, m.At(1, 2))
}

func TestFrame_Pivot_UnknownSeries(t *testing.T) {
	f, err := New([]string{"a", "x"}, []time.Time{day(1), day(1)})
	require.NoError(t, err)
	require.NoError(t, f.AddColumn("y", []float64{1, 2}))

	_, _, err = f.Pivot("y", []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"x" is not part of the pivot order`)
}
