package hierarchy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoLevel builds the matrix for total -> {CA, TX} -> {CA/s1, CA/s2, TX/s3}.
func twoLevel(t *testing.T) *Matrix {
	t.Helper()
	m, err := New(
		[]string{"total", "CA", "TX", "CA/s1", "CA/s2", "TX/s3"},
		[]string{"CA/s1", "CA/s2", "TX/s3"},
		[]float64{
			1, 1, 1,
			1, 1, 0,
			0, 0, 1,
			1, 0, 0,
			0, 1, 0,
			0, 0, 1,
		})
	require.NoError(t, err)
	return m
}

func TestNew_Validates(t *testing.T) {
	tests := []struct {
		name string
		rows []string
		cols []string
		data []float64
		want string
	}{
		{
			name: "empty",
			rows: nil,
			cols: []string{"a"},
			data: nil,
			want: "at least one row",
		},
		{
			name: "data size mismatch",
			rows: []string{"total", "a"},
			cols: []string{"a"},
			data: []float64{1},
			want: "got 1 values",
		},
		{
			name: "duplicate row",
			rows: []string{"total", "a", "a"},
			cols: []string{"a"},
			data: []float64{1, 1, 1},
			want: "duplicate series",
		},
		{
			name: "bottom without row",
			rows: []string{"total", "a"},
			cols: []string{"b"},
			data: []float64{1, 1},
			want: "no matching row",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.rows, tt.cols, tt.data)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMatrix_Accessors(t *testing.T) {
	m := twoLevel(t)

	assert.Equal(t, 6, m.NumSeries())
	assert.Equal(t, 3, m.NumBottom())
	assert.Equal(t, []string{"total", "CA", "TX", "CA/s1", "CA/s2", "TX/s3"}, m.Rows())
	assert.Equal(t, []string{"CA/s1", "CA/s2", "TX/s3"}, m.Bottom())

	i, ok := m.RowIndex("CA/s2")
	require.True(t, ok)
	assert.Equal(t, 4, i)
	_, ok = m.RowIndex("NV")
	assert.False(t, ok)
}

func TestMatrix_BottomIndex(t *testing.T) {
	m := twoLevel(t)
	assert.Equal(t, []int{3, 4, 5}, m.BottomIndex())
}

func TestMatrix_Reorder(t *testing.T) {
	m := twoLevel(t)

	order := []string{"CA/s1", "total", "TX/s3", "CA", "CA/s2", "TX"}
	got, err := m.Reorder(order)
	require.NoError(t, err)

	assert.Equal(t, order, got.Rows())
	// Bottom column order never changes.
	assert.Equal(t, []string{"CA/s1", "CA/s2", "TX/s3"}, got.Bottom())
	assert.Equal(t, []int{0, 4, 2}, got.BottomIndex())

	// Row for CA moved to position 3 and kept its values.
	assert.Equal(t, []float64{1, 1, 0}, got.Dense().RawRowView(3))
	// Root row moved to position 1.
	assert.Equal(t, []float64{1, 1, 1}, got.Dense().RawRowView(1))

	// Original is untouched.
	assert.Equal(t, "total", m.Rows()[0])
}

func TestMatrix_Reorder_Errors(t *testing.T) {
	m := twoLevel(t)

	_, err := m.Reorder([]string{"total"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 1 ids")

	_, err = m.Reorder([]string{"total", "CA", "TX", "CA/s1", "CA/s2", "NV"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a row")

	_, err = m.Reorder([]string{"total", "CA", "TX", "CA/s1", "CA/s2", "CA/s2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "appears twice")
}
