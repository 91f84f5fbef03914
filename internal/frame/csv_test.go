package frame

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRecords(t *testing.T) {
	f, err := FromRecords([][]string{
		{"unique_id", "ds", "y", "model"},
		{"total", "2024-01-01", "10", "9.5"},
		{"total", "2024-01-02", "", "10.5"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, f.Len())
	assert.Equal(t, []string{"y", "model"}, f.Columns())

	y, err := f.Column("y")
	require.NoError(t, err)
	assert.Equal(t, 10.0, y[0])
	assert.True(t, math.IsNaN(y[1]), "empty cell becomes NaN")

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), f.Times()[1])
}

func TestFromRecords_Errors(t *testing.T) {
	tests := []struct {
		name    string
		records [][]string
		want    string
	}{
		{
			name:    "no rows",
			records: [][]string{{"unique_id", "ds"}},
			want:    "no data rows",
		},
		{
			name: "missing ds",
			records: [][]string{
				{"unique_id", "y"},
				{"total", "1"},
			},
			want: `missing required column "ds"`,
		},
		{
			name: "empty id",
			records: [][]string{
				{"unique_id", "ds", "y"},
				{"", "2024-01-01", "1"},
			},
			want: "row 2 has an empty series id",
		},
		{
			name: "short row",
			records: [][]string{
				{"unique_id", "ds", "y"},
				{"total"},
			},
			want: "row 2 is missing id or timestamp cells",
		},
		{
			name: "bad timestamp",
			records: [][]string{
				{"unique_id", "ds", "y"},
				{"total", "yesterday", "1"},
			},
			want: "row 2",
		},
		{
			name: "non-numeric value",
			records: [][]string{
				{"unique_id", "ds", "y"},
				{"total", "2024-01-01", "abc"},
			},
			want: `non-numeric value "abc"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromRecords(tt.records)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCSV_RoundTrip(t *testing.T) {
	f, err := New(
		[]string{"total", "total", "a"},
		[]time.Time{
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	require.NoError(t, err)
	require.NoError(t, f.AddColumn("y", []float64{10, math.NaN(), 4}))
	require.NoError(t, f.AddColumn("model", []float64{9.25, 10.5, 3.75}))

	path := filepath.Join(t.TempDir(), "frame.csv")
	require.NoError(t, f.WriteCSV(path))

	got, err := ReadCSV(path)
	require.NoError(t, err)

	assert.Equal(t, f.IDs(), got.IDs())
	assert.Equal(t, f.Columns(), got.Columns())
	for i, ts := range f.Times() {
		assert.True(t, ts.Equal(got.Times()[i]), "timestamp %d", i)
	}

	y, _ := got.Column("y")
	assert.Equal(t, 10.0, y[0])
	assert.True(t, math.IsNaN(y[1]), "NaN survives as empty cell")
	model, _ := got.Column("model")
	assert.Equal(t, []float64{9.25, 10.5, 3.75}, model)
}

func TestReadCSV_MissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestReadCSV_ParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	data := "unique_id,ds,model\ntotal,2024-01-01 06:30:00,5.5\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	f, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())
	assert.Equal(t, 6, f.Times()[0].Hour())
}

func TestParseTime_Layouts(t *testing.T) {
	for _, s := range []string{
		"2024-03-05",
		"2024-03-05 12:30:00",
		"2024-03-05T12:30:00Z",
	} {
		ts, err := ParseTime(s)
		require.NoError(t, err, s)
		assert.Equal(t, time.March, ts.Month())
	}

	_, err := ParseTime("05/03/2024")
	require.Error(t, err)
}
