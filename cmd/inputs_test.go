//go:build !integration

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hts/internal/config"
	"github.com/sells-group/hts/internal/frame"
	"github.com/sells-group/hts/internal/reconcile"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFrame_CSV(t *testing.T) {
	path := writeTempFile(t, "forecasts.csv", "unique_id,ds,model\na,2024-01-01,10\nb,2024-01-01,20\n")

	f, err := loadFrame(path)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, []string{"model"}, f.Columns())
	assert.Equal(t, []string{"a", "b"}, f.IDs())
}

func TestLoadFrame_UnknownExtensionReadAsCSV(t *testing.T) {
	path := writeTempFile(t, "forecasts.dat", "unique_id,ds,model\na,2024-01-01,10\n")

	f, err := loadFrame(path)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())
}

func TestLoadFrame_MissingFile(t *testing.T) {
	_, err := loadFrame("/nonexistent/path/forecasts.csv")
	require.Error(t, err)
}

func TestLoadHierarchy_BuildsMatrixAndTags(t *testing.T) {
	path := writeTempFile(t, "labels.csv", "region,store\neast,s1\neast,s2\nwest,s3\n")

	m, tags, err := loadHierarchy(path, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"total", "east", "west", "east/s1", "east/s2", "west/s3"}, m.Rows())
	assert.Equal(t, []string{"east/s1", "east/s2", "west/s3"}, m.Bottom())
	assert.Equal(t, []string{"east", "west"}, tags["region"])
	assert.Equal(t, []string{"east/s1", "east/s2", "west/s3"}, tags["region/store"])
}

func TestLoadHierarchy_SelectsLevelColumns(t *testing.T) {
	path := writeTempFile(t, "labels.csv", "region,store\neast,s1\neast,s2\nwest,s3\n")

	m, tags, err := loadHierarchy(path, []string{"store"})
	require.NoError(t, err)

	assert.Equal(t, []string{"total", "s1", "s2", "s3"}, m.Rows())
	assert.Equal(t, []string{"s1", "s2", "s3"}, tags["store"])
}

func TestLoadHierarchy_UnknownColumn(t *testing.T) {
	path := writeTempFile(t, "labels.csv", "region,store\neast,s1\n")

	_, _, err := loadHierarchy(path, []string{"banana"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no column "banana"`)
}

func TestLoadHierarchy_HeaderOnly(t *testing.T) {
	path := writeTempFile(t, "labels.csv", "region,store\n")

	_, _, err := loadHierarchy(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data rows")
}

func TestMethodSpecs_FileWinsOverConfig(t *testing.T) {
	cfg = &config.Config{Methods: []config.MethodConfig{{Kind: "bottom_up"}}}
	path := writeTempFile(t, "methods.yaml", "- kind: top_down\n  params:\n    method: forecast_proportions\n")

	specs, err := methodSpecs(path)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "top_down", specs[0].Kind)
	assert.Equal(t, "forecast_proportions", specs[0].Params["method"])
}

func TestMethodSpecs_ConfigFallback(t *testing.T) {
	cfg = &config.Config{Methods: []config.MethodConfig{
		{Kind: "min_trace", Params: map[string]any{"method": "ols"}},
	}}

	specs, err := methodSpecs("")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "min_trace", specs[0].Kind)
	assert.Equal(t, "ols", specs[0].Params["method"])
}

func TestMethodSpecs_DefaultsToBottomUp(t *testing.T) {
	cfg = &config.Config{}

	specs, err := methodSpecs("")
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "bottom_up", specs[0].Kind)
}

func TestMethodSpecs_EmptyFile(t *testing.T) {
	path := writeTempFile(t, "methods.yaml", "[]\n")

	_, err := methodSpecs(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declares no methods")
}

func TestMethodSpecs_MissingFile(t *testing.T) {
	_, err := methodSpecs("/nonexistent/methods.yaml")
	require.Error(t, err)
}

func TestWriteResult_ToFile(t *testing.T) {
	f, err := frame.New([]string{"a"}, []time.Time{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.NoError(t, f.AddColumn("model", []float64{10}))

	out := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, writeResult(&reconcile.Result{Forecasts: f}, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "unique_id,ds,model")
	assert.Contains(t, string(data), "a,2024-01-01 00:00:00,10")
}
