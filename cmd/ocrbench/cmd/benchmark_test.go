package cmd

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/ocrbench/internal/benchmark"
	"github.com/MeKo-Tech/ocrbench/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBenchmarkCommand(t *testing.T) {
	dir := isolate(t)
	ds := testutil.WriteDataset(t, dir, sampleSet)
	srv := oracleEndpoint(t, ds)
	out := filepath.Join(dir, "latency.json")

	stdout, err := execute(t, "benchmark", "--endpoint", srv.URL, "--batch-size", "2", "-o", out, ds.ImageDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "=== Benchmark Results ===")
	assert.Contains(t, stdout, "Results saved to "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var report benchmark.Report
	require.NoError(t, json.Unmarshal(data, &report))

	assert.Equal(t, 2, report.BatchSize)
	require.Len(t, report.IndividualProcessing.Results, 3)
	for _, rec := range report.IndividualProcessing.Results {
		assert.Equal(t, http.StatusOK, rec.StatusCode, rec.Image)
		assert.False(t, rec.Failed())
	}
	require.Len(t, report.BatchProcessing.Results, 2)
	assert.Equal(t, []string{"a.png", "b.png"}, report.BatchProcessing.Results[0].Images)
	assert.Equal(t, []string{"c.png"}, report.BatchProcessing.Results[1].Images)
	assert.Equal(t, 3, report.BatchProcessing.Images)
}

func TestBenchmarkCommandErrors(t *testing.T) {
	dir := isolate(t)
	ds := testutil.WriteDataset(t, dir, sampleSet)

	_, err := execute(t, "benchmark", ds.ImageDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint is required")

	_, err = execute(t, "benchmark", "--endpoint", "http://localhost:1", "--batch-size", "0", ds.ImageDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch size")

	_, err = execute(t, "benchmark", "--endpoint", "ftp://example.com", ds.ImageDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme")
}
