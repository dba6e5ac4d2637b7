package harness

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	report := NewReport()
	report.Outcomes[1] = &Outcome{Time: 12.5, Rows: 4, Success: true}
	report.Outcomes[14] = &Outcome{Time: 3.25, Rows: 100, Success: true}
	report.Outcomes[6] = &Outcome{Error: "division by zero"}

	return report
}

func TestReportAggregates(t *testing.T) {
	report := sampleReport()

	assert.Equal(t, []int{1, 6, 14}, report.QueryIDs())
	assert.Equal(t, 2, report.SuccessCount())
	assert.Equal(t, 1, report.FailedCount())
	assert.InDelta(t, 15.75, report.TotalTime(), 0.001)
}

func TestEmptyReportAggregates(t *testing.T) {
	report := NewReport()

	assert.Empty(t, report.QueryIDs())
	assert.Zero(t, report.SuccessCount())
	assert.Zero(t, report.FailedCount())
	assert.Zero(t, report.TotalTime())
}

func TestReportJSONKeysAreQueryNumbers(t *testing.T) {
	data, err := json.Marshal(sampleReport())
	require.NoError(t, err)

	var decoded map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Contains(t, decoded, "1")
	require.Contains(t, decoded, "6")
	require.Contains(t, decoded, "14")

	assert.Equal(t, true, decoded["1"]["success"])
	assert.Equal(t, false, decoded["6"]["success"])
	assert.Equal(t, "division by zero", decoded["6"]["error"])

	// Successful outcomes omit the error field entirely.
	assert.NotContains(t, decoded["1"], "error")
}

func TestWriteAndLoadReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "nested", "report.json")

	original := sampleReport()
	require.NoError(t, WriteReport(path, original))

	loaded, err := LoadReport(path)
	require.NoError(t, err)

	assert.Equal(t, original.Outcomes, loaded.Outcomes)
}

func TestLoadReportMissingFile(t *testing.T) {
	_, err := LoadReport(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading report file")
}

func TestSummarize(t *testing.T) {
	var buf bytes.Buffer

	sampleReport().Summarize(&buf)
	out := buf.String()

	assert.Contains(t, out, "BENCHMARK RESULTS SUMMARY")
	assert.Contains(t, out, "Query  1:    12.50s (     4 rows) - OK")
	assert.Contains(t, out, "Query  6:      N/A (   N/A rows) - FAILED")
	assert.Contains(t, out, "Total queries: 3")
	assert.Contains(t, out, "Successful: 2")
	assert.Contains(t, out, "Failed: 1")
	assert.Contains(t, out, "Total execution time: 15.75s")
}

func TestSummarizeEmptyReport(t *testing.T) {
	var buf bytes.Buffer

	NewReport().Summarize(&buf)
	out := buf.String()

	assert.Contains(t, out, "Total queries: 0")
	assert.Contains(t, out, "Total execution time: 0.00s")
}
