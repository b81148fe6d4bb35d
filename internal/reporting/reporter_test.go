// File: internal/reporting/reporter_test.go
package reporting

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *RunReport {
	started := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	return &RunReport{
		RunID:       "11111111-2222-3333-4444-555555555555",
		StartedAt:   started,
		FinishedAt:  started.Add(42 * time.Second),
		ExtensionID: "abcdefghijklmnop",
		Attempts: []AttemptResult{
			{
				Label:         "valid-credentials",
				Succeeded:     true,
				ExpectSuccess: true,
				Passed:        true,
				DurationMS:    1800,
				PanelURL:      "chrome-extension://abcdefghijklmnop/sidepanel.html",
			},
			{
				Label:         "invalid-credentials",
				Succeeded:     false,
				ExpectSuccess: false,
				Passed:        true,
				DurationMS:    5400,
			},
		},
		Passed: true,
	}
}

func TestReporter_FileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	r, err := New(path)
	require.NoError(t, err)

	require.NoError(t, r.Write(sampleReport()))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded RunReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "abcdefghijklmnop", decoded.ExtensionID)
	require.Len(t, decoded.Attempts, 2)
	assert.Equal(t, "valid-credentials", decoded.Attempts[0].Label)
	assert.True(t, decoded.Attempts[0].Passed)
	assert.True(t, decoded.Passed)
	assert.Empty(t, decoded.Error)
}

// An attempt that errored out carries its error text in the report, so the
// JSON stands alone without the log stream.
func TestReporter_AttemptErrorRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	r, err := New(path)
	require.NoError(t, err)

	report := sampleReport()
	report.Attempts = append(report.Attempts, AttemptResult{
		Label:         "valid-credentials",
		ExpectSuccess: true,
		Passed:        false,
		Error:         `login form interaction failed for "valid-credentials": node not found`,
	})
	report.Passed = false
	require.NoError(t, r.Write(report))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded RunReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Attempts, 3)
	assert.Contains(t, decoded.Attempts[2].Error, "node not found")
	assert.False(t, decoded.Attempts[2].Passed)
}

func TestReporter_OmitsEmptyOptionalFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	r, err := New(path)
	require.NoError(t, err)

	report := sampleReport()
	report.ExtensionID = ""
	require.NoError(t, r.Write(report))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "extension_id")
	assert.NotContains(t, string(data), "screenshot_path")
	assert.NotContains(t, string(data), `"error"`)
}

func TestReporter_StdoutCloseIsNoop(t *testing.T) {
	r, err := New("")
	require.NoError(t, err)
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}

func TestReporter_BadPathFails(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "nested", "report.json"))
	assert.Error(t, err)
}

func TestSaveScreenshot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	data := []byte{0x89, 'P', 'N', 'G'}

	path, err := SaveScreenshot(dir, "valid-credentials", data)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "login-valid-credentials-"))
	assert.True(t, strings.HasSuffix(path, ".png"))

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, written)
}
